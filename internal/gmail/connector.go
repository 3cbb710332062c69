// Package gmail discovers candidate invoice messages in a connected mailbox.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thevitaly/payme-smart/internal/entity"
)

// ignoredSenders drops bounce daemons and known-noise senders. Matching is a
// case-insensitive substring test against the From header.
var ignoredSenders = []string{
	"mailer-daemon@googlemail.com",
	"mailer-daemon@google.com",
	"noreply-dmarc-support@google.com",
	"no-reply@accounts.google.com",
	"info@jvkpro.com",
}

// invoiceKeywords feeds the subject search: payment vocabulary in the
// languages the inbox sees, plus vendors known to send invoices.
var invoiceKeywords = []string{
	// English
	"invoice", "bill", "billing", "receipt", "payment", "subscription",
	"your order", "order confirmation", "payment confirmation",
	// Latvian
	"rēķins", "maksājums", "apmaksa", "kvīts", "pasūtījums",
	// Russian
	"счет", "счёт", "оплата", "квитанция", "платеж", "платёж", "чек",
	// German
	"rechnung", "zahlung", "quittung",
	// Common services
	"stripe", "paypal", "wise", "revolut",
	// Known suppliers
	"BITE", "LMT", "VENDEN", "DROŠĪBA DARBA", "Latvijas ugunsdrošība",
	"GOOGLE CLOUD", "GRIFS AG", "GRIFS", "SENSON AUTO", "ERKI",
	"GABUS SIA", "GABUS", "MB Dailų ekspertai", "MB Dailų",
	"RKS-K24", "LR Projects", "AGROS",
	"INTER CARS", "AMAZON", "MAGIC", "Verifone", "LU Matemātikas",
	"Handy House", "xAutomobile", "LINDSTROM", "Callgear",
	"APE MOTORS", "APE DYN", "Epizode Sound", "LATTIM", "Pirus Serviss",
	"DIMA SIA", "AHAFOONOVS", "CERTEX", "Business Education",
	"Euronsteel", "ENTER", "OnPmi", "NESTE LATVIA", "NESTE", "R&D",
}

// Connector runs candidate-message discovery against a mailbox.
type Connector struct {
	api    APIFactory
	logger *slog.Logger
}

func NewConnector(api APIFactory, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{api: api, logger: logger}
}

// FindCandidates runs the two-part search over the date range: document
// attachments first, invoice-keyword subjects second, each capped at
// maxResults/2. Results merge by message id, truncate to maxResults, and
// every kept message is fetched in full. Denylisted senders are dropped
// regardless of which search surfaced them.
func (c *Connector) FindCandidates(ctx context.Context, start, end time.Time, maxResults int) ([]entity.CandidateMessage, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	dateRange := fmt.Sprintf("after:%s before:%s", gmailDate(start), gmailDate(end))
	queries := []string{
		dateRange + " has:attachment (filename:pdf OR filename:doc OR filename:docx OR filename:xls OR filename:xlsx)",
		dateRange + " subject:(" + keywordQuery() + ")",
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, q := range queries {
		c.logger.Info("gmail.search.start", "query", truncateQuery(q))
		found, err := api.Search(ctx, q, int64(maxResults/2))
		if err != nil {
			// one failing query does not sink the other
			c.logger.Warn("gmail.search.failed", "error", err)
			continue
		}
		for _, id := range found {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	c.logger.Info("gmail.search.merged", "unique", len(ids))

	out := make([]entity.CandidateMessage, 0, len(ids))
	for _, id := range ids {
		raw, err := api.Fetch(ctx, id)
		if err != nil {
			c.logger.Warn("gmail.fetch.failed", "message_id", id, "error", err)
			continue
		}
		if isIgnoredSender(raw.From) {
			c.logger.Info("gmail.sender.ignored", "from", raw.From)
			continue
		}
		attachments := ExtractAttachments(raw.Root)
		out = append(out, entity.CandidateMessage{
			ID:             raw.ID,
			Subject:        raw.Subject,
			From:           raw.From,
			Date:           raw.Date,
			BodyText:       ExtractBodyText(raw.Root),
			Attachments:    attachments,
			HasDocuments:   len(attachments) > 0,
			IsKeywordMatch: len(attachments) == 0,
		})
	}
	return out, nil
}

// DownloadAttachment fetches attachment bytes on demand.
func (c *Connector) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	return api.Attachment(ctx, messageID, attachmentID)
}

func isIgnoredSender(from string) bool {
	lower := strings.ToLower(from)
	for _, ignored := range ignoredSenders {
		if strings.Contains(lower, ignored) {
			return true
		}
	}
	return false
}

func keywordQuery() string {
	quoted := make([]string, len(invoiceKeywords))
	for i, k := range invoiceKeywords {
		quoted[i] = `"` + k + `"`
	}
	return strings.Join(quoted, " OR ")
}

// gmailDate renders a time in Gmail's Y/M/D query format.
func gmailDate(t time.Time) string {
	return t.Format("2006/01/02")
}

func truncateQuery(q string) string {
	if len(q) > 100 {
		return q[:100] + "..."
	}
	return q
}
