package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/common"
	"github.com/thevitaly/payme-smart/internal/entity"
	"github.com/thevitaly/payme-smart/internal/llm"
	"github.com/thevitaly/payme-smart/internal/repository"
)

// AcceptRequest carries the reviewer's verdict plus any manual corrections to
// the extracted fields. Overrides win over the model's values.
type AcceptRequest struct {
	ItemID        uuid.UUID
	Amount        *float64
	Currency      string
	Description   string
	CategoryID    *int64
	SubcategoryID *int64
	BodyText      string
}

// RejectRequest marks an item as not-an-expense. Only the audit trail records
// it; the ledger is untouched.
type RejectRequest struct {
	ItemID uuid.UUID
	Reason string
}

// Workflow applies human decisions: accepted items become ledger entries with
// an audit record, rejected items get the audit record only.
type Workflow struct {
	items    *Store
	expenses repository.ExpenseRepository
	audit    repository.AuditRepository
	logger   *slog.Logger
}

func NewWorkflow(items *Store, expenses repository.ExpenseRepository, audit repository.AuditRepository, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{items: items, expenses: expenses, audit: audit, logger: logger}
}

// Items exposes the pending store for the HTTP layer.
func (w *Workflow) Items() *Store { return w.items }

// Accept commits the item to the expense ledger and appends the audit record.
// If a downstream write fails the item reverts to pending so the decision can
// be retried; a successful second decision is impossible.
func (w *Workflow) Accept(ctx context.Context, req *AcceptRequest) (*entity.Expense, error) {
	item, err := w.items.Apply(req.ItemID, constants.DecisionAccept)
	if err != nil {
		return nil, err
	}

	fields := decodeFields(item.ExtractionJSON)
	amount := req.Amount
	if amount == nil && fields != nil {
		amount = fields.Amount
	}
	if amount == nil {
		w.items.revert(req.ItemID)
		return nil, common.WrapError(common.ErrInvalidInput, "no amount extracted and none supplied")
	}

	currency := req.Currency
	if currency == "" {
		currency = "EUR"
		if fields != nil && fields.Currency != "" {
			currency = fields.Currency
		}
	}
	description := req.Description
	if description == "" {
		description = fallbackDescription(fields)
	}

	expReq := &repository.CreateExpenseRequest{
		Description:   description,
		Amount:        *amount,
		Currency:      currency,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		OriginalText:  originalText(item, req.BodyText),
		BlobURL:       blobURL(item),
	}
	expense, err := w.expenses.CreateFromImport(ctx, expReq)
	if err != nil {
		w.items.revert(req.ItemID)
		return nil, err
	}

	rec := w.auditRecord(item, constants.DecisionAccept)
	rec.ExpenseID = &expense.ID
	if err := w.audit.Append(ctx, rec); err != nil {
		// Ledger entry exists; the decision stands. Audit loss is logged, not fatal.
		w.logger.Error("review.accept.audit_failed", "item_id", item.ID, "expense_id", expense.ID, "error", err)
	}

	w.logger.Info("review.accept.ok", "item_id", item.ID, "expense_id", expense.ID,
		"amount", *amount, "currency", currency)
	return expense, nil
}

// Reject records the decision in the audit trail and nothing else.
func (w *Workflow) Reject(ctx context.Context, req *RejectRequest) error {
	item, err := w.items.Apply(req.ItemID, constants.DecisionReject)
	if err != nil {
		return err
	}
	rec := w.auditRecord(item, constants.DecisionReject)
	if req.Reason != "" {
		rec.ExtractedData = appendReason(rec.ExtractedData, req.Reason)
	}
	if err := w.audit.Append(ctx, rec); err != nil {
		w.items.revert(req.ItemID)
		return err
	}
	w.logger.Info("review.reject.ok", "item_id", item.ID, "message_id", item.SourceMessageID)
	return nil
}

func (w *Workflow) auditRecord(item *entity.ReviewItem, decision constants.Decision) *entity.AuditRecord {
	var msgDate *time.Time
	if !item.MessageDate.IsZero() {
		d := item.MessageDate
		msgDate = &d
	}
	extracted := string(item.ExtractionJSON)
	if extracted == "" {
		extracted = "{}"
	}
	return &entity.AuditRecord{
		MessageID:          item.SourceMessageID,
		Subject:            item.Subject,
		From:               item.From,
		MessageDate:        msgDate,
		AttachmentFilename: item.Filename,
		BlobURL:            blobURL(item),
		ExtractedData:      extracted,
		Decision:           decision,
	}
}

func decodeFields(raw []byte) *llm.InvoiceFields {
	if len(raw) == 0 {
		return nil
	}
	var f llm.InvoiceFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

func fallbackDescription(fields *llm.InvoiceFields) string {
	if fields != nil {
		if fields.Description != nil && *fields.Description != "" {
			return *fields.Description
		}
		if fields.Sender != nil && *fields.Sender != "" {
			return "Invoice from " + *fields.Sender
		}
	}
	return "Invoice from email"
}

// originalText is what lands in the ledger's original_text column: the email
// framing, plus body text when extraction ran on the message itself.
func originalText(item *entity.ReviewItem, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Email: %s | From: %s", item.Subject, item.From)
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}
	return b.String()
}

func blobURL(item *entity.ReviewItem) string {
	if item.Stored == nil {
		return ""
	}
	return item.Stored.ShareableURL
}

func appendReason(extracted, reason string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(extracted), &m); err != nil || m == nil {
		m = map[string]any{}
	}
	m["rejectionReason"] = reason
	b, err := json.Marshal(m)
	if err != nil {
		return extracted
	}
	return string(b)
}
