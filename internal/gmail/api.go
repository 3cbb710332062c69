package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gm "google.golang.org/api/gmail/v1"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/thevitaly/payme-smart/internal/entity"
)

// RawMessage is a fetched mailbox message in provider-independent shape.
type RawMessage struct {
	ID      string
	Subject string
	From    string
	Date    time.Time
	Root    *entity.MessagePart
}

// MailAPI is the narrow mailbox surface the connector depends on.
// Production wraps the Gmail API; tests substitute a fake.
type MailAPI interface {
	Search(ctx context.Context, query string, maxResults int64) ([]string, error)
	Fetch(ctx context.Context, messageID string) (*RawMessage, error)
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// APIFactory builds an authenticated MailAPI; it runs per request so every
// call rides a fresh access token.
type APIFactory func(ctx context.Context) (MailAPI, error)

// NewAPIFactory wires the Gmail SDK behind MailAPI using the given token source.
func NewAPIFactory(tokenFn func(ctx context.Context) (*oauth2.Token, error)) APIFactory {
	return func(ctx context.Context) (MailAPI, error) {
		tok, err := tokenFn(ctx)
		if err != nil {
			return nil, err
		}
		svc, err := gm.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
		if err != nil {
			return nil, fmt.Errorf("build gmail service: %w", err)
		}
		return &apiClient{svc: svc}, nil
	}
}

type apiClient struct {
	svc *gm.Service
}

func (c *apiClient) Search(ctx context.Context, query string, maxResults int64) ([]string, error) {
	resp, err := c.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (c *apiClient) Fetch(ctx context.Context, messageID string) (*RawMessage, error) {
	msg, err := c.svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}

	headers := headerMap(msg.Payload.Headers)
	date, _ := parseMessageDate(headers["Date"])

	return &RawMessage{
		ID:      msg.Id,
		Subject: defaultStr(headers["Subject"], "(No subject)"),
		From:    headers["From"],
		Date:    date,
		Root:    convertPart(msg.Payload),
	}, nil
}

func (c *apiClient) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.svc.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return decodeBase64URL(att.Data)
}

// Identity returns the account email for the authorized token, used when
// persisting tokens after the OAuth callback.
func Identity(ctx context.Context, tok *oauth2.Token) (string, error) {
	svc, err := goauth2.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return "", fmt.Errorf("build oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get userinfo: %w", err)
	}
	return info.Email, nil
}

// convertPart maps the SDK MIME tree onto the provider-independent tree,
// decoding textual leaf bodies.
func convertPart(p *gm.MessagePart) *entity.MessagePart {
	if p == nil {
		return nil
	}
	out := &entity.MessagePart{
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	if p.Body != nil {
		out.AttachmentID = p.Body.AttachmentId
		out.SizeBytes = p.Body.Size
		if p.Body.Data != "" {
			if decoded, err := decodeBase64URL(p.Body.Data); err == nil {
				out.Body = string(decoded)
			}
		}
	}
	for _, child := range p.Parts {
		out.Children = append(out.Children, convertPart(child))
	}
	return out
}

// decodeBase64URL decodes Gmail's URL-safe base64, padded or not.
func decodeBase64URL(data string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(data)
}

func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Name] = h.Value
	}
	return m
}

func parseMessageDate(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
