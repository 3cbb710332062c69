package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/auth"
	"github.com/thevitaly/payme-smart/internal/docext"
	"github.com/thevitaly/payme-smart/internal/dropbox"
	"github.com/thevitaly/payme-smart/internal/entity"
	"github.com/thevitaly/payme-smart/internal/gmail"
	"github.com/thevitaly/payme-smart/internal/llm"
	"github.com/thevitaly/payme-smart/internal/pipeline"
	"github.com/thevitaly/payme-smart/internal/repository"
	"github.com/thevitaly/payme-smart/internal/review"
)

// --- fakes ---

type memTokenRepo struct {
	tokens map[constants.TokenProvider]*entity.OAuthToken
}

func (r *memTokenRepo) Latest(_ context.Context, p constants.TokenProvider) (*entity.OAuthToken, error) {
	return r.tokens[p], nil
}

func (r *memTokenRepo) Upsert(_ context.Context, t *entity.OAuthToken) error {
	r.tokens[t.Provider] = t
	return nil
}

func (r *memTokenRepo) DeleteAll(_ context.Context, p constants.TokenProvider) error {
	delete(r.tokens, p)
	return nil
}

type memMailAPI struct {
	messages    map[string]*gmail.RawMessage
	attachments map[string][]byte
}

func (m *memMailAPI) Search(context.Context, string, int64) ([]string, error) {
	var ids []string
	for id := range m.messages {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memMailAPI) Fetch(_ context.Context, id string) (*gmail.RawMessage, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("no message %s", id)
	}
	return msg, nil
}

func (m *memMailAPI) Attachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	data, ok := m.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("no attachment %s", attachmentID)
	}
	return data, nil
}

type memExpenseRepo struct {
	created int64
}

func (r *memExpenseRepo) CreateFromImport(_ context.Context, req *repository.CreateExpenseRequest) (*entity.Expense, error) {
	r.created++
	return &entity.Expense{ID: r.created, Amount: req.Amount, Currency: req.Currency, Description: req.Description}, nil
}

type memAuditRepo struct {
	records []*entity.AuditRecord
}

func (r *memAuditRepo) Append(_ context.Context, rec *entity.AuditRecord) error {
	rec.ID = int64(len(r.records) + 1)
	rec.DecidedAt = time.Now()
	r.records = append(r.records, rec)
	return nil
}

func (r *memAuditRepo) ListRecent(_ context.Context, limit int) ([]*entity.AuditRecord, error) {
	if limit > len(r.records) {
		limit = len(r.records)
	}
	return r.records[:limit], nil
}

type stubExtractor struct{}

func (stubExtractor) ExtractFromText(_ context.Context, _, filename string) llm.ExtractionResult {
	amount := 42.0
	sender := "Acme"
	return llm.SuccessResult(filename, &llm.InvoiceFields{Sender: &sender, Amount: &amount, Currency: "EUR", IsInvoice: true})
}

func (s stubExtractor) ExtractFromImage(_ context.Context, _ []byte, _, filename string) llm.ExtractionResult {
	return s.ExtractFromText(context.Background(), "", filename)
}

func (s stubExtractor) ExtractFromEmail(context.Context, string, string, string) llm.ExtractionResult {
	return s.ExtractFromText(context.Background(), "", "email_text")
}

type stubRunner struct{}

func (stubRunner) Run(context.Context, string, ...string) ([]byte, []byte, error) {
	return []byte("Invoice text long enough for the boundary"), nil, nil
}

// --- harness ---

type harness struct {
	server   *Server
	items    *review.Store
	expenses *memExpenseRepo
	audit    *memAuditRepo
	tokens   *memTokenRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tokenRepo := &memTokenRepo{tokens: map[constants.TokenProvider]*entity.OAuthToken{
		constants.ProviderGmail: {
			Provider:    constants.ProviderGmail,
			AccessToken: "tok",
			Identity:    "me@example.com",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}}
	oauthCfg := &oauth2.Config{ClientID: "id", ClientSecret: "sec", RedirectURL: "http://localhost/cb"}
	tokens := auth.NewStore(tokenRepo, oauthCfg, oauthCfg, "dropbox-static", nil)

	api := &memMailAPI{
		messages: map[string]*gmail.RawMessage{
			"m1": {
				ID: "m1", Subject: "Invoice June", From: "billing@acme.test", Date: time.Now(),
				Root: &entity.MessagePart{Children: []*entity.MessagePart{
					{MimeType: "text/plain", Body: "see attached"},
					{MimeType: "application/pdf", Filename: "inv.pdf", AttachmentID: "att-1"},
				}},
			},
		},
		attachments: map[string][]byte{"att-1": []byte("%PDF")},
	}
	mail := gmail.NewConnector(func(context.Context) (gmail.MailAPI, error) { return api, nil }, nil)

	blobSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sharing/create_shared_link_with_settings" {
			w.Write([]byte(`{"url":"https://www.dropbox.com/s/x/inv.pdf?dl=0"}`))
			return
		}
		if r.URL.Path == "/users/get_current_account" {
			w.Write([]byte(`{"email":"me@dropbox.test","name":{"display_name":"Me"}}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(blobSrv.Close)
	blobs := dropbox.NewClient(tokens, dropbox.Config{ContentURL: blobSrv.URL, RPCURL: blobSrv.URL}, nil, nil)

	docs := docext.NewExtractor(docext.Config{}, stubRunner{}, nil)
	items := review.NewStore()
	expenses := &memExpenseRepo{}
	audit := &memAuditRepo{}
	workflow := review.NewWorkflow(items, expenses, audit, nil)
	proc := pipeline.NewProcessor(mail, blobs, docs, stubExtractor{}, items, nil)

	srv := New(Deps{
		Tokens:      tokens,
		Mail:        mail,
		Processor:   proc,
		Workflow:    workflow,
		Audit:       audit,
		Blobs:       blobs,
		FrontendURL: "http://localhost:5175",
		Identity: func(context.Context, *oauth2.Token) (string, error) {
			return "me@example.com", nil
		},
	}, nil)

	return &harness{server: srv, items: items, expenses: expenses, audit: audit, tokens: tokenRepo}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("bad json %q: %v", rec.Body.String(), err)
	}
	return m
}

// --- tests ---

func TestGmailStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/gmail/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode(t, rec)
	if m["connected"] != true || m["email"] != "me@example.com" {
		t.Errorf("body = %v", m)
	}
}

func TestAuthURLResponseKey(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/gmail/auth-url", "/api/dropbox/auth-url"} {
		rec := h.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		m := decode(t, rec)
		// the frontend contract keys on authUrl
		url, ok := m["authUrl"].(string)
		if !ok || url == "" {
			t.Errorf("%s response lacks authUrl; body = %v", path, m)
		}
	}
}

func TestGmailDisconnect(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/gmail/disconnect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := h.tokens.tokens[constants.ProviderGmail]; ok {
		t.Error("token not deleted")
	}
}

func TestFetchEmails(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/gmail/fetch-emails", map[string]any{
		"startDate": "2025-06-01", "endDate": "2025-07-01",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	m := decode(t, rec)
	if m["count"] != float64(1) {
		t.Errorf("count = %v", m["count"])
	}
}

func TestFetchEmailsRejectsBadDates(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/gmail/fetch-emails", map[string]any{
		"startDate": "01.06.2025", "endDate": "2025-07-01",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode(t, rec)["error"] == "" {
		t.Error("missing error body")
	}
}

func TestProcessAttachmentEndpoint(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/gmail/process-attachment", map[string]any{
		"messageId": "m1",
		"subject":   "Invoice June",
		"from":      "billing@acme.test",
		"attachment": map[string]any{
			"filename": "inv.pdf", "mimeType": "application/pdf", "attachmentId": "att-1",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	m := decode(t, rec)
	if m["success"] != true {
		t.Errorf("body = %v", m)
	}
	if m["dropboxUrl"] != "https://dl.dropboxusercontent.com/s/x/inv.pdf" {
		t.Errorf("dropboxUrl = %v", m["dropboxUrl"])
	}
	if m["reviewItemId"] == "" {
		t.Error("missing review item id")
	}
}

func TestAcceptRejectLifecycle(t *testing.T) {
	h := newHarness(t)

	// process first so a review item exists
	rec := h.do(t, http.MethodPost, "/api/gmail/process-attachment", map[string]any{
		"messageId": "m1",
		"attachment": map[string]any{
			"filename": "inv.pdf", "attachmentId": "att-1",
		},
	})
	itemID := decode(t, rec)["reviewItemId"].(string)

	rec = h.do(t, http.MethodPost, "/api/gmail/accept-invoice", map[string]any{"itemId": itemID})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d body=%s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["expenseId"] != float64(1) {
		t.Error("missing expense id")
	}

	// second decision conflicts
	rec = h.do(t, http.MethodPost, "/api/gmail/accept-invoice", map[string]any{"itemId": itemID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second accept status = %d", rec.Code)
	}
	rec = h.do(t, http.MethodPost, "/api/gmail/reject-invoice", map[string]any{"itemId": itemID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("reject after accept status = %d", rec.Code)
	}

	if h.expenses.created != 1 {
		t.Errorf("expenses = %d", h.expenses.created)
	}
	if len(h.audit.records) != 1 {
		t.Errorf("audit = %d", len(h.audit.records))
	}
}

func TestRejectUnknownItem(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/gmail/reject-invoice", map[string]any{
		"itemId": "7e2a3a3c-0000-4000-8000-000000000000",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAcceptInvalidUUID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/gmail/accept-invoice", map[string]any{"itemId": "not-a-uuid"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuditEndpoint(t *testing.T) {
	h := newHarness(t)
	h.audit.records = []*entity.AuditRecord{
		{ID: 1, MessageID: "m1", Decision: constants.DecisionReject, ExtractedData: "{}"},
	}
	rec := h.do(t, http.MethodGet, "/api/gmail/audit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode(t, rec)
	records := m["records"].([]any)
	if len(records) != 1 {
		t.Errorf("records = %d", len(records))
	}
}

func TestDropboxStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/dropbox/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode(t, rec)
	if m["connected"] != true || m["email"] != "me@dropbox.test" {
		t.Errorf("body = %v", m)
	}
}

func TestProcessEmailTextEndpoint(t *testing.T) {
	h := newHarness(t)
	longBody := make([]byte, 800)
	for i := range longBody {
		longBody[i] = 'a'
	}
	rec := h.do(t, http.MethodPost, "/api/gmail/process-email-text", map[string]any{
		"messageId": "m1", "subject": "Pay", "from": "x@y.z", "bodyText": string(longBody),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	m := decode(t, rec)
	if len(m["emailText"].(string)) != 500 {
		t.Errorf("emailText len = %d, want 500", len(m["emailText"].(string)))
	}
}

func TestProcessEmailTextPreviewKeepsRunesWhole(t *testing.T) {
	h := newHarness(t)
	body := strings.Repeat("счёт на оплату ", 60) // well past the 500-byte preview
	rec := h.do(t, http.MethodPost, "/api/gmail/process-email-text", map[string]any{
		"messageId": "m1", "subject": "Счёт", "from": "x@y.z", "bodyText": body,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	preview := decode(t, rec)["emailText"].(string)
	if len(preview) > 500 {
		t.Errorf("preview len = %d, want at most 500", len(preview))
	}
	if !utf8.ValidString(preview) {
		t.Error("preview contains invalid UTF-8")
	}
}
