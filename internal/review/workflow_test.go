package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/entity"
	"github.com/thevitaly/payme-smart/internal/repository"
)

type fakeExpenseRepo struct {
	created []*repository.CreateExpenseRequest
	err     error
	nextID  int64
}

func (f *fakeExpenseRepo) CreateFromImport(_ context.Context, req *repository.CreateExpenseRequest) (*entity.Expense, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	f.nextID++
	return &entity.Expense{
		ID:          f.nextID,
		Description: req.Description,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CreatedAt:   time.Now(),
	}, nil
}

type fakeAuditRepo struct {
	records []*entity.AuditRecord
	err     error
}

func (f *fakeAuditRepo) Append(_ context.Context, rec *entity.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	rec.ID = int64(len(f.records) + 1)
	rec.DecidedAt = time.Now()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAuditRepo) ListRecent(context.Context, int) ([]*entity.AuditRecord, error) {
	out := make([]*entity.AuditRecord, len(f.records))
	for i := range f.records {
		out[len(f.records)-1-i] = f.records[i]
	}
	return out, nil
}

func pendingItem(extraction string) *entity.ReviewItem {
	return &entity.ReviewItem{
		SourceMessageID: "msg-1",
		Subject:         "Invoice June",
		From:            "billing@acme.test",
		MessageDate:     time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC),
		Filename:        "invoice.pdf",
		Stored: &entity.StoredDocument{
			BlobPath:     "/PayMe/EmailImports/1_invoice.pdf",
			ShareableURL: "https://dl.dropboxusercontent.com/s/x/invoice.pdf",
			Filename:     "invoice.pdf",
		},
		ExtractionJSON: []byte(extraction),
		CreatedAt:      time.Now(),
	}
}

const goodExtraction = `{"sender":"Acme GmbH","amount":250.00,"currency":"EUR","date":"2025-06-01","description":null,"invoiceNumber":"INV-9","isInvoice":true}`

func newTestWorkflow() (*Workflow, *fakeExpenseRepo, *fakeAuditRepo) {
	expenses := &fakeExpenseRepo{}
	audit := &fakeAuditRepo{}
	return NewWorkflow(NewStore(), expenses, audit, nil), expenses, audit
}

func TestAcceptCreatesExpenseAndAudit(t *testing.T) {
	w, expenses, audit := newTestWorkflow()
	item := pendingItem(goodExtraction)
	w.Items().Add(item)

	exp, err := w.Accept(context.Background(), &AcceptRequest{ItemID: item.ID})
	if err != nil {
		t.Fatal(err)
	}
	if exp.Amount != 250.00 || exp.Currency != "EUR" {
		t.Errorf("expense = %+v", exp)
	}
	if len(expenses.created) != 1 {
		t.Fatalf("created %d expenses", len(expenses.created))
	}
	req := expenses.created[0]
	// no description extracted, so the sender fallback applies
	if req.Description != "Invoice from Acme GmbH" {
		t.Errorf("description = %q", req.Description)
	}
	if !strings.HasPrefix(req.OriginalText, "Email: Invoice June | From: billing@acme.test") {
		t.Errorf("original text = %q", req.OriginalText)
	}
	if req.BlobURL != item.Stored.ShareableURL {
		t.Errorf("blob url = %q", req.BlobURL)
	}

	if len(audit.records) != 1 {
		t.Fatalf("appended %d audit records", len(audit.records))
	}
	rec := audit.records[0]
	if rec.Decision != constants.DecisionAccept {
		t.Errorf("decision = %q", rec.Decision)
	}
	if rec.ExpenseID == nil || *rec.ExpenseID != exp.ID {
		t.Errorf("expense id = %v, want %d", rec.ExpenseID, exp.ID)
	}
	if rec.MessageID != "msg-1" || rec.AttachmentFilename != "invoice.pdf" {
		t.Errorf("audit record = %+v", rec)
	}

	got, _ := w.Items().Get(item.ID)
	if got.Status != constants.ReviewAccepted {
		t.Errorf("status = %q", got.Status)
	}
}

func TestAcceptOverridesWin(t *testing.T) {
	w, expenses, _ := newTestWorkflow()
	item := pendingItem(goodExtraction)
	w.Items().Add(item)

	amount := 99.99
	_, err := w.Accept(context.Background(), &AcceptRequest{
		ItemID:      item.ID,
		Amount:      &amount,
		Currency:    "USD",
		Description: "Corrected description",
	})
	if err != nil {
		t.Fatal(err)
	}
	req := expenses.created[0]
	if req.Amount != 99.99 || req.Currency != "USD" || req.Description != "Corrected description" {
		t.Errorf("overrides not applied: %+v", req)
	}
}

func TestAcceptWithoutAmountFails(t *testing.T) {
	w, expenses, _ := newTestWorkflow()
	item := pendingItem(`{"sender":"Acme","amount":null,"currency":"EUR","isInvoice":true}`)
	w.Items().Add(item)

	if _, err := w.Accept(context.Background(), &AcceptRequest{ItemID: item.ID}); err == nil {
		t.Fatal("expected error when no amount is available")
	}
	if len(expenses.created) != 0 {
		t.Error("no expense must be written")
	}
	// item reverts so the operator can retry with an explicit amount
	got, _ := w.Items().Get(item.ID)
	if got.Status != constants.ReviewPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestSecondDecisionRejected(t *testing.T) {
	w, expenses, audit := newTestWorkflow()
	item := pendingItem(goodExtraction)
	w.Items().Add(item)

	if _, err := w.Accept(context.Background(), &AcceptRequest{ItemID: item.ID}); err != nil {
		t.Fatal(err)
	}

	// accept again
	if _, err := w.Accept(context.Background(), &AcceptRequest{ItemID: item.ID}); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("second accept err = %v, want ErrAlreadyDecided", err)
	}
	// reject after accept
	if err := w.Reject(context.Background(), &RejectRequest{ItemID: item.ID}); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("reject after accept err = %v, want ErrAlreadyDecided", err)
	}

	if len(expenses.created) != 1 {
		t.Errorf("expenses = %d, want exactly 1", len(expenses.created))
	}
	if len(audit.records) != 1 {
		t.Errorf("audit records = %d, want exactly 1", len(audit.records))
	}
}

func TestRejectWritesAuditOnly(t *testing.T) {
	w, expenses, audit := newTestWorkflow()
	item := pendingItem(goodExtraction)
	w.Items().Add(item)

	if err := w.Reject(context.Background(), &RejectRequest{ItemID: item.ID, Reason: "duplicate"}); err != nil {
		t.Fatal(err)
	}
	if len(expenses.created) != 0 {
		t.Error("reject must not touch the ledger")
	}
	if len(audit.records) != 1 {
		t.Fatalf("audit records = %d", len(audit.records))
	}
	rec := audit.records[0]
	if rec.Decision != constants.DecisionReject {
		t.Errorf("decision = %q", rec.Decision)
	}
	if rec.ExpenseID != nil {
		t.Error("rejected record must carry no expense id")
	}
	if !strings.Contains(rec.ExtractedData, "duplicate") {
		t.Errorf("reason not recorded: %s", rec.ExtractedData)
	}

	got, _ := w.Items().Get(item.ID)
	if got.Status != constants.ReviewRejected {
		t.Errorf("status = %q", got.Status)
	}
}

func TestAcceptRevertsOnLedgerFailure(t *testing.T) {
	expenses := &fakeExpenseRepo{err: errors.New("db down")}
	audit := &fakeAuditRepo{}
	w := NewWorkflow(NewStore(), expenses, audit, nil)
	item := pendingItem(goodExtraction)
	w.Items().Add(item)

	if _, err := w.Accept(context.Background(), &AcceptRequest{ItemID: item.ID}); err == nil {
		t.Fatal("expected ledger failure to surface")
	}
	got, _ := w.Items().Get(item.ID)
	if got.Status != constants.ReviewPending {
		t.Errorf("status = %q, want pending after revert", got.Status)
	}
	if len(audit.records) != 0 {
		t.Error("no audit record on failed accept")
	}
}

func TestUnknownItem(t *testing.T) {
	w, _, _ := newTestWorkflow()
	if _, err := w.Accept(context.Background(), &AcceptRequest{ItemID: uuid.New()}); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}
