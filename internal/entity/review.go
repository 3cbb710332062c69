package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/thevitaly/payme-smart/constants"
)

// StoredDocument describes source bytes persisted in the blob store.
type StoredDocument struct {
	BlobPath     string `json:"path"`
	ShareableURL string `json:"url"`
	Filename     string `json:"filename"`
}

// ReviewItem is one extraction attempt awaiting a human accept/reject decision.
// Status moves pending -> accepted|rejected exactly once; terminal items never
// mutate again.
type ReviewItem struct {
	ID              uuid.UUID              `json:"id"`
	SourceMessageID string                 `json:"sourceMessageId"`
	Subject         string                 `json:"subject"`
	From            string                 `json:"from"`
	MessageDate     time.Time              `json:"messageDate"`
	Filename        string                 `json:"filename,omitempty"`
	Stored          *StoredDocument        `json:"storedDocument,omitempty"`
	ExtractionJSON  []byte                 `json:"-"`
	ExtractionError string                 `json:"extractionError,omitempty"`
	CategoryID      *int64                 `json:"categoryId,omitempty"`
	SubcategoryID   *int64                 `json:"subcategoryId,omitempty"`
	Status          constants.ReviewStatus `json:"status"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// AuditRecord captures one accept/reject decision. Append-only; rows are never
// updated after insert.
type AuditRecord struct {
	ID                 int64              `json:"id"`
	MessageID          string             `json:"emailId"`
	Subject            string             `json:"emailSubject"`
	From               string             `json:"emailFrom"`
	MessageDate        *time.Time         `json:"emailDate,omitempty"`
	AttachmentFilename string             `json:"attachmentFilename,omitempty"`
	BlobURL            string             `json:"dropboxUrl,omitempty"`
	ExtractedData      string             `json:"extractedData"` // serialized JSON payload
	Decision           constants.Decision `json:"decision"`
	ExpenseID          *int64             `json:"expenseId,omitempty"` // set only for accepted
	DecidedAt          time.Time          `json:"processedAt"`
}

// Expense is the committed ledger entry created on acceptance.
type Expense struct {
	ID            int64     `json:"id"`
	Description   string    `json:"description"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	CategoryID    *int64    `json:"categoryId,omitempty"`
	SubcategoryID *int64    `json:"subcategoryId,omitempty"`
	OriginalText  string    `json:"originalText"`
	BlobURL       string    `json:"dropboxUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
