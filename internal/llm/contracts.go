package llm

import "context"

// InvoiceFields is the normalized shape we want from the extraction model.
// Pointer fields are null when the model could not determine a value.
type InvoiceFields struct {
	Sender        *string  `json:"sender"`
	Amount        *float64 `json:"amount"`
	Currency      string   `json:"currency"`
	Date          *string  `json:"date"` // YYYY-MM-DD
	Description   *string  `json:"description"`
	InvoiceNumber *string  `json:"invoiceNumber"`
	IsInvoice     bool     `json:"isInvoice"`
}

// ExtractionResult is a tagged variant: Success carries Data, Failure carries
// Error. Never both, never partially populated.
type ExtractionResult struct {
	Success  bool           `json:"success"`
	Data     *InvoiceFields `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Filename string         `json:"filename"`
}

// Failure builds the failure variant.
func Failure(filename, errMsg string) ExtractionResult {
	return ExtractionResult{Success: false, Error: errMsg, Filename: filename}
}

// SuccessResult builds the success variant.
func SuccessResult(filename string, data *InvoiceFields) ExtractionResult {
	return ExtractionResult{Success: true, Data: data, Filename: filename}
}

// Extractor is the model-facing interface the pipeline depends on. All
// implementations absorb model and transport failures into the Failure
// variant; they never return an error or panic on malformed model output.
type Extractor interface {
	ExtractFromText(ctx context.Context, text, filename string) ExtractionResult
	ExtractFromImage(ctx context.Context, data []byte, mimeType, filename string) ExtractionResult
	ExtractFromEmail(ctx context.Context, body, subject, from string) ExtractionResult
}
