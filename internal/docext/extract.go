// Package docext turns document bytes into plain text for the extraction
// model. Images are not handled here: their bytes go straight to the
// vision-capable model call.
package docext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thevitaly/payme-smart/constants"
)

// minTextLength is the boundary below which a document counts as carrying no
// usable text (scanned PDFs, empty sheets).
const minTextLength = 10

// Typed adapter failures. These become Failure extraction results at the
// pipeline-item boundary and never invoke the model.
var (
	ErrScannedPDF       = errors.New("PDF is scanned/image-based, no text could be extracted")
	ErrEmptySpreadsheet = errors.New("spreadsheet is empty or could not be read")
	ErrWordUnsupported  = errors.New("Word documents not supported yet")
)

// UnsupportedFormatError reports a document kind we have no adapter for.
type UnsupportedFormatError struct {
	MimeType string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.MimeType)
}

// Config holds the external tool paths for local text extraction.
type Config struct {
	Pdftotext string // default "pdftotext"
}

// Extractor converts classified document bytes to text.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Text extracts plain text for the given document kind. IMAGE is a caller
// error here; route images to the vision call instead.
func (e *Extractor) Text(ctx context.Context, data []byte, kind constants.DocumentKind, filename, mimeType string) (string, error) {
	switch kind {
	case constants.PDF:
		return e.pdfText(ctx, data, filename)
	case constants.SPREADSHEET:
		return e.spreadsheetText(data, filename)
	case constants.WORD:
		return "", ErrWordUnsupported
	default:
		return "", &UnsupportedFormatError{MimeType: mimeType}
	}
}
