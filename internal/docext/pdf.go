package docext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pdfText shells out to pdftotext and applies the scanned-document boundary:
// fewer than minTextLength characters means the PDF has no text layer and the
// model must not be invoked on it.
func (e *Extractor) pdfText(ctx context.Context, data []byte, filename string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "payme-pdf-*")
	if err != nil {
		return "", err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("docext.pdf.tmp_cleanup_failed", "path", path, "error", err)
		}
	}(tmpDir)

	tmpFile := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return "", err
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", tmpFile, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w (%s)", err, strings.TrimSpace(string(errb)))
	}

	text := string(out)
	pages := 1 + strings.Count(text, "\f")
	e.logger.Info("docext.pdf.ok", "filename", filename, "pages", pages, "text_len", len(text))

	if len(strings.TrimSpace(text)) < minTextLength {
		return "", ErrScannedPDF
	}
	return text, nil
}
