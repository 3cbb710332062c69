package docext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// spreadsheetText renders every sheet as a textual table: a "Sheet: <name>"
// header followed by comma-joined rows, sheets separated by blank lines.
func (e *Extractor) spreadsheetText(data []byte, filename string) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmptySpreadsheet, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("docext.xlsx.close_failed", "filename", filename, "error", err)
		}
	}()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			e.logger.Warn("docext.xlsx.sheet_read_failed", "sheet", name, "error", err)
			continue
		}
		var b strings.Builder
		b.WriteString("Sheet: ")
		b.WriteString(name)
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, ","))
			b.WriteString("\n")
		}
		sheets = append(sheets, b.String())
	}

	text := strings.Join(sheets, "\n")
	e.logger.Info("docext.xlsx.ok", "filename", filename, "sheets", len(sheets), "text_len", len(text))

	if len(strings.TrimSpace(text)) < minTextLength {
		return "", ErrEmptySpreadsheet
	}
	return text, nil
}
