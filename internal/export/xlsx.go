// Package export renders batch-run results as an XLSX workbook.
package export

import (
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/thevitaly/payme-smart/internal/pipeline"
)

// BatchXLSX returns a workbook with one row per processed attachment: the
// extracted fields when available, the failure reason when not.
func BatchXLSX(res *pipeline.BatchResult, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f := excelize.NewFile()
	const sheet = "Imports"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Filename",
		"Sender",
		"Amount",
		"Currency",
		"Date",
		"Description",
		"Invoice Number",
		"Is Invoice",
		"Dropbox URL",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range res.Results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.Filename)
		if r.Extraction.Success && r.Extraction.Data != nil {
			d := r.Extraction.Data
			write(2, deref(d.Sender))
			if d.Amount != nil {
				write(3, *d.Amount)
			}
			write(4, d.Currency)
			write(5, deref(d.Date))
			write(6, deref(d.Description))
			write(7, deref(d.InvoiceNumber))
			write(8, d.IsInvoice)
		} else {
			write(10, r.Extraction.Error)
		}
		write(9, r.BlobURL)
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	logger.Info("export.xlsx.ok", "rows", row-2, "bytes", buf.Len())
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
