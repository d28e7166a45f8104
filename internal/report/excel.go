// Package report renders sheets into .xlsx workbooks and persists them to a
// blob store.
package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
	"github.com/JakeFAU/area-listing-scraper/internal/storage"
)

// ContentType is the MIME type of generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExcelSink implements scraper.ReportSink over a blob store.
type ExcelSink struct {
	blobs  storage.BlobStore
	logger *zap.Logger
}

// NewExcelSink wires the sink to blobs.
func NewExcelSink(blobs storage.BlobStore, logger *zap.Logger) *ExcelSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelSink{blobs: blobs, logger: logger}
}

// WriteSpreadsheet renders sheet as a single-worksheet workbook named
// fileName and returns the stored location.
func (s *ExcelSink) WriteSpreadsheet(ctx context.Context, sheet scraper.Sheet, fileName string) (string, error) {
	buf, err := Render(sheet)
	if err != nil {
		return "", err
	}
	uri, err := s.blobs.PutObject(ctx, fileName, ContentType, buf)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", fileName, err)
	}
	s.logger.Info("report stored",
		zap.String("file", fileName),
		zap.String("sheet", sheet.Title),
		zap.Int("rows", len(sheet.Rows)),
		zap.String("uri", uri),
	)
	return uri, nil
}

// Render writes the header row followed by sheet.Rows into a workbook whose
// only worksheet is titled sheet.Title.
func Render(sheet scraper.Sheet) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	title := sheet.Title
	if title == "" {
		title = "Sheet1"
	}
	if title != "Sheet1" {
		if err := f.SetSheetName("Sheet1", title); err != nil {
			return nil, fmt.Errorf("name sheet: %w", err)
		}
	}

	header := make([]any, len(sheet.Columns))
	for i, col := range sheet.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(title, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range sheet.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := f.SetSheetRow(title, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if len(sheet.Columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(sheet.Columns))
		if err != nil {
			return nil, fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(title, "A", last, 24); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf, nil
}
