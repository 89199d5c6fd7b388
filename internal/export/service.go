package export

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipt-capture/internal/entity"
)

const (
	fieldsSheet    = "Fields"
	lineItemsSheet = "Line Items"
)

// Service produces XLSX bytes from processed documents, for reviewers who
// want the extraction result outside the app.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportResultsXLSX returns a workbook with one "Fields" sheet (field, value,
// confidence per document) and one "Line Items" sheet. The mapping fixes the
// field and column order; keys outside the mapping are appended sorted.
func (s *Service) ExportResultsXLSX(results []entity.DocumentResult, m *entity.FieldMapping) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	if err := ensureSheet(f, fieldsSheet); err != nil {
		return nil, err
	}

	writeRow(f, fieldsSheet, 1, []any{"File", "Content Type", "Field", "Value", "Confidence"})
	row := 2
	for _, res := range results {
		for _, key := range fieldOrder(res.Data, m) {
			confidence := any("")
			if c, ok := res.Confidence[key]; ok {
				confidence = c
			}
			writeRow(f, fieldsSheet, row, []any{res.FileName, res.ContentType, key, res.Data[key], confidence})
			row++
		}
	}
	_ = f.SetColWidth(fieldsSheet, "A", "B", 24)
	_ = f.SetColWidth(fieldsSheet, "C", "D", 28)
	_ = f.SetColWidth(fieldsSheet, "E", "E", 12)

	if err := s.writeLineItems(f, results, m); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeLineItems(f *excelize.File, results []entity.DocumentResult, m *entity.FieldMapping) error {
	var columns []string
	if m != nil && m.LineItems != nil {
		for _, col := range m.LineItems.Columns {
			columns = append(columns, col.Name)
		}
	}
	if len(columns) == 0 {
		return nil
	}
	if err := ensureSheet(f, lineItemsSheet); err != nil {
		return err
	}

	header := append([]any{"File"}, toAnySlice(columns)...)
	writeRow(f, lineItemsSheet, 1, header)

	row := 2
	for _, res := range results {
		for _, item := range res.LineItems {
			values := make([]any, 0, len(columns)+1)
			values = append(values, res.FileName)
			for _, col := range columns {
				values = append(values, item[col])
			}
			writeRow(f, lineItemsSheet, row, values)
			row++
		}
	}
	_ = f.SetColWidth(lineItemsSheet, "A", "A", 24)
	return nil
}

// fieldOrder yields present keys in mapping declaration order, then any
// remaining keys sorted.
func fieldOrder(data map[string]any, m *entity.FieldMapping) []string {
	keys := make([]string, 0, len(data))
	seen := make(map[string]bool, len(data))
	if m != nil {
		for _, rule := range m.Fields {
			key := rule.Key()
			if _, ok := data[key]; ok && !seen[key] {
				keys = append(keys, key)
				seen[key] = true
			}
		}
	}
	var rest []string
	for key := range data {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func ensureSheet(f *excelize.File, sheet string) error {
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(fieldsSheet)
	f.SetActiveSheet(activeIndex)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
