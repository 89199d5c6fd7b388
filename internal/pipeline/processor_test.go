package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-capture/internal/common"
	"github.com/joseph-ayodele/receipt-capture/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string   { return &s }
func numPtr(f float64) *float64 { return &f }

// stubSource serves a fixed mapping per content type.
type stubSource struct {
	byType map[string]*entity.FieldMapping
	def    *entity.FieldMapping
}

func (s *stubSource) Get(_ context.Context, contentType string) (*entity.FieldMapping, error) {
	if m, ok := s.byType[contentType]; ok {
		return m, nil
	}
	return nil, common.NewAppError("MAPPING_NOT_FOUND", contentType, common.ErrNotFound)
}

func (s *stubSource) Default(_ context.Context) (*entity.FieldMapping, error) {
	if s.def == nil {
		return nil, common.NewAppError("MAPPING_NOT_FOUND", "default", common.ErrNotFound)
	}
	return s.def, nil
}

// stubAnalyzer returns a canned result and counts calls.
type stubAnalyzer struct {
	result *entity.RawAnalysisResult
	calls  atomic.Int64
}

func (a *stubAnalyzer) Analyze(_ context.Context, _ []byte, _, _ string) (*entity.RawAnalysisResult, error) {
	a.calls.Add(1)
	return a.result, nil
}

func invoiceMapping() *entity.FieldMapping {
	return &entity.FieldMapping{
		ContentType:         "Vendor Invoice",
		Model:               "prebuilt-invoice",
		ConfidenceThreshold: numPtr(0.7),
		Fields: []entity.FieldRule{
			{DIField: "InvoiceId", StateKey: "invoiceId", Validation: "non-empty"},
			{DIField: "InvoiceTotal", StateKey: "total", Transformation: "currencyToFloat", Validation: "currency"},
		},
		LineItems: &entity.LineItemMapping{
			Columns: []entity.ColumnRule{
				{Name: "Date", Transformation: "dateToISO", Validation: "YYYY-MM-DD"},
				{Name: "Total", Transformation: "currencyToFloat", Validation: "currency"},
			},
		},
	}
}

func invoiceResult() *entity.RawAnalysisResult {
	return &entity.RawAnalysisResult{
		Documents: []entity.RecognizedDocument{{
			Fields: map[string]entity.RecognizedField{
				"InvoiceId":    {Content: "INV-9", Confidence: 0.96},
				"InvoiceTotal": {Content: "$55.00", Confidence: 0.72},
			},
		}},
		Tables: []entity.Table{{
			RowCount:    3,
			ColumnCount: 2,
			Cells: []entity.Cell{
				{RowIndex: 0, ColumnIndex: 0, Content: "Date"},
				{RowIndex: 0, ColumnIndex: 1, Content: "Total"},
				{RowIndex: 1, ColumnIndex: 0, Content: "08/06/2025"},
				{RowIndex: 1, ColumnIndex: 1, Content: "$10.00"},
				{RowIndex: 2, ColumnIndex: 0, Content: "tbd"},
				{RowIndex: 2, ColumnIndex: 1, Content: "n/a"},
			},
		}},
	}
}

func TestProcessDocument(t *testing.T) {
	p := NewProcessor(testLogger(), &stubSource{}, nil)

	result := p.ProcessDocument(invoiceResult(), invoiceMapping())

	assert.Equal(t, "Vendor Invoice", result.ContentType)
	assert.Equal(t, map[string]any{"invoiceId": "INV-9", "total": 55.0}, result.Data)
	assert.Equal(t, map[string]float64{"invoiceId": 0.96, "total": 0.72}, result.Confidence)

	// mapping threshold 0.7 admits the 0.72 total; row 2 fails both column
	// validations and is dropped entirely
	require.Len(t, result.LineItems, 1)
	assert.Equal(t, entity.LineItem{"Date": "2025-08-06", "Total": 10.0}, result.LineItems[0])
}

func TestProcessDocumentUsesDefaultThresholdWithoutMappingOverride(t *testing.T) {
	m := invoiceMapping()
	m.ConfidenceThreshold = nil
	p := NewProcessor(testLogger(), &stubSource{}, nil)

	result := p.ProcessDocument(invoiceResult(), m)

	assert.NotContains(t, result.Data, "total", "0.72 is below the 0.75 default")
	assert.Equal(t, "INV-9", result.Data["invoiceId"])
}

func TestProcessDocumentNoDocuments(t *testing.T) {
	p := NewProcessor(testLogger(), &stubSource{}, nil)

	result := p.ProcessDocument(&entity.RawAnalysisResult{}, invoiceMapping())

	assert.Empty(t, result.Data)
	assert.Empty(t, result.Confidence)
	assert.Empty(t, result.LineItems)
}

func TestProcessBatchWithAnalyzer(t *testing.T) {
	analyzer := &stubAnalyzer{result: invoiceResult()}
	source := &stubSource{byType: map[string]*entity.FieldMapping{"Vendor Invoice": invoiceMapping()}}
	p := NewProcessor(testLogger(), source, analyzer)

	results, err := p.ProcessBatch(context.Background(), []BatchInput{
		{FileName: "a.pdf", ContentType: "Vendor Invoice", MimeType: "application/pdf", Document: []byte("pdf-a")},
		{FileName: "b.pdf", ContentType: "Vendor Invoice", MimeType: "application/pdf", Document: []byte("pdf-b")},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), analyzer.calls.Load())
	assert.Equal(t, "a.pdf", results[0].FileName)
	assert.Equal(t, "b.pdf", results[1].FileName)
	assert.Equal(t, "prebuilt-invoice", results[0].Model)
	assert.Equal(t, "INV-9", results[0].Data["invoiceId"])
}

func TestProcessBatchPreDecodedResults(t *testing.T) {
	source := &stubSource{def: invoiceMapping()}
	p := NewProcessor(testLogger(), source, nil)

	results, err := p.ProcessBatch(context.Background(), []BatchInput{
		{FileName: "saved.json", Raw: invoiceResult()},
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "saved.json", results[0].FileName)
	assert.Equal(t, 55.0, results[0].Data["total"])
}

func TestProcessBatchMappingNotFound(t *testing.T) {
	p := NewProcessor(testLogger(), &stubSource{}, nil)

	_, err := p.ProcessBatch(context.Background(), []BatchInput{
		{FileName: "a.pdf", ContentType: "Unknown", Raw: invoiceResult()},
	})

	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRevalidateEdits(t *testing.T) {
	p := NewProcessor(testLogger(), &stubSource{}, nil)
	edited := map[string]any{
		"invoiceId": "INV-9 (corrected)",
		"total":     "$60.00",
	}

	got := p.RevalidateEdits(invoiceMapping(), edited)

	assert.Equal(t, 60.0, got["total"], "review edits go through the same transforms as uploads")
	assert.Equal(t, "INV-9 (corrected)", got["invoiceId"])

	blanked := map[string]any{"invoiceId": "   "}
	got = p.RevalidateEdits(invoiceMapping(), blanked)
	assert.NotContains(t, got, "invoiceId")
}
