package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/receipt-capture/constants"
	"github.com/joseph-ayodele/receipt-capture/internal/analysis"
	"github.com/joseph-ayodele/receipt-capture/internal/entity"
	"github.com/joseph-ayodele/receipt-capture/internal/lineitems"
	"github.com/joseph-ayodele/receipt-capture/internal/mapping"
	"github.com/joseph-ayodele/receipt-capture/internal/projection"
	"github.com/joseph-ayodele/receipt-capture/internal/transform"
)

// Processor is the seam the transport layer calls into: one raw analysis
// result in, one projected record plus line items out.
type Processor struct {
	Logger           *slog.Logger
	Mappings         mapping.Source
	Analyzer         analysis.Analyzer
	DefaultThreshold float64
}

func NewProcessor(logger *slog.Logger, mappings mapping.Source, analyzer analysis.Analyzer) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Logger:           logger,
		Mappings:         mappings,
		Analyzer:         analyzer,
		DefaultThreshold: constants.DefaultConfidenceThreshold,
	}
}

// ProcessDocument projects one raw analysis result through a mapping. Only
// the first recognized document carries fields; tables from the whole result
// feed line-item extraction. Processing is stateless, so documents of a
// batch may run fully in parallel.
func (p *Processor) ProcessDocument(raw *entity.RawAnalysisResult, m *entity.FieldMapping) entity.DocumentResult {
	threshold := p.DefaultThreshold
	if m != nil && m.ConfidenceThreshold != nil {
		threshold = *m.ConfidenceThreshold
	}

	var doc entity.RecognizedDocument
	if len(raw.Documents) > 0 {
		doc = raw.Documents[0]
	}
	record := projection.Project(doc, m, threshold)

	items := make([]entity.LineItem, 0)
	if m != nil {
		items = lineitems.Extract(raw.Tables, m.LineItems)
		items = filterLineItems(items, m.LineItems)
	}

	result := entity.DocumentResult{
		ID:         uuid.New(),
		Data:       record.Data,
		Confidence: record.Confidence,
		LineItems:  items,
	}
	if m != nil {
		result.ContentType = m.ContentType
	}

	p.Logger.Info("project.ok",
		"result_id", result.ID,
		"content_type", result.ContentType,
		"fields", len(result.Data),
		"line_items", len(result.LineItems),
	)
	return result
}

// BatchInput is one document of a batch upload. Either Document bytes (sent
// to the analyzer) or a pre-decoded Raw result must be set.
type BatchInput struct {
	FileName    string
	ContentType string
	MimeType    string
	Document    []byte
	Raw         *entity.RawAnalysisResult
}

// ProcessBatch analyzes and projects a batch of documents in parallel;
// results keep the input order. The first hard failure (mapping lookup,
// analysis call) cancels the batch.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []BatchInput) ([]entity.DocumentResult, error) {
	results := make([]entity.DocumentResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)

	for i, input := range inputs {
		g.Go(func() error {
			m, err := p.resolveMapping(gctx, input.ContentType)
			if err != nil {
				return err
			}

			raw := input.Raw
			if raw == nil {
				if p.Analyzer == nil {
					return fmt.Errorf("no analyzer configured for %q", input.FileName)
				}
				model := p.modelFor(m, input.ContentType)
				raw, err = p.Analyzer.Analyze(gctx, input.Document, model, input.MimeType)
				if err != nil {
					return fmt.Errorf("analyze %q: %w", input.FileName, err)
				}
			}

			result := p.ProcessDocument(raw, m)
			result.FileName = input.FileName
			result.Model = p.modelFor(m, input.ContentType)
			if result.ContentType == "" {
				result.ContentType = input.ContentType
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RevalidateEdits re-runs transformations and validation rules over
// human-edited field values, matching the behavior of the upload path.
// The record is mutated in place; failing fields are deleted.
func (p *Processor) RevalidateEdits(m *entity.FieldMapping, fields map[string]any) map[string]any {
	if m == nil {
		return fields
	}
	transform.Apply(m.Fields, fields)
	for _, rule := range m.Fields {
		key := rule.Key()
		value, present := fields[key]
		if !present || value == nil {
			continue
		}
		if !projection.Validate(value, rule.Validation) {
			delete(fields, key)
		}
	}
	return fields
}

// resolveMapping falls back to the default mapping when no content type is
// selected. A missing mapping for a named content type is a caller-level
// failure, not a silent drop.
func (p *Processor) resolveMapping(ctx context.Context, contentType string) (*entity.FieldMapping, error) {
	if contentType == "" {
		return p.Mappings.Default(ctx)
	}
	return p.Mappings.Get(ctx, contentType)
}

func (p *Processor) modelFor(m *entity.FieldMapping, contentType string) string {
	if m != nil && m.Model != "" {
		return m.Model
	}
	return constants.ModelForContentType(contentType)
}

// filterLineItems keeps only mapped columns whose transformed values pass
// the column's validation rule; items left with no columns are dropped.
func filterLineItems(items []entity.LineItem, m *entity.LineItemMapping) []entity.LineItem {
	if len(items) == 0 || m == nil || len(m.Columns) == 0 {
		return items
	}
	cleaned := make([]entity.LineItem, 0, len(items))
	for _, item := range items {
		kept := entity.LineItem{}
		for _, col := range m.Columns {
			value, ok := item[col.Name]
			if !ok || value == nil {
				continue
			}
			if !projection.Validate(value, col.Validation) {
				continue
			}
			kept[col.Name] = value
		}
		if len(kept) > 0 {
			cleaned = append(cleaned, kept)
		}
	}
	return cleaned
}
