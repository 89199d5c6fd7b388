package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/receipt-capture/internal/analysis"
	"github.com/joseph-ayodele/receipt-capture/internal/common"
	"github.com/joseph-ayodele/receipt-capture/internal/entity"
	"github.com/joseph-ayodele/receipt-capture/internal/export"
	"github.com/joseph-ayodele/receipt-capture/internal/mapping"
	"github.com/joseph-ayodele/receipt-capture/internal/pipeline"
	"github.com/joseph-ayodele/receipt-capture/internal/staging"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

var mimeByExt = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

func main() {
	// Parse CLI flags
	var (
		input       = flag.String("input", "", "directory of documents to analyze, or saved analysis-result .json files (required)")
		contentType = flag.String("content-type", "", "content type selecting the field mapping (empty uses the default mapping)")
		out         = flag.String("out", "", "output XLSX file path (optional, defaults to <input>/../extracted.xlsx)")
		stage       = flag.Bool("stage", true, "stage projected results as review drafts")
	)
	flag.Parse()

	if *input == "" {
		printError("Error: --input is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*input), "extracted.xlsx")
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	registry, err := mapping.NewRegistry(cfg.Mappings, logger)
	if err != nil {
		logger.Error("failed to build mapping registry", "error", err)
		os.Exit(1)
	}

	// Setup analysis client (graceful if missing; saved results still work)
	var analyzer analysis.Analyzer
	if cfg.Analysis.Endpoint != "" {
		analyzer = analysis.NewClient(analysis.Config{
			Endpoint:   cfg.Analysis.Endpoint,
			APIKey:     cfg.Analysis.APIKey,
			APIVersion: cfg.Analysis.APIVersion,
			Timeout:    cfg.Analysis.Timeout,
		}, logger)
		logger.Info("analysis client initialized", "endpoint", cfg.Analysis.Endpoint)
	} else {
		logger.Warn("analysis endpoint not configured, only saved .json results will be processed")
	}

	processor := pipeline.NewProcessor(logger, registry, analyzer)

	inputs, err := collectInputs(*input, *contentType)
	if err != nil {
		logger.Error("failed to read input directory", "error", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		logger.Error("no processable files found", "input", *input)
		os.Exit(1)
	}

	logger.Info("processing batch", "files", len(inputs), "content_type", *contentType)
	results, err := processor.ProcessBatch(ctx, inputs)
	if err != nil {
		logger.Error("batch processing failed", "error", err)
		os.Exit(1)
	}

	if *stage {
		if err := stageResults(ctx, cfg.Staging.DBPath, results, logger); err != nil {
			logger.Error("failed to stage drafts", "error", err)
			os.Exit(1)
		}
	}

	// Resolve the mapping once more for export ordering; a missing default
	// mapping is tolerable here because projection already happened.
	var m *entity.FieldMapping
	if *contentType != "" {
		m, _ = registry.Get(ctx, *contentType)
	} else {
		m, _ = registry.Default(ctx)
	}

	book, err := export.NewService(logger).ExportResultsXLSX(results, m)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, book, 0o644); err != nil {
		logger.Error("failed to write workbook", "path", *out, "error", err)
		os.Exit(1)
	}

	fields := 0
	items := 0
	for _, res := range results {
		fields += len(res.Data)
		items += len(res.LineItems)
	}
	logger.Info("batch complete",
		"documents", len(results), "fields", fields, "line_items", items, "out", *out)
}

// collectInputs walks the input directory once, turning saved .json analysis
// results into pre-decoded inputs and known document types into analyzer
// inputs. Other files are skipped.
func collectInputs(dir, contentType string) ([]pipeline.BatchInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var inputs []pipeline.BatchInput
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		ext := strings.ToLower(filepath.Ext(e.Name()))

		if ext == ".json" {
			raw, err := loadSavedResult(path)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
			inputs = append(inputs, pipeline.BatchInput{
				FileName:    e.Name(),
				ContentType: contentType,
				Raw:         raw,
			})
			continue
		}

		mimeType, ok := mimeByExt[ext]
		if !ok {
			continue
		}
		doc, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		inputs = append(inputs, pipeline.BatchInput{
			FileName:    e.Name(),
			ContentType: contentType,
			MimeType:    mimeType,
			Document:    doc,
		})
	}
	return inputs, nil
}

func loadSavedResult(path string) (*entity.RawAnalysisResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		AnalyzeResult *entity.RawAnalysisResult `json:"analyzeResult"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.AnalyzeResult != nil {
		return envelope.AnalyzeResult, nil
	}
	var result entity.RawAnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func stageResults(ctx context.Context, dbPath string, results []entity.DocumentResult, logger *slog.Logger) error {
	db, err := staging.Open(ctx, dbPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("failed to close staging db", "error", cerr)
		}
	}()

	drafts := staging.NewDraftRepository(db, logger)
	for _, res := range results {
		if err := drafts.Save(ctx, staging.DraftFromResult(res)); err != nil {
			return err
		}
	}
	logger.Info("drafts staged", "count", len(results), "db", dbPath)
	return nil
}
