package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/receipt-capture/internal/common"
	"github.com/joseph-ayodele/receipt-capture/internal/entity"
	"github.com/joseph-ayodele/receipt-capture/internal/projection"
	"github.com/joseph-ayodele/receipt-capture/internal/transform"
)

// Source abstracts mapping lookup for the pipeline.
type Source interface {
	Get(ctx context.Context, contentType string) (*entity.FieldMapping, error)
	Default(ctx context.Context) (*entity.FieldMapping, error)
}

// Registry loads field-mapping files from a directory, validates them, and
// caches them for the process lifetime. The cache populates at most once
// under concurrent first access; readers never block each other afterwards.
type Registry struct {
	dir         string
	defaultPath string
	strict      bool
	logger      *slog.Logger
	schema      *jsonschema.Schema

	group  singleflight.Group
	mu     sync.RWMutex
	loaded bool
	byType map[string]*entity.FieldMapping
	def    *entity.FieldMapping
}

// NewRegistry builds a registry over cfg.Dir. With cfg.Strict, mappings
// naming unknown transformations or validation rules are rejected at load;
// without it they load and silently no-op, matching the lenient behavior
// test fixtures rely on.
func NewRegistry(cfg common.MappingsConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := CompileMappingSchema()
	if err != nil {
		return nil, fmt.Errorf("mapping schema: %w", err)
	}
	return &Registry{
		dir:         cfg.Dir,
		defaultPath: cfg.DefaultPath,
		strict:      cfg.Strict,
		logger:      logger,
		schema:      schema,
	}, nil
}

// Get returns the mapping for a content type, or a not-found error.
func (r *Registry) Get(ctx context.Context, contentType string) (*entity.FieldMapping, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byType[contentType]
	if !ok {
		return nil, common.NewAppError("MAPPING_NOT_FOUND", fmt.Sprintf("no field mapping for content type %q", contentType), common.ErrNotFound)
	}
	return m, nil
}

// Default returns the unnamed default mapping, or a not-found error when no
// default file is configured or it failed to load.
func (r *Registry) Default(ctx context.Context) (*entity.FieldMapping, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.def == nil {
		return nil, common.NewAppError("MAPPING_NOT_FOUND", "no default field mapping configured", common.ErrNotFound)
	}
	return r.def, nil
}

// ContentTypes lists the loaded content types in sorted order.
func (r *Registry) ContentTypes(ctx context.Context) ([]string, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byType))
	for name := range r.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Invalidate discards the cache so the next access reloads from disk.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.byType = nil
	r.def = nil
}

// ensureLoaded populates the cache, memoizing on first success. Concurrent
// first callers share a single load via singleflight; a failed load is
// retried on the next access.
func (r *Registry) ensureLoaded(_ context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := r.group.Do("load", func() (any, error) {
		r.mu.RLock()
		loaded := r.loaded
		r.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		byType, def, err := r.loadAll()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.byType = byType
		r.def = def
		r.loaded = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

func (r *Registry) loadAll() (map[string]*entity.FieldMapping, *entity.FieldMapping, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.logger.Error("mappings.dir_error", "dir", r.dir, "error", err)
		return nil, nil, fmt.Errorf("read mappings dir: %w", err)
	}

	byType := make(map[string]*entity.FieldMapping)
	for _, e := range entries {
		if e.IsDir() || !isMappingFile(e.Name()) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		m, err := r.loadFile(path)
		if err != nil {
			r.logger.Error("mappings.load_error", "path", path, "error", err)
			continue
		}
		if m.ContentType == "" {
			r.logger.Warn("mappings.unnamed_ignored", "path", path)
			continue
		}
		if _, dup := byType[m.ContentType]; dup {
			r.logger.Error("mappings.duplicate_content_type", "path", path, "content_type", m.ContentType)
			continue
		}
		byType[m.ContentType] = m
	}

	var def *entity.FieldMapping
	if r.defaultPath != "" {
		def, err = r.loadFile(r.defaultPath)
		if err != nil {
			r.logger.Error("mappings.default_load_error", "path", r.defaultPath, "error", err)
			def = nil
		}
	}

	r.logger.Info("mappings.loaded", "dir", r.dir, "count", len(byType), "default", def != nil)
	return byType, def, nil
}

func (r *Registry) loadFile(path string) (*entity.FieldMapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		raw, err = yaml.YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("yaml to json: %w", err)
		}
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if err := r.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("mapping does not match schema: %w", err)
	}

	var m entity.FieldMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if err := r.checkMapping(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// checkMapping enforces the load-time configuration invariants the schema
// cannot express: duplicate destination keys are a configuration error, and
// in strict mode so is any unknown transformation or validation name.
func (r *Registry) checkMapping(m *entity.FieldMapping) error {
	v := common.NewValidator()
	v.Field("confidenceThreshold", m.ConfidenceThreshold, common.UnitInterval)

	seen := make(map[string]string, len(m.Fields))
	for i, rule := range m.Fields {
		field := fmt.Sprintf("fields[%d]", i)
		key := rule.Key()
		if prev, dup := seen[key]; dup {
			v.Fail(field+".stateKey", key, fmt.Sprintf("duplicate destination key (already used by %s)", prev))
		}
		seen[key] = field
		v.Field(field+".confidence", rule.Confidence, common.UnitInterval)
		if r.strict {
			r.checkNames(v, field, rule.Transformation, rule.Validation)
		}
	}

	if m.LineItems != nil {
		for i, col := range m.LineItems.Columns {
			field := fmt.Sprintf("lineItems.columns[%d]", i)
			if r.strict {
				r.checkNames(v, field, col.Transformation, col.Validation)
			}
		}
		r.warnOverlappingColumns(m)
	}
	return v.Error()
}

func (r *Registry) checkNames(v *common.Validator, field, transformation, validation string) {
	if transformation != "" && !transform.Known(transformation) {
		v.Fail(field+".transformation", transformation, "unknown transformation")
	}
	if validation != "" && !projection.KnownRule(validation) {
		v.Fail(field+".validation", validation, "unknown validation rule")
	}
}

// warnOverlappingColumns flags column names where one is a substring of
// another: header matching is independent per rule, so both rules can claim
// the same header cell. That is a mapping-design gap, not a load failure.
func (r *Registry) warnOverlappingColumns(m *entity.FieldMapping) {
	cols := m.LineItems.Columns
	for i := range cols {
		for j := range cols {
			if i == j {
				continue
			}
			a := strings.ToLower(strings.TrimSpace(cols[i].Name))
			b := strings.ToLower(strings.TrimSpace(cols[j].Name))
			if a != b && strings.Contains(b, a) {
				r.logger.Warn("mappings.ambiguous_columns",
					"content_type", m.ContentType, "column", cols[i].Name, "contains", cols[j].Name)
			}
		}
	}
}

func isMappingFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
