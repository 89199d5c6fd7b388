package mapping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-capture/internal/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const invoiceMappingJSON = `{
	"contentType": "Vendor Invoice",
	"model": "prebuilt-invoice",
	"confidenceThreshold": 0.8,
	"fields": [
		{"diField": "InvoiceId", "stateKey": "invoiceId", "validation": "non-empty"},
		{"diField": "InvoiceTotal", "stateKey": "total", "transformation": "currencyToFloat", "validation": "currency"}
	],
	"lineItems": {"columns": [
		{"name": "Date", "transformation": "dateToISO"},
		{"name": "Total", "transformation": "currencyToFloat", "validation": "currency"}
	]}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRegistry(t *testing.T, cfg common.MappingsConfig) *Registry {
	t.Helper()
	r, err := NewRegistry(cfg, testLogger())
	require.NoError(t, err)
	return r
}

func TestRegistryLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "invoice.json", invoiceMappingJSON)

	r := newTestRegistry(t, common.MappingsConfig{Dir: dir, Strict: true})

	m, err := r.Get(context.Background(), "Vendor Invoice")
	require.NoError(t, err)
	assert.Equal(t, "prebuilt-invoice", m.Model)
	require.NotNil(t, m.ConfidenceThreshold)
	assert.Equal(t, 0.8, *m.ConfidenceThreshold)
	require.Len(t, m.Fields, 2)
	assert.Equal(t, "invoiceId", m.Fields[0].Key())
	require.NotNil(t, m.LineItems)
	assert.Len(t, m.LineItems.Columns, 2)

	// a file added after first load is invisible until Invalidate
	writeFile(t, dir, "receipt.json", `{"contentType": "Meal Receipt", "fields": [{"diField": "Total"}]}`)
	_, err = r.Get(context.Background(), "Meal Receipt")
	assert.ErrorIs(t, err, common.ErrNotFound)

	r.Invalidate()
	_, err = r.Get(context.Background(), "Meal Receipt")
	assert.NoError(t, err)
}

func TestRegistryNotFound(t *testing.T) {
	r := newTestRegistry(t, common.MappingsConfig{Dir: t.TempDir(), Strict: true})

	_, err := r.Get(context.Background(), "Unknown Type")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = r.Default(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegistryIgnoresUnnamedMappings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "unnamed.json", `{"fields": [{"diField": "Total"}]}`)
	writeFile(t, dir, "invoice.json", invoiceMappingJSON)

	r := newTestRegistry(t, common.MappingsConfig{Dir: dir, Strict: true})

	names, err := r.ContentTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Vendor Invoice"}, names)
}

func TestRegistryLoadsDefaultMappingSeparately(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.json", `{"fields": [{"diField": "Total", "stateKey": "total"}]}`)

	r := newTestRegistry(t, common.MappingsConfig{Dir: t.TempDir(), DefaultPath: defaultPath, Strict: true})

	def, err := r.Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "total", def.Fields[0].Key())
}

func TestRegistryLoadsYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "parking.yaml", `
contentType: Parking Receipt
confidenceThreshold: 0.6
fields:
  - diField: Total
    stateKey: total
    transformation: currencyToFloat
    validation: currency
`)

	r := newTestRegistry(t, common.MappingsConfig{Dir: dir, Strict: true})

	m, err := r.Get(context.Background(), "Parking Receipt")
	require.NoError(t, err)
	require.NotNil(t, m.ConfidenceThreshold)
	assert.Equal(t, 0.6, *m.ConfidenceThreshold)
	assert.Equal(t, "currencyToFloat", m.Fields[0].Transformation)
}

func TestRegistryRejectsDuplicateStateKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dup.json", `{
		"contentType": "Duplicates",
		"fields": [
			{"diField": "Subtotal", "stateKey": "amount"},
			{"diField": "Total", "stateKey": "amount"}
		]
	}`)

	r := newTestRegistry(t, common.MappingsConfig{Dir: dir, Strict: true})

	_, err := r.Get(context.Background(), "Duplicates")
	assert.ErrorIs(t, err, common.ErrNotFound, "bad mapping files are absent, not partially loaded")
}

func TestRegistryRejectsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"contentType": "Bad", "fields": "not-an-array"}`)
	writeFile(t, dir, "threshold.json", `{"contentType": "Bad2", "confidenceThreshold": 1.5, "fields": []}`)
	writeFile(t, dir, "garbage.json", `{{{{`)

	r := newTestRegistry(t, common.MappingsConfig{Dir: dir, Strict: true})

	names, err := r.ContentTypes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRegistryStrictRejectsUnknownNames(t *testing.T) {
	content := `{
		"contentType": "Odd Names",
		"fields": [{"diField": "Total", "transformation": "toUpperCase"}]
	}`

	strictDir := t.TempDir()
	writeFile(t, strictDir, "odd.json", content)
	strict := newTestRegistry(t, common.MappingsConfig{Dir: strictDir, Strict: true})
	_, err := strict.Get(context.Background(), "Odd Names")
	assert.ErrorIs(t, err, common.ErrNotFound)

	lenientDir := t.TempDir()
	writeFile(t, lenientDir, "odd.json", content)
	lenient := newTestRegistry(t, common.MappingsConfig{Dir: lenientDir, Strict: false})
	m, err := lenient.Get(context.Background(), "Odd Names")
	require.NoError(t, err, "lenient mode keeps the original silent no-op behavior")
	assert.Equal(t, "toUpperCase", m.Fields[0].Transformation)
}

func TestRegistryMissingDirFailsLoudlyAndRetries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not-yet")
	r := newTestRegistry(t, common.MappingsConfig{Dir: dir, Strict: true})

	_, err := r.Get(context.Background(), "Vendor Invoice")
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrNotFound), "a broken registry is not a per-mapping miss")

	// the failed load is not memoized; creating the dir heals the registry
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeFile(t, dir, "invoice.json", invoiceMappingJSON)
	_, err = r.Get(context.Background(), "Vendor Invoice")
	assert.NoError(t, err)
}

func TestRegistryConcurrentFirstAccess(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "invoice.json", invoiceMappingJSON)
	r := newTestRegistry(t, common.MappingsConfig{Dir: dir, Strict: true})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := r.Get(context.Background(), "Vendor Invoice")
			assert.NoError(t, err)
			assert.NotNil(t, m)
		}()
	}
	wg.Wait()
}
