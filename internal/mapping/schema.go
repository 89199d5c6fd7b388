package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildMappingJSONSchema returns the JSON-Schema (draft 2020-12 subset) for
// field-mapping files as a generic map. Every mapping file is validated
// against it at load time, before decoding.
func BuildMappingJSONSchema() map[string]any {
	fieldRule := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"diField":        map[string]any{"type": "string", "minLength": 1},
			"stateKey":       map[string]any{"type": "string", "minLength": 1},
			"transformation": map[string]any{"type": "string"},
			"confidence":     map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"validation":     map[string]any{"type": "string"},
		},
		"required": []string{"diField"},
	}

	columnRule := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":           map[string]any{"type": "string", "minLength": 1},
			"transformation": map[string]any{"type": "string"},
			"validation":     map[string]any{"type": "string"},
		},
		"required": []string{"name"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"contentType":         map[string]any{"type": "string"},
			"model":               map[string]any{"type": "string"},
			"confidenceThreshold": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"fields": map[string]any{
				"type":  "array",
				"items": fieldRule,
			},
			"lineItems": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"columns": map[string]any{
						"type":  "array",
						"items": columnRule,
					},
				},
				"required": []string{"columns"},
			},
		},
		"required": []string{"fields"},
	}
}

// CompileMappingSchema compiles the mapping-file schema once for reuse across
// loads.
func CompileMappingSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(BuildMappingJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("fieldmapping.schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("fieldmapping.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
