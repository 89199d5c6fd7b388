package entity

// FieldMapping describes how one document content-type's recognized fields
// translate into application field keys.
type FieldMapping struct {
	ContentType         string           `json:"contentType,omitempty"`
	Model               string           `json:"model,omitempty"`
	ConfidenceThreshold *float64         `json:"confidenceThreshold,omitempty"`
	Fields              []FieldRule      `json:"fields"`
	LineItems           *LineItemMapping `json:"lineItems,omitempty"`
}

// FieldRule maps one recognized field to an application key.
type FieldRule struct {
	DIField        string   `json:"diField"`
	StateKey       string   `json:"stateKey,omitempty"`
	Transformation string   `json:"transformation,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Validation     string   `json:"validation,omitempty"`
}

// Key returns the destination key for the rule, defaulting to the source
// field name when no stateKey is set.
func (r FieldRule) Key() string {
	if r.StateKey != "" {
		return r.StateKey
	}
	return r.DIField
}

// LineItemMapping describes how table columns map to named line-item columns.
type LineItemMapping struct {
	Columns []ColumnRule `json:"columns"`
}

// ColumnRule maps one table column, matched by header substring, to a named
// line-item column.
type ColumnRule struct {
	Name           string `json:"name"`
	Transformation string `json:"transformation,omitempty"`
	Validation     string `json:"validation,omitempty"`
}

// FieldRules adapts the column rules for transformation dispatch, treating
// each column name as its own destination key.
func (m *LineItemMapping) FieldRules() []FieldRule {
	if m == nil {
		return nil
	}
	rules := make([]FieldRule, len(m.Columns))
	for i, c := range m.Columns {
		rules[i] = FieldRule{DIField: c.Name, Transformation: c.Transformation, Validation: c.Validation}
	}
	return rules
}
