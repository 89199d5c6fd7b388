package entity

// RawAnalysisResult is the decoded payload returned by the document analysis
// provider for one uploaded document.
type RawAnalysisResult struct {
	Documents []RecognizedDocument `json:"documents,omitempty"`
	Tables    []Table              `json:"tables,omitempty"`
}

// RecognizedDocument maps source field names to recognized values.
type RecognizedDocument struct {
	DocType string                     `json:"docType,omitempty"`
	Fields  map[string]RecognizedField `json:"fields"`
}

// RecognizedField is one recognized value with its confidence score.
type RecognizedField struct {
	Content     string   `json:"content,omitempty"`
	Confidence  float64  `json:"confidence"`
	ValueString *string  `json:"valueString,omitempty"`
	ValueNumber *float64 `json:"valueNumber,omitempty"`
}

// Scalar returns the best available value for the field: structured string,
// else structured number, else raw text content. ok is false when none is
// present.
func (f RecognizedField) Scalar() (value any, ok bool) {
	switch {
	case f.ValueString != nil:
		return *f.ValueString, true
	case f.ValueNumber != nil:
		return *f.ValueNumber, true
	case f.Content != "":
		return f.Content, true
	}
	return nil, false
}

// Table is a recognized row/column grid. Cell coordinates are zero-based;
// row 0 is the header row.
type Table struct {
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	Cells       []Cell `json:"cells"`
}

// Cell is one cell of a recognized table.
type Cell struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Content     string `json:"content"`
}
