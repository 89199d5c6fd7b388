package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-capture/constants"
)

// ProjectedRecord is the application-shaped output of field projection.
// Data and Confidence hold the same key set; fields are filtered and dropped
// together.
type ProjectedRecord struct {
	Data       map[string]any     `json:"data"`
	Confidence map[string]float64 `json:"confidence"`
}

// NewProjectedRecord returns an empty record with both maps allocated.
func NewProjectedRecord() ProjectedRecord {
	return ProjectedRecord{
		Data:       make(map[string]any),
		Confidence: make(map[string]float64),
	}
}

// LineItem is one extracted table row, keyed by mapping column name.
type LineItem map[string]any

// DocumentResult bundles everything the pipeline produces for one document.
type DocumentResult struct {
	ID          uuid.UUID          `json:"id"`
	FileName    string             `json:"file_name,omitempty"`
	ContentType string             `json:"content_type,omitempty"`
	Model       string             `json:"model"`
	Data        map[string]any     `json:"data"`
	Confidence  map[string]float64 `json:"confidence"`
	LineItems   []LineItem         `json:"lineItems"`
}

// Draft represents a staged document result awaiting human review.
type Draft struct {
	ID          uuid.UUID             `json:"id"`
	ContentType string                `json:"content_type"`
	FileName    string                `json:"file_name,omitempty"`
	Status      constants.DraftStatus `json:"status"`
	Data        map[string]any        `json:"data"`
	Confidence  map[string]float64    `json:"confidence"`
	LineItems   []LineItem            `json:"line_items"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}
