package projection

import (
	"github.com/joseph-ayodele/receipt-capture/internal/entity"
	"github.com/joseph-ayodele/receipt-capture/internal/transform"
)

// Project converts one recognized document into an application-shaped record.
//
// Field rules run in declared order: absent source fields are skipped, fields
// below the effective threshold (per-rule override, else defaultThreshold)
// are dropped, and the best scalar value is renamed to the rule's destination
// key. Transformations run once over the whole record after extraction, then
// every surviving key is checked against its rule's validation; failures are
// deleted from data and confidence together. All drops are silent; partial
// extraction is expected and corrected during human review.
func Project(doc entity.RecognizedDocument, mapping *entity.FieldMapping, defaultThreshold float64) entity.ProjectedRecord {
	record := entity.NewProjectedRecord()
	if mapping == nil || len(mapping.Fields) == 0 {
		return record
	}

	for _, rule := range mapping.Fields {
		field, ok := doc.Fields[rule.DIField]
		if !ok {
			continue
		}
		threshold := defaultThreshold
		if rule.Confidence != nil {
			threshold = *rule.Confidence
		}
		if field.Confidence < threshold {
			continue
		}
		value, ok := field.Scalar()
		if !ok {
			continue
		}
		key := rule.Key()
		record.Data[key] = value
		record.Confidence[key] = field.Confidence
	}

	transform.Apply(mapping.Fields, record.Data)

	for _, rule := range mapping.Fields {
		key := rule.Key()
		value, present := record.Data[key]
		if !present || value == nil {
			continue
		}
		if !Validate(value, rule.Validation) {
			delete(record.Data, key)
			delete(record.Confidence, key)
		}
	}

	return record
}
