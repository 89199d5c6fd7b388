package constants

// Transformation names as they appear in mapping files.
const (
	TransformCurrencyToFloat = "currencyToFloat"
	TransformDateToISO       = "dateToISO"
)

// Validation rule names as they appear in mapping files.
const (
	ValidationNonEmpty = "non-empty"
	ValidationISODate  = "YYYY-MM-DD"
	ValidationCurrency = "currency"
)

// DefaultConfidenceThreshold applies when a mapping specifies none.
const DefaultConfidenceThreshold = 0.75
