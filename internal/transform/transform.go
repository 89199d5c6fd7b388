package transform

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/receipt-capture/constants"
	"github.com/joseph-ayodele/receipt-capture/internal/entity"
)

// Func is a pure, total transformation. Unparseable input degrades to nil or
// passes through unchanged; it never returns an error.
type Func func(value any) any

var registry = map[string]Func{
	constants.TransformCurrencyToFloat: CurrencyToFloat,
	constants.TransformDateToISO:       DateToISO,
}

// Lookup returns the named transformation, or nil when unknown.
func Lookup(name string) Func {
	return registry[name]
}

// Known reports whether name is a registered transformation. The mapping
// registry uses it to reject unknown names at load time.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// currencyJunk matches everything that is not a digit, '.', or '-'. This
// deliberately also strips grouping separators and currency symbols,
// multi-byte ones included.
var currencyJunk = regexp.MustCompile(`[^\d.-]`)

// CurrencyToFloat parses a currency-formatted string into a float64.
// Unparseable strings become nil; non-string values pass through unchanged.
func CurrencyToFloat(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	cleaned := currencyJunk.ReplaceAllString(s, "")
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return parsed
}

// Free-form layouts tried before the slash-date fallback. Covers already-ISO
// values and spelled-out dates like "Aug 6, 2025".
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"2006/01/02",
}

var slashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)

// DateToISO normalizes a free-form date string to YYYY-MM-DD. Values that
// cannot be parsed are returned unchanged; this is best-effort, not
// authoritative.
func DateToISO(value any) any {
	s, ok := value.(string)
	if !ok || s == "" {
		return value
	}
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if m := slashDate.FindStringSubmatch(trimmed); m != nil {
		month, day, year := m[1], m[2], m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		return year + "-" + pad2(month) + "-" + pad2(day)
	}
	return value
}

func pad2(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

// Apply runs each rule's named transformation against record in place and
// returns the same map. Rules without a transformation, rules naming an
// unregistered transformation, and absent or nil values are skipped.
func Apply(rules []entity.FieldRule, record map[string]any) map[string]any {
	for _, rule := range rules {
		if rule.Transformation == "" {
			continue
		}
		key := rule.Key()
		value, present := record[key]
		if !present || value == nil {
			continue
		}
		fn := Lookup(rule.Transformation)
		if fn == nil {
			continue
		}
		record[key] = fn(value)
	}
	return record
}
