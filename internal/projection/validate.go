package projection

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/receipt-capture/constants"
)

// Rule checks one transformed value. Rules are permissive: absence of a rule
// name, or an unrecognized name, always passes.
type Rule func(value any) bool

var (
	reISODate  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	reUnsigned = regexp.MustCompile(`^(?:\d+)(?:\.\d+)?$`)
)

var rules = map[string]Rule{
	constants.ValidationNonEmpty: func(value any) bool {
		return strings.TrimSpace(stringify(value)) != ""
	},
	constants.ValidationISODate: func(value any) bool {
		return reISODate.MatchString(stringify(value))
	},
	constants.ValidationCurrency: func(value any) bool {
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return reUnsigned.MatchString(stringify(value))
	},
}

// KnownRule reports whether name is a registered validation rule. The mapping
// registry uses it to reject unknown names at load time.
func KnownRule(name string) bool {
	_, ok := rules[name]
	return ok
}

// Validate applies the named rule to a transformed value. A nil value always
// fails a named rule; an empty or unknown rule name always passes.
func Validate(value any, rule string) bool {
	if rule == "" {
		return true
	}
	fn, ok := rules[rule]
	if !ok {
		return true
	}
	if value == nil {
		return false
	}
	return fn(value)
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}
