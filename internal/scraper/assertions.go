package scraper

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// Assertion kinds supported by the tester. Custom assertions are declarative
// (field path + comparator + literal); there is no expression evaluation.
const (
	AssertNotEmpty      = "not_empty"
	AssertHasField      = "has_field"
	AssertFieldNotEmpty = "field_not_empty"
	AssertMinItems      = "min_items"
	AssertFieldType     = "field_type"
	AssertCustom        = "custom"
)

// Comparators accepted by custom assertions.
const (
	CompareEq       = "eq"
	CompareNe       = "ne"
	CompareGt       = "gt"
	CompareLt       = "lt"
	CompareContains = "contains"
)

// Assertion is one declarative check against a scraper's extracted output.
type Assertion struct {
	Kind        string      `json:"kind"`
	Field       string      `json:"field,omitempty"` // dotted path into the output
	Expected    interface{} `json:"expected,omitempty"`
	Comparator  string      `json:"comparator,omitempty"`
	Description string      `json:"description,omitempty"`
}

// DefaultAssertions are applied when the caller supplies none.
func DefaultAssertions() []Assertion {
	return []Assertion{
		{Kind: AssertNotEmpty, Description: "output is non-empty"},
		{Kind: AssertHasField, Field: "url", Description: "output includes a url field"},
	}
}

// EvaluateAssertions runs every assertion against the parsed output and
// returns per-assertion details plus pass/fail counts.
func EvaluateAssertions(output interface{}, assertions []Assertion) ([]session.AssertionDetail, int, int) {
	details := make([]session.AssertionDetail, 0, len(assertions))
	passed, failed := 0, 0
	for _, a := range assertions {
		ok, msg := evaluateOne(output, a)
		desc := a.Description
		if desc == "" {
			desc = describeAssertion(a)
		}
		details = append(details, session.AssertionDetail{
			Kind:        a.Kind,
			Description: desc,
			Passed:      ok,
			Message:     msg,
		})
		if ok {
			passed++
		} else {
			failed++
		}
	}
	return details, passed, failed
}

func evaluateOne(output interface{}, a Assertion) (bool, string) {
	switch a.Kind {
	case AssertNotEmpty:
		if isEmpty(output) {
			return false, "output is empty"
		}
		return true, ""

	case AssertHasField:
		if _, ok := lookupField(output, a.Field); !ok {
			return false, fmt.Sprintf("field %q not found", a.Field)
		}
		return true, ""

	case AssertFieldNotEmpty:
		v, ok := lookupField(output, a.Field)
		if !ok {
			return false, fmt.Sprintf("field %q not found", a.Field)
		}
		if isEmpty(v) {
			return false, fmt.Sprintf("field %q is empty", a.Field)
		}
		return true, ""

	case AssertMinItems:
		v := output
		if a.Field != "" {
			var ok bool
			if v, ok = lookupField(output, a.Field); !ok {
				return false, fmt.Sprintf("field %q not found", a.Field)
			}
		}
		items, ok := v.([]interface{})
		if !ok {
			return false, fmt.Sprintf("field %q is not a list", a.Field)
		}
		want, ok := toFloat(a.Expected)
		if !ok {
			return false, "min_items expected count is not numeric"
		}
		if float64(len(items)) < want {
			return false, fmt.Sprintf("expected at least %v items, got %d", a.Expected, len(items))
		}
		return true, ""

	case AssertFieldType:
		v, ok := lookupField(output, a.Field)
		if !ok {
			return false, fmt.Sprintf("field %q not found", a.Field)
		}
		want, _ := a.Expected.(string)
		got := typeName(v)
		if got != want {
			return false, fmt.Sprintf("field %q has type %s, expected %s", a.Field, got, want)
		}
		return true, ""

	case AssertCustom:
		v, ok := lookupField(output, a.Field)
		if !ok {
			return false, fmt.Sprintf("field %q not found", a.Field)
		}
		return compare(v, a.Comparator, a.Expected)

	default:
		return false, fmt.Sprintf("unknown assertion kind %q", a.Kind)
	}
}

// lookupField traverses a dotted path through nested JSON objects. An empty
// path resolves to the output itself.
func lookupField(output interface{}, path string) (interface{}, bool) {
	if path == "" {
		return output, true
	}
	current := output
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func compare(v interface{}, comparator string, expected interface{}) (bool, string) {
	switch comparator {
	case CompareEq, "":
		if equals(v, expected) {
			return true, ""
		}
		return false, fmt.Sprintf("got %v, expected %v", v, expected)
	case CompareNe:
		if !equals(v, expected) {
			return true, ""
		}
		return false, fmt.Sprintf("got %v, expected anything else", v)
	case CompareGt, CompareLt:
		got, ok1 := toFloat(v)
		want, ok2 := toFloat(expected)
		if !ok1 || !ok2 {
			return false, "numeric comparison against non-numeric value"
		}
		if comparator == CompareGt && got > want {
			return true, ""
		}
		if comparator == CompareLt && got < want {
			return true, ""
		}
		return false, fmt.Sprintf("got %v, expected %s %v", got, comparator, want)
	case CompareContains:
		needle := fmt.Sprintf("%v", expected)
		switch typed := v.(type) {
		case string:
			if strings.Contains(typed, needle) {
				return true, ""
			}
			return false, fmt.Sprintf("%q does not contain %q", typed, needle)
		case []interface{}:
			for _, item := range typed {
				if equals(item, expected) {
					return true, ""
				}
			}
			return false, fmt.Sprintf("list does not contain %v", expected)
		default:
			return false, "contains requires a string or list"
		}
	default:
		return false, fmt.Sprintf("unknown comparator %q", comparator)
	}
}

func equals(a, b interface{}) bool {
	if af, ok1 := toFloat(a); ok1 {
		if bf, ok2 := toFloat(b); ok2 {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func isEmpty(v interface{}) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case map[string]interface{}:
		return len(typed) == 0
	case []interface{}:
		return len(typed) == 0
	default:
		return false
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, float32, int, int64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "object"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func describeAssertion(a Assertion) string {
	if a.Field != "" {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Field)
	}
	return a.Kind
}
