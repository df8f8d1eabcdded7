package scraper

import (
	"encoding/json"
	"testing"
)

func parseJSON(t *testing.T, raw string) interface{} {
	t.Helper()
	var out interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return out
}

func TestEvaluateAssertions(t *testing.T) {
	output := parseJSON(t, `{
		"url": "https://example.com",
		"title": "",
		"count": 12,
		"items": [{"name": "a"}, {"name": "b"}],
		"meta": {"page": {"number": 3}}
	}`)

	cases := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{"not empty", Assertion{Kind: AssertNotEmpty}, true},
		{"has field", Assertion{Kind: AssertHasField, Field: "url"}, true},
		{"has nested field", Assertion{Kind: AssertHasField, Field: "meta.page.number"}, true},
		{"missing field", Assertion{Kind: AssertHasField, Field: "price"}, false},
		{"field not empty", Assertion{Kind: AssertFieldNotEmpty, Field: "url"}, true},
		{"field empty", Assertion{Kind: AssertFieldNotEmpty, Field: "title"}, false},
		{"min items ok", Assertion{Kind: AssertMinItems, Field: "items", Expected: 2}, true},
		{"min items short", Assertion{Kind: AssertMinItems, Field: "items", Expected: 3}, false},
		{"min items non-list", Assertion{Kind: AssertMinItems, Field: "url", Expected: 1}, false},
		{"field type string", Assertion{Kind: AssertFieldType, Field: "url", Expected: "string"}, true},
		{"field type number", Assertion{Kind: AssertFieldType, Field: "count", Expected: "number"}, true},
		{"field type mismatch", Assertion{Kind: AssertFieldType, Field: "items", Expected: "object"}, false},
		{"custom eq", Assertion{Kind: AssertCustom, Field: "count", Comparator: CompareEq, Expected: 12}, true},
		{"custom ne", Assertion{Kind: AssertCustom, Field: "count", Comparator: CompareNe, Expected: 13}, true},
		{"custom gt", Assertion{Kind: AssertCustom, Field: "count", Comparator: CompareGt, Expected: 10}, true},
		{"custom lt fail", Assertion{Kind: AssertCustom, Field: "count", Comparator: CompareLt, Expected: 10}, false},
		{"custom gt non-numeric", Assertion{Kind: AssertCustom, Field: "url", Comparator: CompareGt, Expected: 1}, false},
		{"custom contains string", Assertion{Kind: AssertCustom, Field: "url", Comparator: CompareContains, Expected: "example"}, true},
		{"custom nested path", Assertion{Kind: AssertCustom, Field: "meta.page.number", Comparator: CompareEq, Expected: 3}, true},
		{"unknown kind", Assertion{Kind: "shell_out"}, false},
		{"unknown comparator", Assertion{Kind: AssertCustom, Field: "count", Comparator: "matches_regex", Expected: ".*"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details, passed, failed := EvaluateAssertions(output, []Assertion{tc.assertion})
			if len(details) != 1 {
				t.Fatalf("details = %d, want 1", len(details))
			}
			if details[0].Passed != tc.pass {
				t.Fatalf("passed = %v (%s), want %v", details[0].Passed, details[0].Message, tc.pass)
			}
			if tc.pass && (passed != 1 || failed != 0) {
				t.Fatalf("counts = %d/%d, want 1/0", passed, failed)
			}
			if !tc.pass && (passed != 0 || failed != 1) {
				t.Fatalf("counts = %d/%d, want 0/1", passed, failed)
			}
		})
	}
}

func TestEvaluateAssertionsCounts(t *testing.T) {
	output := parseJSON(t, `{"url": "https://example.com"}`)
	assertions := []Assertion{
		{Kind: AssertNotEmpty},
		{Kind: AssertHasField, Field: "url"},
		{Kind: AssertHasField, Field: "missing"},
	}
	details, passed, failed := EvaluateAssertions(output, assertions)
	if passed != 2 || failed != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", passed, failed)
	}
	if len(details) != 3 {
		t.Fatalf("details = %d, want 3", len(details))
	}
	// Descriptions are filled in when callers omit them.
	if details[1].Description != "has_field(url)" {
		t.Fatalf("generated description = %q", details[1].Description)
	}
}

func TestDefaultAssertionsDemandURLField(t *testing.T) {
	withURL := parseJSON(t, `{"url": "https://example.com"}`)
	if _, passed, failed := EvaluateAssertions(withURL, DefaultAssertions()); passed != 2 || failed != 0 {
		t.Fatalf("counts with url = %d/%d, want 2/0", passed, failed)
	}
	withoutURL := parseJSON(t, `{"data": [1]}`)
	if _, _, failed := EvaluateAssertions(withoutURL, DefaultAssertions()); failed != 1 {
		t.Fatalf("missing url field not caught, failed = %d", failed)
	}
}
