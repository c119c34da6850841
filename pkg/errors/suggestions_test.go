package errors

import (
	"strings"
	"testing"
)

func TestFindBestSuggestionsCommonTypos(t *testing.T) {
	tests := []struct {
		typo string
		want string
	}{
		{"lamdba", "lambda"},
		{"defmarco", "defmacro"},
		{"qoute", "quote"},
		{"cosn", "cons"},
		{"nill", "nil"},
	}

	for _, tt := range tests {
		results := FindBestSuggestions(tt.typo, nil, nil)
		if len(results) != 1 || results[0].Suggestion != tt.want {
			t.Errorf("FindBestSuggestions(%q) = %v, want exactly [%q]", tt.typo, results, tt.want)
		}
		if results[0].Score != 1.0 {
			t.Errorf("known typo %q should score 1.0, got %v", tt.typo, results[0].Score)
		}
	}
}

func TestFindBestSuggestionsFuzzy(t *testing.T) {
	candidates := []string{"make-adder", "make-counter", "fold", "unrelated-thing"}

	results := FindBestSuggestions("make-addr", candidates, nil)
	if len(results) == 0 {
		t.Fatal("expected at least one suggestion")
	}
	if results[0].Suggestion != "make-adder" {
		t.Errorf("best suggestion = %q, want make-adder", results[0].Suggestion)
	}

	// Exact matches are never suggested back.
	for _, r := range FindBestSuggestions("fold", candidates, nil) {
		if r.Suggestion == "fold" {
			t.Error("exact match offered as suggestion")
		}
	}
}

func TestFindBestSuggestionsRespectsLimits(t *testing.T) {
	config := &SuggestionConfig{
		MaxSuggestions:          1,
		MaxDistance:             3,
		MinSimilarityScore:      0.5,
		ShowMultipleSuggestions: false,
	}

	candidates := []string{"count", "counts", "counter", "counted"}
	results := FindBestSuggestions("countz", candidates, config)
	if len(results) > 1 {
		t.Errorf("MaxSuggestions=1 but got %d results", len(results))
	}
}

func TestFormatSuggestions(t *testing.T) {
	one := []SuggestionResult{{Suggestion: "fold"}}
	if got := FormatSuggestions(one, true); got != "Did you mean 'fold'?" {
		t.Errorf("single suggestion = %q", got)
	}

	two := []SuggestionResult{{Suggestion: "fold"}, {Suggestion: "foldr"}}
	if got := FormatSuggestions(two, true); got != "Did you mean 'fold' or 'foldr'?" {
		t.Errorf("two suggestions = %q", got)
	}
	if got := FormatSuggestions(two, false); got != "Did you mean 'fold'?" {
		t.Errorf("multiple disallowed = %q", got)
	}

	three := []SuggestionResult{{Suggestion: "a"}, {Suggestion: "b"}, {Suggestion: "c"}}
	if got := FormatSuggestions(three, true); !strings.Contains(got, "'a', 'b', or 'c'") {
		t.Errorf("three suggestions = %q", got)
	}

	if got := FormatSuggestions(nil, true); got != "" {
		t.Errorf("no suggestions = %q", got)
	}
}

func TestGetVariableSuggestion(t *testing.T) {
	got := GetVariableSuggestion("make-addr", []string{"make-adder"})
	if !strings.Contains(got, "make-adder") {
		t.Errorf("missing fuzzy match: %q", got)
	}
	if !strings.Contains(got, "(def make-addr ...)") {
		t.Errorf("missing def hint: %q", got)
	}

	got = GetVariableSuggestion("zzz", []string{"make-adder"})
	if !strings.Contains(got, "(def zzz ...)") {
		t.Errorf("no-match case should still hint at def: %q", got)
	}
}

func TestGetMacroSuggestion(t *testing.T) {
	got := GetMacroSuggestion("wehn", []string{"when", "unless"})
	if !strings.Contains(got, "when") {
		t.Errorf("missing macro match: %q", got)
	}

	got = GetMacroSuggestion("frobnicate", []string{"when"})
	if !strings.Contains(got, "defmacro") {
		t.Errorf("no-match case should mention defmacro: %q", got)
	}
}

func TestDetectMissingBracket(t *testing.T) {
	unbalancedOpen := "(def f (lambda (x)\n  (+ x 1)"
	got := DetectMissingBracket(unbalancedOpen, 2, len("  (+ x 1)"))
	if !strings.Contains(got, "closing parenthesis") {
		t.Errorf("unclosed form not detected: %q", got)
	}

	unbalancedClose := "(+ 1 2))"
	got = DetectMissingBracket(unbalancedClose, 1, len(unbalancedClose))
	if !strings.Contains(got, "no matching opening") {
		t.Errorf("stray close paren not detected: %q", got)
	}

	balanced := "(+ 1 2)"
	if got := DetectMissingBracket(balanced, 1, len(balanced)); got != "" {
		t.Errorf("balanced source flagged: %q", got)
	}
}

func TestDetectUnclosedString(t *testing.T) {
	if got := DetectUnclosedString(`(def s "hello)`, 1); !strings.Contains(got, "Unclosed string") {
		t.Errorf("unclosed string not detected: %q", got)
	}

	if got := DetectUnclosedString(`(def s "hello")`, 1); got != "" {
		t.Errorf("closed string flagged: %q", got)
	}

	// An escaped quote does not close the string; an escaped quote pair
	// inside a closed string is fine.
	if got := DetectUnclosedString(`(def s "say \"hi\"")`, 1); got != "" {
		t.Errorf("escaped quotes flagged: %q", got)
	}

	// ' is quote syntax, not a string delimiter.
	if got := DetectUnclosedString(`(car '(1 2 3))`, 1); got != "" {
		t.Errorf("quote syntax flagged as string: %q", got)
	}
}

func TestGetTypeMismatchSuggestion(t *testing.T) {
	if got := GetTypeMismatchSuggestion("cons", "nil", ""); !strings.Contains(got, "car/cdr") {
		t.Errorf("cons/nil case = %q", got)
	}
	if got := GetTypeMismatchSuggestion("int", "string", ""); !strings.Contains(got, "integers") {
		t.Errorf("int/string case = %q", got)
	}
	if got := GetTypeMismatchSuggestion("function", "int", ""); !strings.Contains(got, "call position") {
		t.Errorf("function case = %q", got)
	}
	got := GetTypeMismatchSuggestion("symbol", "char", "map-retrieve")
	if !strings.Contains(got, "symbol") || !strings.Contains(got, "map-retrieve") {
		t.Errorf("default case = %q", got)
	}
}

func TestGetRuntimeSuggestion(t *testing.T) {
	got := GetRuntimeSuggestion("variable_not_found", map[string]interface{}{"name": "fold"})
	if !strings.Contains(got, "fold") {
		t.Errorf("variable_not_found = %q", got)
	}

	got = GetRuntimeSuggestion("arity_mismatch", map[string]interface{}{"expected": 2, "received": 3})
	if !strings.Contains(got, "2") || !strings.Contains(got, "3") {
		t.Errorf("arity_mismatch = %q", got)
	}

	if got := GetRuntimeSuggestion("division_by_zero", nil); !strings.Contains(got, "divisor") {
		t.Errorf("division_by_zero = %q", got)
	}

	if got := GetRuntimeSuggestion("stack_depth_exceeded", nil); !strings.Contains(got, "recursion") {
		t.Errorf("stack_depth_exceeded = %q", got)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"x", "make-adder", "int?", "set!", "string-concat", "&rest", "m::n"}
	for _, s := range valid {
		if !IsValidIdentifier(s) {
			t.Errorf("IsValidIdentifier(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "1x", "(foo", "a b", `has"quote`, "semi;colon"}
	for _, s := range invalid {
		if IsValidIdentifier(s) {
			t.Errorf("IsValidIdentifier(%q) = true, want false", s)
		}
	}
}

func TestSuggestValidIdentifier(t *testing.T) {
	if got := SuggestValidIdentifier(""); !strings.Contains(got, "empty") {
		t.Errorf("empty case = %q", got)
	}
	if got := SuggestValidIdentifier("1st"); !strings.Contains(got, "digit") {
		t.Errorf("digit case = %q", got)
	}
	if got := SuggestValidIdentifier("fo(o"); !strings.Contains(got, "foo") {
		t.Errorf("reserved-rune case should offer cleaned name: %q", got)
	}
}
