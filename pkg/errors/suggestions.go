package errors

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// SuggestionConfig controls suggestion behavior
type SuggestionConfig struct {
	MaxSuggestions          int
	MaxDistance             int
	MinSimilarityScore      float64
	ShowMultipleSuggestions bool
}

// DefaultSuggestionConfig returns the default configuration
func DefaultSuggestionConfig() *SuggestionConfig {
	return &SuggestionConfig{
		MaxSuggestions:          3,
		MaxDistance:             3,
		MinSimilarityScore:      0.5,
		ShowMultipleSuggestions: true,
	}
}

// SuggestionResult contains a suggestion with its confidence score
type SuggestionResult struct {
	Suggestion string
	Distance   int
	Score      float64
}

// Common typo patterns
var commonTypos = map[string]string{
	"lamdba":    "lambda",
	"lamda":     "lambda",
	"labmda":    "lambda",
	"defmarco":  "defmacro",
	"defmaco":   "defmacro",
	"qoute":     "quote",
	"qutoe":     "quote",
	"asert":     "assert",
	"asssert":   "assert",
	"cosn":      "cons",
	"carr":      "car",
	"cdrr":      "cdr",
	"treu":      "true",
	"flase":     "false",
	"nill":      "nil",
	"lenght":    "length",
	"strng":     "string",
	"integr":    "integer",
	"boolen":    "boolean",
	"reqiure":   "require",
	"requrie":   "require",
	"eport":     "export",
	"exprot":    "export",
}

// SyntaxPattern represents a common syntax error pattern
type SyntaxPattern struct {
	Pattern     string
	Description string
	Suggestion  string
}

// Common syntax patterns
var syntaxPatterns = []SyntaxPattern{
	{
		Pattern:     "missing opening",
		Description: "Missing opening parenthesis",
		Suggestion:  "Check that every form's parentheses are properly opened",
	},
	{
		Pattern:     "missing closing",
		Description: "Missing closing parenthesis",
		Suggestion:  "Check that every form's parentheses are properly closed",
	},
	{
		Pattern:     "unclosed string",
		Description: "String literal is not properly closed",
		Suggestion:  "Make sure all string literals have a matching closing quote (\")",
	},
	{
		Pattern:     "unexpected eof",
		Description: "Unexpected end of file",
		Suggestion:  "Check for an unclosed form or a dangling open parenthesis",
	},
}

// FindBestSuggestions ranks candidates by similarity to target. A known
// typo short-circuits with a single full-confidence correction; exact
// matches are never offered back.
func FindBestSuggestions(target string, candidates []string, config *SuggestionConfig) []SuggestionResult {
	if config == nil {
		config = DefaultSuggestionConfig()
	}

	if correction, ok := commonTypos[strings.ToLower(target)]; ok {
		return []SuggestionResult{{Suggestion: correction, Score: 1.0}}
	}

	var results []SuggestionResult
	for _, candidate := range candidates {
		if candidate == target {
			continue
		}
		distance := levenshteinDistance(target, candidate)
		if distance > config.MaxDistance {
			continue
		}
		score := similarityScore(target, candidate, distance)
		if score < config.MinSimilarityScore {
			continue
		}
		results = append(results, SuggestionResult{
			Suggestion: candidate,
			Distance:   distance,
			Score:      score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Distance < results[j].Distance
	})

	if len(results) > config.MaxSuggestions {
		results = results[:config.MaxSuggestions]
	}
	return results
}

// similarityScore normalizes edit distance into [0, 1], nudged upward
// for shared prefixes/suffixes (Lisp names tend to differ mid-word:
// string-upcase vs string-downcase) and for substring containment.
func similarityScore(s1, s2 string, distance int) float64 {
	longest := max(len(s1), len(s2))
	if longest == 0 {
		return 1.0
	}

	score := 1.0 - float64(distance)/float64(longest)

	l1, l2 := strings.ToLower(s1), strings.ToLower(s2)
	shortest := min2(len(l1), len(l2))

	for i := 0; i < shortest && i < 3 && l1[i] == l2[i]; i++ {
		score += 0.1
	}
	for i := 1; i <= shortest && i <= 2 && l1[len(l1)-i] == l2[len(l2)-i]; i++ {
		score += 0.05
	}
	if strings.Contains(l1, l2) || strings.Contains(l2, l1) {
		score += 0.2
	}
	if l1 == l2 {
		score += 0.3
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// FormatSuggestions renders ranked results as a "Did you mean ...?"
// sentence.
func FormatSuggestions(results []SuggestionResult, multipleAllowed bool) string {
	if len(results) == 0 {
		return ""
	}
	if len(results) == 1 || !multipleAllowed {
		return fmt.Sprintf("Did you mean '%s'?", results[0].Suggestion)
	}

	quoted := make([]string, len(results))
	for i, r := range results {
		quoted[i] = "'" + r.Suggestion + "'"
	}
	if len(quoted) == 2 {
		return fmt.Sprintf("Did you mean %s or %s?", quoted[0], quoted[1])
	}
	last := len(quoted) - 1
	return fmt.Sprintf("Did you mean %s, or %s?", strings.Join(quoted[:last], ", "), quoted[last])
}

// GetVariableSuggestion suggests variable names with enhanced fuzzy matching
func GetVariableSuggestion(varName string, availableVars []string) string {
	config := DefaultSuggestionConfig()
	results := FindBestSuggestions(varName, availableVars, config)

	if len(results) > 0 {
		suggestion := FormatSuggestions(results, config.ShowMultipleSuggestions)
		return fmt.Sprintf("%s Or define the variable with (def %s ...) before using it",
			suggestion, varName)
	}

	return fmt.Sprintf("Define the variable before using it: (def %s ...)", varName)
}

// GetFunctionSuggestion suggests function names
func GetFunctionSuggestion(funcName string, availableFuncs []string) string {
	config := DefaultSuggestionConfig()
	results := FindBestSuggestions(funcName, availableFuncs, config)

	if len(results) > 0 {
		return FormatSuggestions(results, config.ShowMultipleSuggestions)
	}

	return fmt.Sprintf("Function '%s' is not defined. Check the function name or define it.", funcName)
}

// GetTypeSuggestion suggests type-annotation names for an unknown scalar
// type in a parameter list.
func GetTypeSuggestion(typeName string, availableTypes []string) string {
	builtInTypes := []string{"int", "string", "symbol", "char", "bool", "list"}
	allTypes := append(builtInTypes, availableTypes...)

	config := DefaultSuggestionConfig()
	results := FindBestSuggestions(typeName, allTypes, config)

	if len(results) > 0 {
		return FormatSuggestions(results, config.ShowMultipleSuggestions)
	}

	return fmt.Sprintf("Unknown type '%s'. Valid scalar types are: int, string, symbol, char, bool, list", typeName)
}

// GetMacroSuggestion suggests registered macro names for an unresolved macro call
func GetMacroSuggestion(name string, registeredMacros []string) string {
	config := DefaultSuggestionConfig()
	config.MaxDistance = 5 // macro names can be longer than variable names
	results := FindBestSuggestions(name, registeredMacros, config)

	if len(results) > 0 {
		return FormatSuggestions(results, config.ShowMultipleSuggestions)
	}

	return fmt.Sprintf("Macro '%s' is not defined. Check for a missing defmacro.", name)
}

// DetectMissingBracket detects an unbalanced parenthesis count up to a source position
func DetectMissingBracket(source string, line, column int) string {
	lines := strings.Split(source, "\n")
	if line <= 0 || line > len(lines) {
		return ""
	}

	openParens := 0

	// Full lines before the error line, then the error line up to column.
	for i := 0; i < line-1; i++ {
		lineText := lines[i]
		for _, ch := range lineText {
			switch ch {
			case '(':
				openParens++
			case ')':
				openParens--
			}
		}
	}

	{
		lineText := lines[line-1]
		// A non-positive column means "the whole line".
		if column <= 0 {
			column = len(lineText)
		}
		for i := 0; i < column && i < len(lineText); i++ {
			switch lineText[i] {
			case '(':
				openParens++
			case ')':
				openParens--
			}
		}
	}

	if openParens > 0 {
		return fmt.Sprintf("Missing %d closing parenthesis(es) ')'", openParens)
	} else if openParens < 0 {
		return "Unexpected closing parenthesis ')' (no matching opening parenthesis)"
	}

	return ""
}

// DetectUnclosedString detects unclosed string literals
func DetectUnclosedString(source string, line int) string {
	lines := strings.Split(source, "\n")
	if line <= 0 || line > len(lines) {
		return ""
	}

	lineText := lines[line-1]

	// Only " delimits strings; ' is quote syntax, never a delimiter.
	open := false
	escaped := false

	for _, ch := range lineText {
		if escaped {
			escaped = false
			continue
		}

		if ch == '\\' {
			escaped = true
			continue
		}

		if ch == '"' {
			open = !open
		}
	}

	if open {
		return `Unclosed string literal (missing closing ")`
	}

	return ""
}

// GetTypeMismatchSuggestion provides enhanced type mismatch suggestions for the
// VM's runtime type tags (int, string, symbol, char, cons, nil, true, function, map)
func GetTypeMismatchSuggestion(expected, actual, context string) string {
	var suggestion strings.Builder

	switch {
	case expected == "cons" && actual == "nil":
		suggestion.WriteString("car/cdr expect a cons cell; nil has no pair to destructure")
	case expected == "int" && actual == "string":
		suggestion.WriteString("Arithmetic operators only accept integers; string values are never coerced")
	case expected == "int" && (actual == "cons" || actual == "nil"):
		suggestion.WriteString("Arithmetic operators only accept integers, not lists")
	case expected == "function":
		suggestion.WriteString("Only a lambda or native function value can appear in call position")
	default:
		suggestion.WriteString(fmt.Sprintf("Expected type '%s' but received '%s'", expected, actual))
		if context != "" {
			suggestion.WriteString(fmt.Sprintf(" in %s", context))
		}
	}

	return suggestion.String()
}

// GetRuntimeSuggestion provides context-aware suggestions for the VM's
// runtime error kinds (type mismatch, variable not found, arity mismatch,
// assertion failed, division by zero, stack depth exceeded).
func GetRuntimeSuggestion(errorType string, context map[string]interface{}) string {
	switch errorType {
	case "division_by_zero":
		return "Guard the divisor with (if (= divisor 0) ...) before dividing"

	case "variable_not_found":
		name := context["name"]
		if name != nil {
			return fmt.Sprintf("'%v' is not a local, upvalue, or global binding. Check for a missing (def %v ...) or a typo", name, name)
		}
		return "Check that the name is bound by a (def ...) or an enclosing lambda parameter"

	case "arity_mismatch":
		expected := context["expected"]
		received := context["received"]
		if expected != nil && received != nil {
			return fmt.Sprintf("This function expects %v argument(s) but was called with %v", expected, received)
		}
		return "Check the number of arguments passed against the lambda's parameter list"

	case "assertion_failed":
		return "The asserted expression evaluated to nil; check the condition being asserted"

	case "type_mismatch":
		return "The operation is not supported for this runtime type; check the value's type with a predicate like int?/cons?/string?"

	case "stack_depth_exceeded":
		return "The call chain exceeded Config.MaxStackDepth; check for unbounded non-tail recursion"

	default:
		return "Check the expression's operands and bindings"
	}
}

// FormatCodeSnippetWithFix formats source code with a suggested fix
func FormatCodeSnippetWithFix(source string, line, column int, fixedLine string) string {
	lines := strings.Split(source, "\n")
	if line <= 0 || line > len(lines) {
		return ""
	}

	var builder strings.Builder
	lineNum := line

	// Show previous line for context
	if lineNum > 1 {
		prevLineNum := lineNum - 1
		builder.WriteString(fmt.Sprintf("  %s%4d |%s %s\n", Gray, prevLineNum, Reset, lines[prevLineNum-1]))
	}

	// Show the error line
	errorLine := lines[lineNum-1]
	builder.WriteString(fmt.Sprintf("  %s%4d |%s %s\n", Red, lineNum, Reset, errorLine))

	// Show caret pointing to error column
	if column > 0 {
		spaces := strings.Repeat(" ", column-1)
		builder.WriteString(fmt.Sprintf("       %s|%s %s%s^ error here%s\n", Gray, Reset, Red, spaces, Reset))
	}

	// Show the suggested fix
	if fixedLine != "" {
		builder.WriteString(fmt.Sprintf("  %s%4d |%s %s %s(suggested fix)%s\n",
			Green, lineNum, Reset, fixedLine, Gray, Reset))
	}

	// Show next line for context
	if lineNum < len(lines) {
		builder.WriteString(fmt.Sprintf("  %s%4d |%s %s\n", Gray, lineNum+1, Reset, lines[lineNum]))
	}

	return builder.String()
}

// DetectCommonSyntaxErrors detects common syntax error patterns
func DetectCommonSyntaxErrors(source string, line int, errorMsg string) string {
	errorMsgLower := strings.ToLower(errorMsg)

	// Check for unbalanced-parenthesis issues
	if strings.Contains(errorMsgLower, "expect") && strings.Contains(errorMsgLower, ")") {
		return DetectMissingBracket(source, line, 0)
	}

	// Check for string issues
	if strings.Contains(errorMsgLower, "string") ||
		strings.Contains(errorMsgLower, "unterminated") {
		return DetectUnclosedString(source, line)
	}

	// Check for common patterns
	for _, pattern := range syntaxPatterns {
		if strings.Contains(errorMsgLower, pattern.Pattern) {
			return pattern.Suggestion
		}
	}

	return ""
}

// Helper functions

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// isReservedSymbolRune matches pkg/reader's isSymbolRune exclusion set: parens,
// quote, string-quote, and comment-start can never appear in a bare symbol.
func isReservedSymbolRune(r rune) bool {
	switch r {
	case '(', ')', '\'', '"', ';':
		return true
	}
	return unicode.IsSpace(r)
}

// IsValidIdentifier checks if a string is a symbol the reader can tokenize as one
// atom (it must not start with a digit, which would lex as a number instead).
func IsValidIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}

	first := rune(s[0])
	if unicode.IsDigit(first) || isReservedSymbolRune(first) {
		return false
	}

	for _, ch := range s[1:] {
		if isReservedSymbolRune(ch) {
			return false
		}
	}

	return true
}

// SuggestValidIdentifier suggests corrections to make an invalid identifier valid
func SuggestValidIdentifier(s string) string {
	if len(s) == 0 {
		return "Identifier cannot be empty"
	}

	first := rune(s[0])
	if unicode.IsDigit(first) {
		return fmt.Sprintf("A symbol cannot start with a digit (it would lex as a number). Try '-%s' or a leading letter", s)
	}

	hasReserved := false
	for _, ch := range s {
		if isReservedSymbolRune(ch) {
			hasReserved = true
			break
		}
	}

	if hasReserved {
		var cleaned strings.Builder
		for _, ch := range s {
			if !isReservedSymbolRune(ch) {
				cleaned.WriteRune(ch)
			}
		}
		return fmt.Sprintf("Remove the reserved character(s) (parens, quotes, ';'). Try '%s'", cleaned.String())
	}

	return "Symbols may contain any non-whitespace character except '(', ')', quotes, and ';'"
}
