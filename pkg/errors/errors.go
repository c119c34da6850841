package errors

import (
	"fmt"
)

// FormatError renders any error for the terminal. CompileError and
// RuntimeError get their structured multi-line rendering; anything else
// falls back to a one-line `error: <message>`.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	switch e := err.(type) {
	case *CompileError:
		return e.FormatError(true)
	case *RuntimeError:
		return e.FormatError(true)
	default:
		return fmt.Sprintf("%serror:%s %s\n", Bold+Red, Reset, err.Error())
	}
}

// FormatErrorPlain renders without ANSI colors, for logs and non-TTY
// output.
func FormatErrorPlain(err error) string {
	if err == nil {
		return ""
	}

	switch e := err.(type) {
	case *CompileError:
		return e.FormatError(false)
	case *RuntimeError:
		return e.FormatError(false)
	default:
		return fmt.Sprintf("error: %s\n", err.Error())
	}
}

// WithSourceLocation attaches a file/line/column and the surrounding
// source excerpt to err. An existing CompileError is updated in place;
// any other error is wrapped in a KindParse CompileError.
func WithSourceLocation(err error, fileName string, line, col int, source string) error {
	if err == nil {
		return nil
	}

	snippet := ExtractSourceSnippet(source, line)

	if ce, ok := err.(*CompileError); ok {
		ce.FileName = fileName
		ce.Line = line
		ce.Column = col
		ce.SourceSnippet = snippet
		return ce
	}

	return &CompileError{
		Kind:          KindParse,
		Message:       err.Error(),
		FileName:      fileName,
		Line:          line,
		Column:        col,
		SourceSnippet: snippet,
	}
}

// WithSuggestion attaches a suggestion to a CompileError or
// RuntimeError; other errors are wrapped in a CompileError first.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	if ce, ok := err.(*CompileError); ok {
		ce.Suggestion = suggestion
		return ce
	}

	if re, ok := err.(*RuntimeError); ok {
		re.Suggestion = suggestion
		return re
	}

	return &CompileError{
		Kind:       KindParse,
		Message:    err.Error(),
		Suggestion: suggestion,
	}
}

// IsCompileError reports whether err is a compile-time error.
func IsCompileError(err error) bool {
	_, ok := err.(*CompileError)
	return ok
}

// IsRuntimeError reports whether err is a VM runtime error.
func IsRuntimeError(err error) bool {
	_, ok := err.(*RuntimeError)
	return ok
}

// RuntimeKindOf returns the runtime taxonomy kind of err, or KindOther
// when err is not a RuntimeError.
func RuntimeKindOf(err error) RuntimeKind {
	if re, ok := err.(*RuntimeError); ok {
		return re.Kind
	}
	return KindOther
}
