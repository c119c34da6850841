package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStructuredLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(LoggerConfig{
		MinLevel: DEBUG,
		Format:   JSONFormat,
		Output:   &buf,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	middleware := StructuredLoggingMiddleware(logger)

	unit := middleware(func(source string) (interface{}, error) {
		return 42, nil
	})

	result, err := unit("(def x 42) x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected result 42, got %v", result)
	}

	output := buf.String()
	if !strings.Contains(output, "compile unit started") {
		t.Errorf("expected log to contain 'compile unit started', got: %s", output)
	}
	if !strings.Contains(output, "compile unit completed") {
		t.Errorf("expected log to contain 'compile unit completed', got: %s", output)
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	for _, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line as JSON: %v", err)
		}
		if _, ok := entry["session_id"]; !ok {
			t.Errorf("expected session correlation id in log entry: %v", entry)
		}
	}
}

func TestStructuredLoggingMiddlewareError(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(LoggerConfig{
		MinLevel: DEBUG,
		Format:   JSONFormat,
		Output:   &buf,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	middleware := StructuredLoggingMiddleware(logger)

	wantErr := errors.New("division by zero")
	unit := middleware(func(source string) (interface{}, error) {
		return nil, wantErr
	})

	_, err = unit("(/ 1 0)")
	if err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}

	output := buf.String()
	if !strings.Contains(output, "compile unit failed") {
		t.Errorf("expected log to contain 'compile unit failed', got: %s", output)
	}
	if !strings.Contains(output, "division by zero") {
		t.Errorf("expected log to contain the error message, got: %s", output)
	}
}

func TestStructuredRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(LoggerConfig{
		MinLevel: DEBUG,
		Format:   JSONFormat,
		Output:   &buf,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	middleware := StructuredRecoveryMiddleware(logger)

	unit := middleware(func(source string) (interface{}, error) {
		panic("bytecode invariant violated")
	})

	_, err = unit("(def x 1)")
	if err == nil {
		t.Fatal("expected an error from the recovered panic")
	}
	if !strings.Contains(err.Error(), "bytecode invariant violated") {
		t.Errorf("expected error to mention the panic value, got: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "panic recovered") {
		t.Errorf("expected log to contain 'panic recovered', got: %s", output)
	}
}

func TestStructuredRecoveryMiddlewarePassesThrough(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(LoggerConfig{
		MinLevel: DEBUG,
		Format:   JSONFormat,
		Output:   &buf,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	middleware := StructuredRecoveryMiddleware(logger)

	unit := middleware(func(source string) (interface{}, error) {
		return 7, nil
	})

	result, err := unit("(def x 7) x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 7 {
		t.Errorf("expected 7, got %v", result)
	}
}

func TestWithMacroExpansionDepthWarning(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(LoggerConfig{
		MinLevel: DEBUG,
		Format:   JSONFormat,
		Output:   &buf,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	WithMacroExpansionDepthWarning(logger, "when", 10, 512)
	if buf.Len() != 0 {
		t.Errorf("expected no warning below threshold, got: %s", buf.String())
	}

	WithMacroExpansionDepthWarning(logger, "when", 400, 512)
	output := buf.String()
	if !strings.Contains(output, "approaching depth limit") {
		t.Errorf("expected depth-limit warning, got: %s", output)
	}
	if !strings.Contains(output, "\"macro\":\"when\"") {
		t.Errorf("expected macro name field in warning, got: %s", output)
	}
}
