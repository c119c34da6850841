package tracing_test

import (
	"context"
	"fmt"
	"log"

	"github.com/lispc/lispc/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// ExampleInitTracing demonstrates basic tracing initialization
func ExampleInitTracing() {
	// Create configuration
	config := &tracing.Config{
		ServiceName:    "lispc",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		ExporterType:   "stdout",
		SamplingRate:   1.0,
		Enabled:        true,
	}

	// Initialize tracing
	tp, err := tracing.InitTracing(config)
	if err != nil {
		log.Fatal(err)
	}
	defer tp.Shutdown(context.Background())

	fmt.Println("Tracing initialized successfully")
	// Output: Tracing initialized successfully
}

// ExampleStartSpan demonstrates creating a span
func ExampleStartSpan() {
	config := tracing.DefaultConfig()
	tp, _ := tracing.InitTracing(config)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()

	// Start a span
	ctx, span := tracing.StartSpan(ctx, "compile-unit", tracing.SpanKind.Internal)
	defer span.End()

	// Do some work
	tracing.SetAttributes(ctx,
		attribute.String("lispc.file", "main.lisp"),
		attribute.Int("lispc.source_bytes", 42),
	)

	fmt.Println("Span created successfully")
	// Output: Span created successfully
}

// ExampleWithSpan demonstrates using WithSpan helper
func ExampleWithSpan() {
	config := tracing.DefaultConfig()
	tp, _ := tracing.InitTracing(config)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()

	err := tracing.WithSpan(ctx, "macro-expand", func(ctx context.Context) error {
		// Simulate a macro expansion pass
		tracing.AddEvent(ctx, "expansion-started")
		// ... expand macro call ...
		tracing.AddEvent(ctx, "expansion-completed")
		return nil
	}, tracing.SpanKind.Internal)

	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Macro expansion traced successfully")
	// Output: Macro expansion traced successfully
}

// ExampleCompileTracingMiddleware demonstrates wrapping a compile unit
// with tracing middleware.
func ExampleCompileTracingMiddleware() {
	config := tracing.DefaultConfig()
	tp, _ := tracing.InitTracing(config)
	defer tp.Shutdown(context.Background())

	// Create middleware
	middleware := tracing.CompileTracingMiddleware(nil)

	unit := func(ctx context.Context, file, source string) (interface{}, error) {
		return 42, nil
	}

	// Wrap unit with tracing middleware
	tracedUnit := middleware(unit)

	result, err := tracedUnit(context.Background(), "main.lisp", "(def answer 42) answer")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Result: %v\n", result)
	// Output: Result: 42
}

// ExampleTraceCall demonstrates tracing one VM Call dispatch
func ExampleTraceCall() {
	config := tracing.DefaultConfig()
	tp, _ := tracing.InitTracing(config)
	defer tp.Shutdown(context.Background())

	// Start parent span
	ctx, parentSpan := tracing.StartSpan(context.Background(), "run", tracing.SpanKind.Internal)
	defer parentSpan.End()

	// Trace a call to a user-defined function
	_, span := tracing.TraceCall(ctx, "double", 1, false)
	span.End()

	fmt.Println("VM call traced")
	// Output: VM call traced
}

// ExampleGetTracingInfo demonstrates extracting trace IDs for logging
func ExampleGetTracingInfo() {
	config := tracing.DefaultConfig()
	tp, _ := tracing.InitTracing(config)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	ctx, span := tracing.StartSpan(ctx, "operation", tracing.SpanKind.Internal)
	defer span.End()

	// Get trace info for structured logging
	info := tracing.GetTracingInfo(ctx)

	if info["trace_id"] != "" && info["span_id"] != "" {
		fmt.Println("Trace IDs extracted successfully")
	}
	// Output: Trace IDs extracted successfully
}

// ExampleSetError demonstrates error recording
func ExampleSetError() {
	config := tracing.DefaultConfig()
	tp, _ := tracing.InitTracing(config)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	ctx, span := tracing.StartSpan(ctx, "risky-operation", tracing.SpanKind.Internal)
	defer span.End()

	err := fmt.Errorf("something went wrong")
	if err != nil {
		tracing.SetError(ctx, err)
		fmt.Println("Error recorded in span")
	}
	// Output: Error recorded in span
}

// Example_customAttributes demonstrates adding custom attributes to spans
func Example_customAttributes() {
	config := tracing.DefaultConfig()
	tp, _ := tracing.InitTracing(config)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	ctx, span := tracing.StartSpan(ctx, "db-save", tracing.SpanKind.Internal)
	defer span.End()

	// Add custom attributes
	tracing.SetAttributes(ctx,
		attribute.String("lispc.table", "globals"),
		attribute.Int("lispc.bindings", 3),
	)

	// Add an event with attributes
	tracing.AddEvent(ctx, "globals-persisted",
		attribute.String("lispc.backend", "sqlite"),
	)

	fmt.Println("Custom attributes added to span")
	// Output: Custom attributes added to span
}

// Example demonstrating a complete `lispc run` setup with tracing
func Example_compilerSetup() {
	// Initialize tracing
	config := &tracing.Config{
		ServiceName:    "lispc",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		ExporterType:   "stdout",
		SamplingRate:   1.0,
		Enabled:        true,
	}

	tp, err := tracing.InitTracing(config)
	if err != nil {
		log.Fatal(err)
	}
	defer tp.Shutdown(context.Background())

	// Create tracing middleware
	middlewareConfig := &tracing.MiddlewareConfig{
		SpanNameFormatter: func(file string) string {
			return fmt.Sprintf("compile %s", file)
		},
		CustomAttributes: func(file, source string) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.String("service.name", "lispc"),
			}
		},
	}

	middleware := tracing.CompileTracingMiddleware(middlewareConfig)

	unit := func(ctx context.Context, file, source string) (interface{}, error) {
		// Create a child span for the VM run
		ctx, span := tracing.StartSpan(ctx, "vm-run", tracing.SpanKind.Internal)
		defer span.End()

		tracing.SetAttributes(ctx,
			attribute.String("lispc.file", file),
		)

		return 42, nil
	}

	// Wrap unit with tracing middleware
	_ = middleware(unit)

	fmt.Println("Compiler configured with tracing")
	// Output: Compiler configured with tracing
}
