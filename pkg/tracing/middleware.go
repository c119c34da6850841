package tracing

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CompileUnitFunc compiles and runs a single source string against a
// context, the same shape pkg/metrics and pkg/logging wrap.
type CompileUnitFunc func(ctx context.Context, file, source string) (interface{}, error)

// MiddlewareConfig holds configuration for the tracing middleware
type MiddlewareConfig struct {
	// SpanNameFormatter formats the span name for one compile unit.
	// Default format is "compile {file}"
	SpanNameFormatter func(file string) string

	// CustomAttributes is a function that returns custom attributes to
	// add to the compile span.
	CustomAttributes func(file, source string) []attribute.KeyValue
}

// DefaultMiddlewareConfig returns default middleware configuration
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		SpanNameFormatter: func(file string) string {
			return fmt.Sprintf("compile %s", file)
		},
	}
}

// CompileTracingMiddleware wraps a compile unit so every call opens a
// span covering reader -> lowering -> macro expansion -> scope
// resolution -> bytecode emission -> VM run, the same granularity
// pkg/logging's StructuredLoggingMiddleware logs at.
func CompileTracingMiddleware(config *MiddlewareConfig) func(CompileUnitFunc) CompileUnitFunc {
	if config == nil {
		config = DefaultMiddlewareConfig()
	}

	return func(next CompileUnitFunc) CompileUnitFunc {
		return func(ctx context.Context, file, source string) (interface{}, error) {
			spanName := config.SpanNameFormatter(file)

			ctx, span := StartSpan(ctx, spanName, SpanKind.Internal)
			defer span.End()

			start := time.Now()

			attrs := CompileUnitAttributes(file, len(source))
			if config.CustomAttributes != nil {
				attrs = append(attrs, config.CustomAttributes(file, source)...)
			}
			span.SetAttributes(attrs...)

			result, err := next(ctx, file, source)

			duration := time.Since(start)
			span.SetAttributes(attribute.Float64("lispc.duration_ms", float64(duration.Milliseconds())))

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}

			log.Printf("[TRACE] compile %s - %v [trace_id=%s span_id=%s]", // #nosec G706 -- sanitized
				sanitizeLog(file),
				duration,
				GetTraceID(ctx),
				GetSpanID(ctx),
			)

			return result, err
		}
	}
}
