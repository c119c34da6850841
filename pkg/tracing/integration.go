package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Integration helpers for lispc's compiler and VM.
//
// Example usage, wiring a traced compile unit into cmd/lispc's `compile`
// and `run` subcommands:
//
//	tp, _ := tracing.InitTracing(tracing.DefaultConfig())
//	defer tp.Shutdown(context.Background())
//
//	compile := func(ctx context.Context, file, source string) (interface{}, error) {
//	    return session.RunString(file, source)
//	}
//	traced := tracing.CompileTracingMiddleware(nil)(compile)
//	result, err := traced(context.Background(), "main.lisp", source)

// TraceCall starts a span around one VM Call or Tail dispatch. The
// caller must call span.End() when the frame returns, mirroring how
// pkg/vm brackets a frame push/pop.
func TraceCall(ctx context.Context, callee string, argc int, tail bool) (context.Context, trace.Span) {
	spanName := "call"
	if tail {
		spanName = "tail-call"
	}

	ctx, span := StartSpan(ctx, spanName, SpanKind.Internal)
	span.SetAttributes(CallAttributes(callee, argc, tail)...)
	return ctx, span
}

// TraceMacroExpansion starts a span around one macro expansion pass.
// The caller must call span.End() when expansion of that call finishes.
func TraceMacroExpansion(ctx context.Context, macro string, depth int) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "macro-expand", SpanKind.Internal)
	span.SetAttributes(MacroExpansionAttributes(macro, depth)...)
	return ctx, span
}
