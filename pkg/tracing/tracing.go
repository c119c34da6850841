// Package tracing provides OpenTelemetry tracing helpers for lispc: spans
// around a compile unit (CompileTracingMiddleware), a VM Call/Tail
// dispatch (TraceCall) and a macro expansion (TraceMacroExpansion).
// `lispc compile --trace` opens one span for the whole file; the VM and
// the macro expander open no spans themselves. Spans are exported via the
// stdout exporter only — lispc is
// a single-process compiler/VM, not a distributed service, so there is
// no OTLP collector to ship spans to.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// sanitizeLog strips newlines from user-controlled values (file paths,
// macro names) before they land in span attributes or log lines.
func sanitizeLog(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	return strings.ReplaceAll(s, "\r", "")
}

// Config selects what the tracer reports about itself and how much it
// samples.
type Config struct {
	// ServiceName is the name reported on the trace resource.
	ServiceName string

	// ServiceVersion is the version of lispc being run.
	ServiceVersion string

	// Environment tags spans with the deployment environment.
	Environment string

	// ExporterType must be "stdout" (or empty). lispc has no OTLP
	// collector to export to; the field exists to keep Config shaped
	// like the rest of the stack's Config types (see pkg/config).
	ExporterType string

	// SamplingRate keeps this fraction of traces, 0.0 to 1.0.
	SamplingRate float64

	// Enabled turns span emission on; when false a no-op provider is
	// installed and every Start call is free.
	Enabled bool
}

// DefaultConfig samples everything, suitable for local debugging of a
// single compile invocation.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "lispc",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		ExporterType:   "stdout",
		SamplingRate:   1.0,
		Enabled:        true,
	}
}

// TracerProvider owns the installed SDK provider so callers can shut it
// down (flushing batched spans) when the CLI exits.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	config   *Config
}

// InitTracing installs a global tracer provider per config and returns a
// handle whose Shutdown must run before process exit.
func InitTracing(config *Config) (*TracerProvider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &TracerProvider{
			provider: sdktrace.NewTracerProvider(),
			config:   config,
		}, nil
	}

	if config.ExporterType != "" && config.ExporterType != "stdout" {
		return nil, fmt.Errorf("unsupported exporter type: %s (lispc only exports to stdout)", config.ExporterType)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(config.SamplingRate)),
	)
	otel.SetTracerProvider(tp)

	// Install W3C Trace Context and Baggage as the global propagators.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: tp, config: config}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes batched spans and stops the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// GetTracer returns a named tracer from this provider.
func (tp *TracerProvider) GetTracer(name string) trace.Tracer {
	if tp.provider == nil {
		return otel.Tracer(name)
	}
	return tp.provider.Tracer(name)
}

// Tracer returns lispc's global tracer.
func Tracer() trace.Tracer {
	return otel.Tracer("lispc")
}

// StartSpan opens a span named spanName under ctx's current span.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, spanName, opts...)
}

// SpanFromContext returns ctx's current span.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// GetTraceID returns ctx's trace ID, or "" outside any trace.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns ctx's span ID, or "" outside any span.
func GetSpanID(ctx context.Context) string {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// AddEvent attaches a timestamped event to ctx's span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on ctx's span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// SetError records err on ctx's span and marks the span failed.
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetStatus sets ctx's span status directly.
func SetStatus(ctx context.Context, code codes.Code, description string) {
	trace.SpanFromContext(ctx).SetStatus(code, description)
}

// CompileUnitAttributes describes one compiled top-level form: its
// source file and byte length.
func CompileUnitAttributes(file string, sourceLen int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("lispc.file", sanitizeLog(file)),
		attribute.Int("lispc.source_bytes", sourceLen),
	}
}

// CallAttributes describes one VM Call or Tail dispatch: the callee's
// name (if known) and the argument count.
func CallAttributes(callee string, argc int, tail bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("lispc.callee", sanitizeLog(callee)),
		attribute.Int("lispc.argc", argc),
		attribute.Bool("lispc.tail_call", tail),
	}
}

// MacroExpansionAttributes describes one macro expansion pass.
func MacroExpansionAttributes(macro string, depth int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("lispc.macro", sanitizeLog(macro)),
		attribute.Int("lispc.expansion_depth", depth),
	}
}

// WithSpan runs fn inside a span, recording any error before the span
// closes.
func WithSpan(ctx context.Context, spanName string, fn func(context.Context) error, opts ...trace.SpanStartOption) error {
	ctx, span := StartSpan(ctx, spanName, opts...)
	defer span.End()

	if err := fn(ctx); err != nil {
		SetError(ctx, err)
		return err
	}
	return nil
}

// RecordError records err with extra attributes on ctx's span.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// GetTracingInfo packages ctx's trace and span IDs as logging fields.
func GetTracingInfo(ctx context.Context) map[string]string {
	return map[string]string{
		"trace_id": GetTraceID(ctx),
		"span_id":  GetSpanID(ctx),
	}
}

// IsTracingEnabled honors the standard OTEL_SDK_DISABLED switch.
func IsTracingEnabled() bool {
	return os.Getenv("OTEL_SDK_DISABLED") != "true"
}

// SpanKind bundles the span-kind start options; compiler/VM spans are
// Internal, the WebSocket REPL boundary is Server.
var SpanKind = struct {
	Server   trace.SpanStartOption
	Client   trace.SpanStartOption
	Internal trace.SpanStartOption
	Producer trace.SpanStartOption
	Consumer trace.SpanStartOption
}{
	Server:   trace.WithSpanKind(trace.SpanKindServer),
	Client:   trace.WithSpanKind(trace.SpanKindClient),
	Internal: trace.WithSpanKind(trace.SpanKindInternal),
	Producer: trace.WithSpanKind(trace.SpanKindProducer),
	Consumer: trace.WithSpanKind(trace.SpanKindConsumer),
}
