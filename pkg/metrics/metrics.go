package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics collectors for the compiler and
// VM: compiler invocations, VM calls, cache lookups, and Go runtime
// gauges, exposed through an optional debug HTTP endpoint
// (`lispc serve-metrics`).
type Metrics struct {
	compileUnitsTotal   *prometheus.CounterVec
	compileDuration     *prometheus.HistogramVec
	compileErrorsTotal  *prometheus.CounterVec
	vmCallsTotal        prometheus.Counter
	vmTailCallsTotal    prometheus.Counter
	macroExpansionDepth prometheus.Histogram
	bytecodeCacheHits   *prometheus.CounterVec

	goroutines   prometheus.Gauge
	memoryAlloc  prometheus.Gauge
	memoryTotal  prometheus.Gauge
	memorySystem prometheus.Gauge
	gcPauseNs    prometheus.Gauge
	numGC        prometheus.Gauge

	customCounters   map[string]*prometheus.CounterVec
	customGauges     map[string]*prometheus.GaugeVec
	customHistograms map[string]*prometheus.HistogramVec

	registry *prometheus.Registry
}

// Config holds configuration for metrics.
type Config struct {
	Namespace string
	Subsystem string
	// DurationBuckets are the histogram buckets for compile duration, in
	// seconds.
	DurationBuckets []float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:       "lispc",
		Subsystem:       "compile",
		DurationBuckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(config Config) *Metrics {
	if config.Namespace == "" {
		config = DefaultConfig()
	}
	if len(config.DurationBuckets) == 0 {
		config.DurationBuckets = DefaultConfig().DurationBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry:         registry,
		customCounters:   make(map[string]*prometheus.CounterVec),
		customGauges:     make(map[string]*prometheus.GaugeVec),
		customHistograms: make(map[string]*prometheus.HistogramVec),
	}

	m.compileUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "units_total",
			Help:      "Total number of top-level forms compiled, by outcome",
		},
		[]string{"outcome"},
	)

	m.compileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "duration_seconds",
			Help:      "Time to lower, macro-expand, resolve scope, and emit bytecode for one compile unit",
			Buckets:   config.DurationBuckets,
		},
		[]string{"stage"},
	)

	m.compileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "errors_total",
			Help:      "Total number of compile errors by taxonomy (parse, resolution, macro, bytecode)",
		},
		[]string{"error_type"},
	)

	m.vmCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "vm",
			Name:      "calls_total",
			Help:      "Total number of non-tail Call opcodes executed",
		},
	)

	m.vmTailCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "vm",
			Name:      "tail_calls_total",
			Help:      "Total number of Tail opcodes executed (frame reused, not pushed)",
		},
	)

	m.macroExpansionDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "macro",
			Name:      "expansion_depth",
			Help:      "Recursion depth reached while expanding a macro call",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
		},
	)

	m.bytecodeCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Compile-cache lookups by outcome (hit/miss), backed by pkg/native's Redis cache",
		},
		[]string{"outcome"},
	)

	m.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "goroutines",
			Help:      "Number of goroutines currently running",
		},
	)

	m.memoryAlloc = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "memory_alloc_bytes",
			Help:      "Number of bytes allocated and still in use",
		},
	)

	m.memoryTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "memory_total_alloc_bytes",
			Help:      "Total number of bytes allocated (cumulative)",
		},
	)

	m.memorySystem = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "memory_sys_bytes",
			Help:      "Number of bytes obtained from system",
		},
	)

	m.gcPauseNs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "gc_pause_ns",
			Help:      "Most recent GC pause time in nanoseconds",
		},
	)

	m.numGC = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "runtime",
			Name:      "gc_runs_total",
			Help:      "Total number of GC runs",
		},
	)

	registry.MustRegister(
		m.compileUnitsTotal,
		m.compileDuration,
		m.compileErrorsTotal,
		m.vmCallsTotal,
		m.vmTailCallsTotal,
		m.macroExpansionDepth,
		m.bytecodeCacheHits,
		m.goroutines,
		m.memoryAlloc,
		m.memoryTotal,
		m.memorySystem,
		m.gcPauseNs,
		m.numGC,
	)

	go m.collectRuntimeMetrics()

	return m
}

// collectRuntimeMetrics periodically collects runtime metrics.
func (m *Metrics) collectRuntimeMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.UpdateRuntimeMetrics()
	}
}

// UpdateRuntimeMetrics updates runtime metrics (goroutines, memory, GC).
func (m *Metrics) UpdateRuntimeMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAlloc.Set(float64(memStats.Alloc))
	m.memoryTotal.Set(float64(memStats.TotalAlloc))
	m.memorySystem.Set(float64(memStats.Sys))
	m.numGC.Set(float64(memStats.NumGC))

	if memStats.NumGC > 0 {
		m.gcPauseNs.Set(float64(memStats.PauseNs[(memStats.NumGC+255)%256]))
	}
}

// RecordCompileUnit records the compile-stage duration and outcome for
// one top-level form.
func (m *Metrics) RecordCompileUnit(stage string, duration time.Duration, err error) {
	m.compileDuration.WithLabelValues(stage).Observe(duration.Seconds())

	if err != nil {
		m.compileUnitsTotal.WithLabelValues("error").Inc()
		return
	}
	m.compileUnitsTotal.WithLabelValues("success").Inc()
}

// RecordCompileError records a compile error by its kind (parse,
// resolution, macro, bytecode, runtime).
func (m *Metrics) RecordCompileError(errorType string) {
	m.compileErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordCall records one VM Call or Tail opcode dispatch.
func (m *Metrics) RecordCall(tail bool) {
	if tail {
		m.vmTailCallsTotal.Inc()
		return
	}
	m.vmCallsTotal.Inc()
}

// RecordMacroExpansionDepth records the recursion depth reached while
// expanding one macro call.
func (m *Metrics) RecordMacroExpansionDepth(depth int) {
	m.macroExpansionDepth.Observe(float64(depth))
}

// RecordCacheLookup records a bytecode-cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.bytecodeCacheHits.WithLabelValues("hit").Inc()
		return
	}
	m.bytecodeCacheHits.WithLabelValues("miss").Inc()
}

// RegisterCustomCounter registers a custom counter metric.
func (m *Metrics) RegisterCustomCounter(name, help string, labels []string) error {
	if _, exists := m.customCounters[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)

	if err := m.registry.Register(counter); err != nil {
		return err
	}

	m.customCounters[name] = counter
	return nil
}

// RegisterCustomGauge registers a custom gauge metric.
func (m *Metrics) RegisterCustomGauge(name, help string, labels []string) error {
	if _, exists := m.customGauges[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		labels,
	)

	if err := m.registry.Register(gauge); err != nil {
		return err
	}

	m.customGauges[name] = gauge
	return nil
}

// RegisterCustomHistogram registers a custom histogram metric.
func (m *Metrics) RegisterCustomHistogram(name, help string, labels []string, buckets []float64) error {
	if _, exists := m.customHistograms[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)

	if err := m.registry.Register(histogram); err != nil {
		return err
	}

	m.customHistograms[name] = histogram
	return nil
}

// IncrementCustomCounter increments a custom counter.
func (m *Metrics) IncrementCustomCounter(name string, labels map[string]string) {
	if counter, exists := m.customCounters[name]; exists {
		counter.With(prometheus.Labels(labels)).Inc()
	}
}

// SetCustomGauge sets a custom gauge value.
func (m *Metrics) SetCustomGauge(name string, value float64, labels map[string]string) {
	if gauge, exists := m.customGauges[name]; exists {
		gauge.With(prometheus.Labels(labels)).Set(value)
	}
}

// ObserveCustomHistogram observes a value in a custom histogram.
func (m *Metrics) ObserveCustomHistogram(name string, value float64, labels map[string]string) {
	if histogram, exists := m.customHistograms[name]; exists {
		histogram.With(prometheus.Labels(labels)).Observe(value)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint, served by
// the optional `lispc serve-metrics` debug command.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// GetRegistry returns the Prometheus registry.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}
