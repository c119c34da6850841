package metrics_test

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lispc/lispc/pkg/metrics"
)

// ExampleNewMetrics demonstrates basic metrics usage
func ExampleNewMetrics() {
	// Create metrics with default config
	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Record some compile units
	m.RecordCompileUnit("full", 5*time.Millisecond, nil)
	m.RecordCompileUnit("macro", 1*time.Millisecond, nil)
	m.RecordCompileUnit("full", 2*time.Millisecond, fmt.Errorf("parse error"))

	// Update runtime metrics manually (usually done automatically)
	m.UpdateRuntimeMetrics()

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// ExampleMetrics_RegisterCustomCounter demonstrates custom counter registration
func ExampleMetrics_RegisterCustomCounter() {
	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Register a custom counter for tracking REPL sessions
	err := m.RegisterCustomCounter(
		"repl_sessions_total",
		"Total number of REPL sessions started",
		[]string{"via"},
	)
	if err != nil {
		panic(err)
	}

	// Increment the counter
	m.IncrementCustomCounter("repl_sessions_total", map[string]string{
		"via": "websocket",
	})

	fmt.Println("Custom counter registered and incremented")
	// Output: Custom counter registered and incremented
}

// ExampleMetrics_RegisterCustomGauge demonstrates custom gauge registration
func ExampleMetrics_RegisterCustomGauge() {
	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Register a custom gauge for the compile cache
	err := m.RegisterCustomGauge(
		"bytecode_cache_entries",
		"Current number of entries in the compile cache",
		[]string{"backend"},
	)
	if err != nil {
		panic(err)
	}

	// Set the gauge value
	m.SetCustomGauge("bytecode_cache_entries", 42.0, map[string]string{
		"backend": "redis",
	})

	fmt.Println("Custom gauge registered and set")
	// Output: Custom gauge registered and set
}

// ExampleMetrics_RegisterCustomHistogram demonstrates custom histogram registration
func ExampleMetrics_RegisterCustomHistogram() {
	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Register a custom histogram for VM call stack depth
	buckets := []float64{1, 2, 4, 8, 16, 32, 64}
	err := m.RegisterCustomHistogram(
		"vm_stack_depth",
		"Stack depth observed at each Call dispatch",
		[]string{"kind"},
		buckets,
	)
	if err != nil {
		panic(err)
	}

	// Observe stack depths
	m.ObserveCustomHistogram("vm_stack_depth", 3, map[string]string{
		"kind": "call",
	})
	m.ObserveCustomHistogram("vm_stack_depth", 1, map[string]string{
		"kind": "tail",
	})

	fmt.Println("Custom histogram registered and observations recorded")
	// Output: Custom histogram registered and observations recorded
}

// ExampleMetricsMiddleware demonstrates middleware integration
func ExampleMetricsMiddleware() {
	// Create metrics instance
	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Create the metrics middleware
	metricsMiddleware := metrics.MetricsMiddleware(m)

	// Create a sample compile unit
	unit := func(source string) (interface{}, error) {
		return 42, nil
	}

	// Wrap the unit with middleware
	wrappedUnit := metricsMiddleware(unit)

	// Use the wrapped unit wherever source gets compiled and run
	_ = wrappedUnit

	fmt.Println("Metrics middleware created and applied")
	// Output: Metrics middleware created and applied
}

// ExampleMetrics_Handler demonstrates setting up the /metrics endpoint
func ExampleMetrics_Handler() {
	// Create metrics instance
	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Record some metrics
	m.RecordCompileUnit("full", 50*time.Millisecond, nil)

	// Get the HTTP handler for the /metrics endpoint
	metricsHandler := m.Handler()

	// Register it with your debug HTTP server (lispc serve-metrics)
	http.Handle("/metrics", metricsHandler)

	fmt.Println("Metrics endpoint handler created")
	// Output: Metrics endpoint handler created
}

// ExampleConfig demonstrates custom configuration
func ExampleConfig() {
	// Create custom configuration
	config := metrics.Config{
		Namespace: "myapp",
		Subsystem: "compiler",
		DurationBuckets: []float64{
			0.001, 0.01, 0.1, 1.0, 10.0,
		},
	}

	// Create metrics with custom config
	m := metrics.NewMetrics(config)

	// Record compiles - metrics will use "myapp_compiler" prefix
	m.RecordCompileUnit("full", 5*time.Millisecond, nil)

	fmt.Println("Custom metrics configuration applied")
	// Output: Custom metrics configuration applied
}
