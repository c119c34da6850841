package metrics

// This file contains integration examples showing how to use the metrics
// package with lispc's compiler and VM. These are not executable examples
// but serve as documentation for common integration patterns.

/*
Example 1: Basic Integration with the Compile Pipeline

	package main

	import (
		"log"
		"net/http"

		"github.com/lispc/lispc/pkg/compiler"
		"github.com/lispc/lispc/pkg/metrics"
		"github.com/lispc/lispc/pkg/native"
	)

	func main() {
		// Create metrics instance
		m := metrics.NewMetrics(metrics.DefaultConfig())

		session := compiler.NewSession()
		native.Register(session.VM())

		compile := func(source string) (interface{}, error) {
			return session.RunString("<main>", source)
		}

		wrapped := metrics.MetricsMiddleware(m)(compile)

		result, err := wrapped("(def answer 42) answer")
		if err != nil {
			log.Printf("Error: %v", err)
		}
		log.Println(result)

		// Expose metrics endpoint
		http.Handle("/metrics", m.Handler())

		log.Println("Metrics available at http://localhost:8080/metrics")
		log.Fatal(http.ListenAndServe(":8080", nil))
	}

Example 2: Custom Domain Metrics

	package main

	import (
		"github.com/lispc/lispc/pkg/metrics"
	)

	func setupMetrics() *metrics.Metrics {
		m := metrics.NewMetrics(metrics.DefaultConfig())

		// Register custom counters
		m.RegisterCustomCounter(
			"repl_sessions_total",
			"Total number of REPL sessions started",
			[]string{"via"},
		)

		m.RegisterCustomCounter(
			"db_save_calls_total",
			"Calls to the (db-save!) native, grouped by outcome",
			[]string{"outcome"},
		)

		// Register custom gauges
		m.RegisterCustomGauge(
			"replserver_connections",
			"Number of active WebSocket REPL connections",
			[]string{},
		)

		m.RegisterCustomGauge(
			"bytecode_cache_entries",
			"Number of entries currently held in the Redis compile cache",
			[]string{},
		)

		// Register custom histograms
		m.RegisterCustomHistogram(
			"vm_stack_depth",
			"Stack depth observed at each Call/Tail dispatch",
			[]string{},
			[]float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		)

		return m
	}

Example 3: Monitoring a Long-Running Watch Session

	package main

	import (
		"time"

		"github.com/lispc/lispc/pkg/metrics"
	)

	type Watcher struct {
		metrics *metrics.Metrics
	}

	func NewWatcher(m *metrics.Metrics) *Watcher {
		m.RegisterCustomCounter(
			"watch_recompiles_total",
			"Total recompiles triggered by fsnotify file events",
			[]string{"outcome"},
		)

		m.RegisterCustomHistogram(
			"watch_recompile_duration_seconds",
			"Time to recompile after a file-change event",
			[]string{},
			[]float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		)

		return &Watcher{metrics: m}
	}

	func (w *Watcher) OnFileChanged(recompile func() error) {
		start := time.Now()

		err := recompile()

		duration := time.Since(start)
		w.metrics.ObserveCustomHistogram("watch_recompile_duration_seconds",
			duration.Seconds(), map[string]string{})

		status := "success"
		if err != nil {
			status = "error"
		}
		w.metrics.IncrementCustomCounter("watch_recompiles_total",
			map[string]string{"outcome": status})
	}
*/
