package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(DefaultConfig())
	assert.NotNil(t, m)
	assert.NotNil(t, m.registry)
	assert.NotNil(t, m.compileUnitsTotal)
	assert.NotNil(t, m.compileDuration)
	assert.NotNil(t, m.compileErrorsTotal)
	assert.NotNil(t, m.vmCallsTotal)
	assert.NotNil(t, m.vmTailCallsTotal)
	assert.NotNil(t, m.goroutines)
	assert.NotNil(t, m.memoryAlloc)
	assert.NotNil(t, m.customCounters)
	assert.NotNil(t, m.customGauges)
	assert.NotNil(t, m.customHistograms)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "lispc", config.Namespace)
	assert.Equal(t, "compile", config.Subsystem)
	assert.NotEmpty(t, config.DurationBuckets)
	assert.Len(t, config.DurationBuckets, 12)
}

func TestRecordCompileUnit(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	tests := []struct {
		name     string
		stage    string
		duration time.Duration
		err      error
	}{
		{"successful compile", "full", 5 * time.Millisecond, nil},
		{"macro expansion stage", "macro", 1 * time.Millisecond, nil},
		{"compile error", "full", 2 * time.Millisecond, errors.New("parse error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.RecordCompileUnit(tt.stage, tt.duration, tt.err)

			outcome := "success"
			if tt.err != nil {
				outcome = "error"
			}
			count := testutil.ToFloat64(m.compileUnitsTotal.WithLabelValues(outcome))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordCompileError(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.RecordCompileError("parse")
	m.RecordCompileError("macro")

	parseCount := testutil.ToFloat64(m.compileErrorsTotal.WithLabelValues("parse"))
	assert.Equal(t, 1.0, parseCount)

	macroCount := testutil.ToFloat64(m.compileErrorsTotal.WithLabelValues("macro"))
	assert.Equal(t, 1.0, macroCount)
}

func TestRecordCall(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.RecordCall(false)
	m.RecordCall(false)
	m.RecordCall(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.vmCallsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.vmTailCallsTotal))
}

func TestRecordMacroExpansionDepth(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.RecordMacroExpansionDepth(3)
	m.RecordMacroExpansionDepth(12)

	handler := m.Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), "lispc_macro_expansion_depth")
}

func TestRecordCacheLookup(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)

	hits := testutil.ToFloat64(m.bytecodeCacheHits.WithLabelValues("hit"))
	assert.Equal(t, 2.0, hits)

	misses := testutil.ToFloat64(m.bytecodeCacheHits.WithLabelValues("miss"))
	assert.Equal(t, 1.0, misses)
}

func TestUpdateRuntimeMetrics(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.UpdateRuntimeMetrics()

	goroutines := testutil.ToFloat64(m.goroutines)
	assert.Greater(t, goroutines, 0.0)
	assert.LessOrEqual(t, goroutines, float64(runtime.NumGoroutine()+10))

	memAlloc := testutil.ToFloat64(m.memoryAlloc)
	assert.Greater(t, memAlloc, 0.0)

	memTotal := testutil.ToFloat64(m.memoryTotal)
	assert.Greater(t, memTotal, 0.0)

	memSys := testutil.ToFloat64(m.memorySystem)
	assert.Greater(t, memSys, 0.0)
}

func TestRegisterCustomCounter(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	t.Run("successful registration", func(t *testing.T) {
		err := m.RegisterCustomCounter("test_counter", "A test counter", []string{"label1", "label2"})
		assert.NoError(t, err)
		assert.Contains(t, m.customCounters, "test_counter")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		err := m.RegisterCustomCounter("test_counter", "A test counter", []string{"label1"})
		assert.Error(t, err)
	})
}

func TestRegisterCustomGauge(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	t.Run("successful registration", func(t *testing.T) {
		err := m.RegisterCustomGauge("test_gauge", "A test gauge", []string{"label1"})
		assert.NoError(t, err)
		assert.Contains(t, m.customGauges, "test_gauge")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		err := m.RegisterCustomGauge("test_gauge", "A test gauge", []string{"label1"})
		assert.Error(t, err)
	})
}

func TestRegisterCustomHistogram(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	t.Run("successful registration with buckets", func(t *testing.T) {
		buckets := []float64{0.1, 0.5, 1.0, 5.0}
		err := m.RegisterCustomHistogram("test_histogram", "A test histogram", []string{"label1"}, buckets)
		assert.NoError(t, err)
		assert.Contains(t, m.customHistograms, "test_histogram")
	})

	t.Run("successful registration without buckets", func(t *testing.T) {
		err := m.RegisterCustomHistogram("test_histogram2", "Another test histogram", []string{"label1"}, nil)
		assert.NoError(t, err)
		assert.Contains(t, m.customHistograms, "test_histogram2")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		err := m.RegisterCustomHistogram("test_histogram", "A test histogram", []string{"label1"}, nil)
		assert.Error(t, err)
	})
}

func TestIncrementCustomCounter(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	err := m.RegisterCustomCounter("repl_sessions_total", "REPL sessions", []string{"via"})
	require.NoError(t, err)

	labels := map[string]string{"via": "stdin"}
	m.IncrementCustomCounter("repl_sessions_total", labels)
	m.IncrementCustomCounter("repl_sessions_total", labels)

	counter := m.customCounters["repl_sessions_total"]
	assert.NotNil(t, counter)

	count := testutil.ToFloat64(counter.With(prometheus.Labels(labels)))
	assert.Equal(t, 2.0, count)
}

func TestSetCustomGauge(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	err := m.RegisterCustomGauge("bytecode_cache_entries", "Entries in the compile cache", []string{"backend"})
	require.NoError(t, err)

	labels := map[string]string{"backend": "redis"}
	m.SetCustomGauge("bytecode_cache_entries", 42.0, labels)

	gauge := m.customGauges["bytecode_cache_entries"]
	assert.NotNil(t, gauge)

	value := testutil.ToFloat64(gauge.With(prometheus.Labels(labels)))
	assert.Equal(t, 42.0, value)

	m.SetCustomGauge("bytecode_cache_entries", 100.0, labels)
	value = testutil.ToFloat64(gauge.With(prometheus.Labels(labels)))
	assert.Equal(t, 100.0, value)
}

func TestObserveCustomHistogram(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	buckets := []float64{0.1, 0.5, 1.0, 5.0, 10.0}
	err := m.RegisterCustomHistogram("vm_stack_depth", "Stack depth per call", []string{"operation"}, buckets)
	require.NoError(t, err)

	labels := map[string]string{"operation": "call"}
	m.ObserveCustomHistogram("vm_stack_depth", 0.3, labels)
	m.ObserveCustomHistogram("vm_stack_depth", 0.7, labels)
	m.ObserveCustomHistogram("vm_stack_depth", 1.5, labels)

	handler := m.Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, "vm_stack_depth")
	assert.Contains(t, body, `operation="call"`)
	assert.Contains(t, body, "vm_stack_depth_count")
}

func TestHandler(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.RecordCompileUnit("full", 50*time.Millisecond, nil)
	m.UpdateRuntimeMetrics()

	handler := m.Handler()
	assert.NotNil(t, handler)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "lispc_compile_units_total")
	assert.Contains(t, body, "lispc_compile_duration_seconds")
	assert.Contains(t, body, "lispc_runtime_goroutines")
	assert.Contains(t, body, "lispc_runtime_memory_alloc_bytes")
}

func TestGetRegistry(t *testing.T) {
	m := NewMetrics(DefaultConfig())
	registry := m.GetRegistry()
	assert.NotNil(t, registry)
	assert.Equal(t, m.registry, registry)
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	tests := []struct {
		name        string
		source      string
		unit        CompileUnitFunc
		shouldError bool
	}{
		{
			name:   "successful compile",
			source: "(def answer 42) answer",
			unit: func(source string) (interface{}, error) {
				return 42, nil
			},
			shouldError: false,
		},
		{
			name:   "compile error",
			source: "(",
			unit: func(source string) (interface{}, error) {
				return nil, errors.New("unexpected EOF")
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := MetricsMiddleware(m)
			wrapped := middleware(tt.unit)

			_, err := wrapped(tt.source)

			if tt.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			handler := m.Handler()
			metricsReq := httptest.NewRequest("GET", "/metrics", nil)
			metricsW := httptest.NewRecorder()
			handler.ServeHTTP(metricsW, metricsReq)

			body := metricsW.Body.String()
			assert.Contains(t, body, "lispc_compile_units_total")
		})
	}
}

func TestMetricsWithCustomConfig(t *testing.T) {
	config := Config{
		Namespace:       "custom",
		Subsystem:       "compiler",
		DurationBuckets: []float64{0.01, 0.1, 1.0},
	}

	m := NewMetrics(config)
	assert.NotNil(t, m)

	m.RecordCompileUnit("full", 50*time.Millisecond, nil)

	handler := m.Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, "custom_compiler_units_total")
	assert.Contains(t, body, "custom_compiler_duration_seconds")
}

func TestConcurrentMetricsRecording(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				m.RecordCompileUnit("full", time.Millisecond, nil)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	handler := m.Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, "lispc_compile_units_total")

	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.Contains(line, `lispc_compile_units_total{outcome="success"}`) {
			assert.Contains(t, line, "1000")
			break
		}
	}
}

func TestMemoryMetricsAccuracy(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	m.UpdateRuntimeMetrics()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	goroutines := testutil.ToFloat64(m.goroutines)
	actualGoroutines := float64(runtime.NumGoroutine())
	tolerance := actualGoroutines * 0.1
	assert.InDelta(t, actualGoroutines, goroutines, tolerance)

	memAlloc := testutil.ToFloat64(m.memoryAlloc)
	assert.InDelta(t, float64(memStats.Alloc), memAlloc, float64(memStats.Alloc)*0.1)
}

func BenchmarkRecordCompileUnit(b *testing.B) {
	m := NewMetrics(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordCompileUnit("full", 50*time.Millisecond, nil)
	}
}

func BenchmarkMetricsMiddleware(b *testing.B) {
	m := NewMetrics(DefaultConfig())
	middleware := MetricsMiddleware(m)

	unit := func(source string) (interface{}, error) {
		return 42, nil
	}

	wrapped := middleware(unit)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wrapped("(+ 1 2)")
	}
}
