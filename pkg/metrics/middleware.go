package metrics

import "time"

// CompileUnitFunc compiles and runs a single source string, the same
// shape pkg/logging's StructuredLoggingMiddleware wraps.
type CompileUnitFunc func(source string) (interface{}, error)

// MetricsMiddleware wraps a compile unit so every call automatically
// records compile duration and outcome.
func MetricsMiddleware(m *Metrics) func(CompileUnitFunc) CompileUnitFunc {
	return func(next CompileUnitFunc) CompileUnitFunc {
		return func(source string) (interface{}, error) {
			start := time.Now()

			result, err := next(source)

			duration := time.Since(start)
			m.RecordCompileUnit("full", duration, err)
			if err != nil {
				m.RecordCompileError("runtime")
			}

			return result, err
		}
	}
}
