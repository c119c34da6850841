package logging

import (
	"fmt"
	"time"
)

// CompileUnitFunc compiles and/or executes a single top-level form (or a
// whole source file, for the CLI's compile/run commands) and returns its
// result value alongside any compile-time or runtime error.
type CompileUnitFunc func(source string) (interface{}, error)

// SessionIDKey is the field name under which a compile/REPL session's
// correlation ID is logged.
const SessionIDKey = "session_id"

// StructuredLoggingMiddleware wraps a compile/eval step with
// session-correlated before/after logging: a session ID is minted, the
// unit is logged as started, next runs, and the unit is logged as
// completed or failed along with its duration.
func StructuredLoggingMiddleware(logger *Logger) func(CompileUnitFunc) CompileUnitFunc {
	return func(next CompileUnitFunc) CompileUnitFunc {
		return func(source string) (interface{}, error) {
			start := time.Now()
			sessionID := NewSessionID()

			ctxLogger := logger.WithSessionID(sessionID).WithFields(map[string]interface{}{
				"source_bytes": len(source),
			})
			ctxLogger.Info("compile unit started")

			result, err := next(source)
			duration := time.Since(start)

			logFields := map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
			}
			if err != nil {
				logFields["error"] = err.Error()
				ctxLogger.ErrorWithFields("compile unit failed", logFields)
				return nil, err
			}

			ctxLogger.InfoWithFields("compile unit completed", logFields)
			return result, nil
		}
	}
}

// StructuredRecoveryMiddleware recovers from panics raised while compiling or
// executing a unit (a bytecode-emitter invariant violation, for instance)
// and turns them into an ordinary error instead of crashing the CLI/REPL
// process, logging the panic value with structured logging first.
func StructuredRecoveryMiddleware(logger *Logger) func(CompileUnitFunc) CompileUnitFunc {
	return func(next CompileUnitFunc) CompileUnitFunc {
		return func(source string) (result interface{}, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(map[string]interface{}{
						"panic": r,
					}).Error("panic recovered during compile unit")
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()

			return next(source)
		}
	}
}

// WithMacroExpansionDepthWarning logs a warning once a macro expansion's
// recursion depth crosses three quarters of the configured limit, ahead
// of the hard depth-limit error the macro registry raises.
func WithMacroExpansionDepthWarning(logger *Logger, macroName string, depth, limit int) {
	if depth < limit*3/4 {
		return
	}
	logger.WarnWithFields("macro expansion approaching depth limit", map[string]interface{}{
		"macro": macroName,
		"depth": depth,
		"limit": limit,
	})
}
