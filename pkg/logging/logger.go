// Package logging provides structured diagnostics for the compiler, VM,
// and REPL. Every entry carries a compile/REPL session correlation ID
// and the pipeline phase it came from, so one JSON log of a session can
// be filtered down to a single stage of a single unit.
//
// Writes are synchronous under one mutex. A compile invocation is a
// short-lived, single-process run whose log volume is a handful of
// lines per unit, so there is no background writer, no entry buffer,
// and no file rotation here; the only concurrency to guard against is
// the WebSocket REPL evaluating sessions on separate goroutines.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogLevel is the severity of a log entry.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the level's name.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// LogFormat selects the output encoding.
type LogFormat int

const (
	// TextFormat writes one aligned human-readable line per entry.
	TextFormat LogFormat = iota
	// JSONFormat writes one JSON object per line.
	JSONFormat
)

// Pipeline stage names for Entry.Phase.
const (
	PhaseRead    = "read"
	PhaseLower   = "lower"
	PhaseExpand  = "expand"
	PhaseResolve = "resolve"
	PhaseEmit    = "emit"
	PhaseExec    = "exec"
)

// Entry is one structured record: a compile or eval event plus its
// session and stage context.
type Entry struct {
	Time      time.Time              `json:"time"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	SessionID string                 `json:"session_id,omitempty"`
	Phase     string                 `json:"phase,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LoggerConfig configures a Logger.
type LoggerConfig struct {
	// MinLevel drops entries below this severity. The zero value is
	// DEBUG, i.e. everything.
	MinLevel LogLevel
	// Format selects text or JSON output (default TextFormat).
	Format LogFormat
	// Output receives every entry (default stderr, keeping diagnostics
	// out of the program's own stdout).
	Output io.Writer
	// FilePath, when non-empty, appends every entry to this file as
	// well. Plain append only — log files here live for one compile or
	// REPL session, not for a long-running service.
	FilePath string
}

// Logger renders entries and writes them to its sinks. Safe for
// concurrent use.
type Logger struct {
	mu       sync.Mutex
	minLevel LogLevel
	format   LogFormat
	out      io.Writer
	file     *os.File
	closed   bool
}

// NewLogger builds a Logger from config, opening the log file if one is
// named.
func NewLogger(config LoggerConfig) (*Logger, error) {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	l := &Logger{
		minLevel: config.MinLevel,
		format:   config.Format,
		out:      out,
	}

	if config.FilePath != "" {
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		l.out = io.MultiWriter(out, file)
	}

	return l, nil
}

// Close flushes nothing (writes are synchronous) but closes the log
// file, after which further entries are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// emit renders and writes one entry. FATAL entries end the process.
func (l *Logger) emit(level LogLevel, ctx ContextLogger, msg string, extra map[string]interface{}) {
	if level < l.minLevel {
		return
	}

	entry := Entry{
		Time:      time.Now(),
		Level:     level.String(),
		Message:   msg,
		SessionID: ctx.sessionID,
		Phase:     ctx.phase,
		Fields:    mergeFields(ctx.fields, extra),
	}

	var line string
	if l.format == JSONFormat {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
			return
		}
		line = string(data) + "\n"
	} else {
		line = entry.text()
	}

	l.mu.Lock()
	if !l.closed {
		if _, err := io.WriteString(l.out, line); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write log: %v\n", err)
		}
	}
	l.mu.Unlock()

	if level == FATAL {
		l.Close()
		os.Exit(1)
	}
}

// text renders an entry as
//
//	2006-01-02 15:04:05.000 LEVEL [session] [phase] message key=value ...
//
// with fields in sorted key order, so two runs of the same program
// produce byte-identical logs apart from timestamps.
func (e Entry) text() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02 15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%-5s", e.Level))

	if e.SessionID != "" {
		fmt.Fprintf(&b, " [%s]", e.SessionID)
	}
	if e.Phase != "" {
		fmt.Fprintf(&b, " [%s]", e.Phase)
	}

	b.WriteByte(' ')
	b.WriteString(e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
		}
	}

	b.WriteByte('\n')
	return b.String()
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// ContextLogger is an immutable (session, phase, fields) triple bound to
// a Logger; the With* methods derive new contexts, they never mutate.
// The zero context is the Logger's own uncorrelated view.
type ContextLogger struct {
	logger    *Logger
	sessionID string
	phase     string
	fields    map[string]interface{}
}

// WithSessionID returns a context whose entries carry the given
// compile/REPL session correlation ID.
func (l *Logger) WithSessionID(sessionID string) ContextLogger {
	return ContextLogger{logger: l, sessionID: sessionID}
}

// WithFields returns a context carrying the given base fields.
func (l *Logger) WithFields(fields map[string]interface{}) ContextLogger {
	return ContextLogger{logger: l, fields: fields}
}

// WithSessionID derives a context with a different session ID.
func (cl ContextLogger) WithSessionID(sessionID string) ContextLogger {
	cl.sessionID = sessionID
	return cl
}

// WithPhase derives a context tagged with a pipeline phase (one of the
// Phase* constants, or any caller-chosen stage name).
func (cl ContextLogger) WithPhase(phase string) ContextLogger {
	cl.phase = phase
	return cl
}

// WithField derives a context with one more base field.
func (cl ContextLogger) WithField(key string, value interface{}) ContextLogger {
	cl.fields = mergeFields(cl.fields, map[string]interface{}{key: value})
	return cl
}

// WithFields derives a context with the given fields merged in.
func (cl ContextLogger) WithFields(fields map[string]interface{}) ContextLogger {
	cl.fields = mergeFields(cl.fields, fields)
	return cl
}

// Debug logs at DEBUG with this context.
func (cl ContextLogger) Debug(msg string) { cl.logger.emit(DEBUG, cl, msg, nil) }

// Info logs at INFO with this context.
func (cl ContextLogger) Info(msg string) { cl.logger.emit(INFO, cl, msg, nil) }

// Warn logs at WARN with this context.
func (cl ContextLogger) Warn(msg string) { cl.logger.emit(WARN, cl, msg, nil) }

// Error logs at ERROR with this context.
func (cl ContextLogger) Error(msg string) { cl.logger.emit(ERROR, cl, msg, nil) }

// Fatal logs at FATAL with this context and exits.
func (cl ContextLogger) Fatal(msg string) { cl.logger.emit(FATAL, cl, msg, nil) }

// DebugWithFields logs at DEBUG with extra fields merged over the
// context's base fields.
func (cl ContextLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	cl.logger.emit(DEBUG, cl, msg, fields)
}

// InfoWithFields logs at INFO with extra fields merged in.
func (cl ContextLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	cl.logger.emit(INFO, cl, msg, fields)
}

// WarnWithFields logs at WARN with extra fields merged in.
func (cl ContextLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	cl.logger.emit(WARN, cl, msg, fields)
}

// ErrorWithFields logs at ERROR with extra fields merged in.
func (cl ContextLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	cl.logger.emit(ERROR, cl, msg, fields)
}

// FatalWithFields logs at FATAL with extra fields merged in and exits.
func (cl ContextLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	cl.logger.emit(FATAL, cl, msg, fields)
}

// The Logger's own level methods are its zero context's.

// Debug logs at DEBUG.
func (l *Logger) Debug(msg string) { l.emit(DEBUG, ContextLogger{}, msg, nil) }

// Info logs at INFO.
func (l *Logger) Info(msg string) { l.emit(INFO, ContextLogger{}, msg, nil) }

// Warn logs at WARN.
func (l *Logger) Warn(msg string) { l.emit(WARN, ContextLogger{}, msg, nil) }

// Error logs at ERROR.
func (l *Logger) Error(msg string) { l.emit(ERROR, ContextLogger{}, msg, nil) }

// Fatal logs at FATAL and exits the process.
func (l *Logger) Fatal(msg string) { l.emit(FATAL, ContextLogger{}, msg, nil) }

// DebugWithFields logs at DEBUG with fields.
func (l *Logger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.emit(DEBUG, ContextLogger{}, msg, fields)
}

// InfoWithFields logs at INFO with fields.
func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.emit(INFO, ContextLogger{}, msg, fields)
}

// WarnWithFields logs at WARN with fields.
func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.emit(WARN, ContextLogger{}, msg, fields)
}

// ErrorWithFields logs at ERROR with fields.
func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.emit(ERROR, ContextLogger{}, msg, fields)
}

// FatalWithFields logs at FATAL with fields and exits.
func (l *Logger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.emit(FATAL, ContextLogger{}, msg, fields)
}

// NewSessionID mints a fresh correlation ID for one compile or REPL
// session.
func NewSessionID() string {
	return uuid.New().String()
}

// Process-wide default logger, used by cmd/lispc via the package-level
// functions below.
var (
	defaultLogger   *Logger
	defaultLoggerMu sync.Mutex
)

// InitDefaultLogger replaces the process-wide default logger.
func InitDefaultLogger(config LoggerConfig) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()

	if defaultLogger != nil {
		defaultLogger.Close()
	}
	defaultLogger = logger
	return nil
}

// GetDefaultLogger returns the process-wide logger, creating a plain
// INFO/text/stderr one on first use.
func GetDefaultLogger() *Logger {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()

	if defaultLogger == nil {
		defaultLogger, _ = NewLogger(LoggerConfig{MinLevel: INFO})
	}
	return defaultLogger
}

// Debug logs at DEBUG on the default logger.
func Debug(msg string) { GetDefaultLogger().Debug(msg) }

// Info logs at INFO on the default logger.
func Info(msg string) { GetDefaultLogger().Info(msg) }

// Warn logs at WARN on the default logger.
func Warn(msg string) { GetDefaultLogger().Warn(msg) }

// Error logs at ERROR on the default logger.
func Error(msg string) { GetDefaultLogger().Error(msg) }

// Fatal logs at FATAL on the default logger and exits.
func Fatal(msg string) { GetDefaultLogger().Fatal(msg) }

// WithSessionID returns a session-scoped context on the default logger.
func WithSessionID(sessionID string) ContextLogger {
	return GetDefaultLogger().WithSessionID(sessionID)
}

// WithFields returns a field-scoped context on the default logger.
func WithFields(fields map[string]interface{}) ContextLogger {
	return GetDefaultLogger().WithFields(fields)
}
