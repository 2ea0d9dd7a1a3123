package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"tarnhelm/internal/core/ports"
)

// LevelTrace sits below slog's debug level for per-file archive decisions.
const LevelTrace = slog.Level(-8)

// SlogLogger wraps *slog.Logger to implement ports.Logger
type SlogLogger struct {
	logger *slog.Logger
}

// Compile-time check to ensure SlogLogger implements ports.Logger
var _ ports.Logger = (*SlogLogger)(nil)

// NewSlogLogger creates a new SlogLogger writing text to stdout at info level
func NewSlogLogger() *SlogLogger {
	return NewSlogLoggerWithLevel(slog.LevelInfo)
}

// NewSlogLoggerWithLevel creates a new SlogLogger with the specified log level
func NewSlogLoggerWithLevel(level slog.Level) *SlogLogger {
	return NewSlogLoggerWithWriter(os.Stdout, level)
}

// NewSlogLoggerWithWriter creates a new SlogLogger writing to w
func NewSlogLoggerWithWriter(w io.Writer, level slog.Level) *SlogLogger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	return &SlogLogger{logger: slog.New(handler)}
}

// ParseLevel maps the configured log level name onto a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %q", name)
}

// Trace logs fine-grained per-item messages
func (l *SlogLogger) Trace(msg string, args ...any) {
	l.logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs debug messages with structured key-value pairs
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs informational messages with structured key-value pairs
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs warning messages with structured key-value pairs
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs error messages with structured key-value pairs
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// NopLogger is a no-op logger that discards all log messages
// Useful for testing or when logging should be disabled
type NopLogger struct{}

// Compile-time check to ensure NopLogger implements ports.Logger
var _ ports.Logger = (*NopLogger)(nil)

// NewNopLogger creates a new NopLogger
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Trace discards the message
func (l *NopLogger) Trace(msg string, args ...any) {}

// Debug discards the message
func (l *NopLogger) Debug(msg string, args ...any) {}

// Info discards the message
func (l *NopLogger) Info(msg string, args ...any) {}

// Warn discards the message
func (l *NopLogger) Warn(msg string, args ...any) {}

// Error discards the message
func (l *NopLogger) Error(msg string, args ...any) {}
