// Package logging provides a thin abstraction over slog so the pipeline
// core can depend on a minimal Logger interface while callers plug in
// any structured logger.
package logging

import (
	"io"
	"log/slog"
)

// Logger is the minimal structured logging interface used by the core.
// Arguments follow slog's alternating key/value convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// slogAdapter wraps *slog.Logger to implement Logger.
type slogAdapter struct{ *slog.Logger }

// NewSlogAdapter creates a Logger from an existing *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &slogAdapter{Logger: logger}
}

// NewJSONLogger creates a Logger writing JSON records to w at the given
// level.
func NewJSONLogger(w io.Writer, level slog.Level) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &slogAdapter{Logger: slog.New(handler)}
}

// Default returns a Logger backed by slog.Default().
func Default() Logger { return &slogAdapter{Logger: slog.Default()} }

// NoOp discards all log messages. Useful for tests or when logging is
// disabled.
type NoOp struct{}

// Debug implements Logger.
func (NoOp) Debug(string, ...any) {}

// Info implements Logger.
func (NoOp) Info(string, ...any) {}

// Warn implements Logger.
func (NoOp) Warn(string, ...any) {}

// Error implements Logger.
func (NoOp) Error(string, ...any) {}
