// Package logging defines the structured-logging interface used across the
// client. Backends wrap log/slog or zap; callers only see Logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "session scheduled", "expires_at", exp, "warning_in", d)
type Logger interface {
	// Debug logs diagnostic detail such as timer arming.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatZap  = "zap"
)

// New builds a Logger writing to w. format selects the backend: "text" and
// "json" use slog handlers, "zap" uses a zap JSON core. Every backend masks
// credential-looking attributes.
func New(w io.Writer, level, format string) (Logger, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel(level), ReplaceAttr: replaceAttr}))), nil
	case FormatJSON:
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level), ReplaceAttr: replaceAttr}))), nil
	case FormatZap:
		return NewZapWriterLogger(w, level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
