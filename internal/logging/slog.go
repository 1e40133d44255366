package logging

import (
	"context"
	"log/slog"
	"strings"
)

var (
	_ Logger = (*SlogLogger)(nil)
	_ Logger = (*ZapLogger)(nil)
)

// Redacted replaces the value of any attribute whose key names credential
// material.
const Redacted = "[redacted]"

var sensitiveKeys = []string{"token", "password", "secret", "cookie", "authorization"}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// redactArgs masks the values of sensitive key-value pairs and attributes.
// args is not modified.
func redactArgs(args []any) []any {
	var out []any
	mask := func(i int, v any) {
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i] = v
	}
	for i := 0; i < len(args); {
		switch a := args[i].(type) {
		case slog.Attr:
			if isSensitive(a.Key) && a.Value.Kind() != slog.KindGroup {
				mask(i, slog.String(a.Key, Redacted))
			}
			i++
		case string:
			if i+1 < len(args) && isSensitive(a) {
				mask(i+1, Redacted)
			}
			i += 2
		default:
			i++
		}
	}
	if out == nil {
		return args
	}
	return out
}

// replaceAttr is installed on slog handlers so attributes passed as
// slog.Attr or groups are masked too.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitive(a.Key) && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l. Redaction of sensitive pairs happens here as
// well, so handlers built without replaceAttr stay safe for key-value args.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(redactArgs(args)...)}
}
