package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: replaceAttr})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "timer armed", "kind", "warning")
	log.Info(ctx, "logged in", "user", 7)
	log.Warn(ctx, "refresh failed", "attempt", 2)
	log.Error(ctx, "teardown", "stage", "store")

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "kind=warning",
		"level=INFO", "user=7",
		"level=WARN", "attempt=2",
		"level=ERROR", "stage=store",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_With(t *testing.T) {
	log, buf := newTestLogger(t)

	log.With("tab", "t-1").Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	assert.Contains(t, out, "tab=t-1")
	assert.Contains(t, out, "k=v")
	assert.Contains(t, out, "msg=hello")
}

func TestSlogLogger_RedactsCredentials(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.With("refresh_token", "r-123").Info(ctx, "stored",
		"access_token", "a-456",
		"Password", "hunter2",
		slog.String("cookie", "sid=1"),
		"email", "ada@example.com",
	)

	out := buf.String()
	for _, secret := range []string{"r-123", "a-456", "hunter2", "sid=1"} {
		assert.NotContains(t, out, secret)
	}
	assert.Contains(t, out, "access_token="+Redacted)
	assert.Contains(t, out, "email=ada@example.com")
}

func TestRedactArgs_LeavesInputAlone(t *testing.T) {
	args := []any{"token", "abc", "n", 1}
	got := redactArgs(args)

	assert.Equal(t, []any{"token", Redacted, "n", 1}, got)
	assert.Equal(t, "abc", args[1])

	plain := []any{"n", 1, "odd"}
	assert.Equal(t, plain, redactArgs(plain))
}

func TestSlogLevel_Parsing(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, slogLevel(in), in)
	}
}

func TestRedactArgs_Attrs(t *testing.T) {
	args := []any{slog.String("refresh_token", "r"), "user", 1}
	got := redactArgs(args)

	assert.Equal(t, slog.String("refresh_token", Redacted), got[0])
	assert.Equal(t, 1, got[2])
}
