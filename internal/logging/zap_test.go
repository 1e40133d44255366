package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZapWriterLogger(&buf, "debug")
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", "two")
	log.Warn(ctx, "wrn")
	log.Error(ctx, "err", "d", true)
	require.NoError(t, log.Sync())

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)

	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "dbg", lines[0]["msg"])
	assert.EqualValues(t, 1, lines[0]["a"])
	assert.Equal(t, "info", lines[1]["level"])
	assert.Equal(t, "two", lines[1]["b"])
	assert.Equal(t, "warn", lines[2]["level"])
	assert.Equal(t, "error", lines[3]["level"])
	assert.Equal(t, true, lines[3]["d"])
}

func TestZapLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewZapWriterLogger(&buf, "warn")

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestZapLogger_With(t *testing.T) {
	var buf bytes.Buffer
	log := NewZapWriterLogger(&buf, "info").With("tab", "t-1")

	log.Info(context.Background(), "hello", "k", "v")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "t-1", lines[0]["tab"])
	assert.Equal(t, "v", lines[0]["k"])
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"", FormatText, FormatJSON, FormatZap} {
		var buf bytes.Buffer
		log, err := New(&buf, "info", format)
		require.NoError(t, err, format)
		log.Info(context.Background(), "ping", "format", format)
		assert.Contains(t, buf.String(), "ping", format)
	}

	_, err := New(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}

func TestNewNop_DoesNotPanic(t *testing.T) {
	log := NewNop()
	ctx := context.Background()
	log.Debug(ctx, "x")
	log.Info(ctx, "x")
	log.Warn(ctx, "x")
	log.Error(ctx, "x")
	log.With("a", 1).Info(ctx, "y")
}
