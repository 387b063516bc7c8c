package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"WARNING": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("TRACE")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "INFO", "json")
	require.NoError(t, err)

	ctx := WithRunID(context.Background(), "run-123")
	log.DebugContext(ctx, "hidden")
	log.With("file", "a.7z").InfoContext(ctx, "downloaded", "bytes", 10)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "INFO", rec["severity"])
	assert.Contains(t, rec, "ts")
	assert.Equal(t, "downloaded", rec["msg"])
	assert.Equal(t, "a.7z", rec["file"])
	assert.Equal(t, "run-123", rec["run"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "DEBUG", "text")
	require.NoError(t, err)

	log.Debug("sizing", "file", "b.7z")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "file=b.7z")
	assert.NotContains(t, buf.String(), "run=")
}

func TestNewInvalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "INFO", "xml")
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, "LOUD", "text")
	assert.Error(t, err)
}
