package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/vlookup/internal/logging"
)

func TestConsoleLoggerFormatsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	require.NoError(t, err)

	logger.With("run", "r1").WithGroup("stats").Info("match run complete", "exact", 2, "note", "two words")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INFO  match run complete")
	assert.Contains(t, out, "run=r1")
	assert.Contains(t, out, "stats.exact=2")
	assert.Contains(t, out, `stats.note="two words"`)
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, ".go:")
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("with source", "error", errors.New("boom"))
	assert.Contains(t, buf.String(), "logger_test.go:")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("progress callback panicked", "message", "Embedding")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "progress callback panicked", entry["msg"])
	assert.Equal(t, "Embedding", entry["message"])
	assert.Contains(t, entry, "ts")
}

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vlookup.log")
	logger, err := logging.New(logging.Options{Writer: &bytes.Buffer{}, File: path})
	require.NoError(t, err)

	logger.Info("written to file")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, logging.ParseLevel(in), in)
	}
}
