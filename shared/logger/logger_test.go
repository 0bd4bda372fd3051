package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel string
		wantCount int
	}{
		{name: "debug keeps everything", level: "debug", wantLevel: "DEBUG", wantCount: 4},
		{name: "info drops debug", level: "info", wantLevel: "INFO", wantCount: 3},
		{name: "warn drops info", level: "warn", wantLevel: "WARN", wantCount: 2},
		{name: "error keeps only errors", level: "error", wantLevel: "ERROR", wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			logger.Debug("debug", slog.String("job_id", "j-1"))
			logger.Info("info", slog.String("job_id", "j-1"))
			logger.Warn("warn", slog.String("job_id", "j-1"))
			logger.Error("error", slog.String("job_id", "j-1"))

			entries := decodeLines(t, output)
			require.Len(t, entries, tt.wantCount)
			assert.Equal(t, tt.wantLevel, entries[0]["level"])
			assert.Equal(t, "j-1", entries[0]["job_id"])
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "console", TimeFormat: time.Kitchen, writer: output})
	require.NoError(t, err)

	logger.Info("queue started", slog.String("backend", "memory"))

	// tint abbreviates levels
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "queue started")
	assert.Contains(t, output.String(), "memory")
}

func TestNew_SourceLocation(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: output})
	require.NoError(t, err)

	logger.Info("with source")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("written to file", slog.String("job_type", "candidate_import"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), "candidate_import")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_Derived(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	logger.WithGroup("importer").Info("grouped", slog.String("project_id", "p-1"))
	logger.WithAttrs(slog.String("component", "dispatcher")).Info("with attrs")
	logger.With("worker", 2).Info("with args")

	entries := decodeLines(t, output)
	require.Len(t, entries, 3)

	group := entries[0]["importer"].(map[string]any)
	assert.Equal(t, "p-1", group["project_id"])
	assert.Equal(t, "dispatcher", entries[1]["component"])
	assert.Equal(t, float64(2), entries[2]["worker"])
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}
