package logger

import (
	"bytes"
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

func newBufferedLogger(t *testing.T, level, format string) (*Logger, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:      level,
		Format:     format,
		TimeFormat: time.RFC3339,
		writer:     output,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)

	return logger, output
}

func TestNewLevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		suppressed func(l *Logger)
		emitted    func(l *Logger)
		wantLevel  string
	}{
		{
			name:       "info suppresses debug",
			level:      "info",
			suppressed: func(l *Logger) { l.Debug("dropped") },
			emitted:    func(l *Logger) { l.Info("kept", slog.String("job_id", "abc")) },
			wantLevel:  "INFO",
		},
		{
			name:       "warn suppresses info",
			level:      "warn",
			suppressed: func(l *Logger) { l.Info("dropped") },
			emitted:    func(l *Logger) { l.Warn("kept", slog.String("job_id", "abc")) },
			wantLevel:  "WARN",
		},
		{
			name:       "error suppresses warn",
			level:      "error",
			suppressed: func(l *Logger) { l.Warn("dropped") },
			emitted:    func(l *Logger) { l.Error("kept", slog.String("job_id", "abc")) },
			wantLevel:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, output := newBufferedLogger(t, tt.level, "json")

			tt.suppressed(logger)
			tt.emitted(logger)

			lines := strings.Split(strings.TrimSpace(output.String()), "\n")
			require.Len(t, lines, 1)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "kept", entry["msg"])
			assert.Equal(t, "abc", entry["job_id"])
		})
	}
}

func TestNewConsoleFormat(t *testing.T) {
	logger, output := newBufferedLogger(t, "info", "console")

	logger.Info("worker started", slog.Int("concurrency", 3))

	// tint renders levels as three-letter tags
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "worker started")
}

func TestNewSourceLocation(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:        "info",
		Format:       "json",
		EnableSource: true,
		writer:       output,
	})
	require.NoError(t, err)

	logger.Info("message with source")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	require.Contains(t, entry, "source")

	source := entry["source"].(map[string]interface{})
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("persisted line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "persisted line")
}

func TestNewFileOutputBadPath(t *testing.T) {
	logger, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: filepath.Join(t.TempDir(), "missing", "service.log"),
	})
	require.Error(t, err)
	assert.Nil(t, logger)
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warn", expected: slog.LevelWarn},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "DEBUG", expected: slog.LevelInfo}, // case-sensitive, falls back to info
		{level: "invalid", expected: slog.LevelInfo},
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLoggerWithGroup(t *testing.T) {
	logger, output := newBufferedLogger(t, "info", "json")

	logger.WithGroup("queue").Info("published", slog.String("exchange", "resume.jobs"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))

	require.Contains(t, entry, "queue")
	group := entry["queue"].(map[string]interface{})
	assert.Equal(t, "resume.jobs", group["exchange"])
}

func TestLoggerWith(t *testing.T) {
	logger, output := newBufferedLogger(t, "info", "json")

	logger.With(slog.String("service", "worker"), slog.Int("pid", 42)).Info("ready")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))

	assert.Equal(t, "worker", entry["service"])
	assert.Equal(t, float64(42), entry["pid"])
	assert.Equal(t, "ready", entry["msg"])
}
