package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, level)
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(lvl))
		require.NoError(t, err)
		assert.Equal(t, lvl, parsed)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")
	cfg := DefaultConfig()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "file", cfg.Output)
	assert.Equal(t, "ltrnp", cfg.Component)
	assert.Equal(t, filepath.Join("/state", "ltrnp", "ltrnp.log"), cfg.FilePath)
}

func TestWithComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Component = ""

	logger := NewWriter(&buf, cfg).WithComponent("hotkey")
	logger.Info("bound key", "key", "Pause")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hotkey", entry["component"])
	assert.Equal(t, "bound key", entry["msg"])
	assert.Equal(t, "Pause", entry["key"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = LevelWarn

	logger := NewWriter(&buf, cfg)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "ltrnp.log")
	cfg.Compress = false

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("attached")
	require.NoError(t, logger.Sync())
	require.NoError(t, logger.Close())
	assert.NoError(t, logger.Close(), "second close is a no-op")

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "attached")
}

func TestOpenFallsBackToStderr(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(blocker, "sub", "ltrnp.log")

	_, err := New(cfg)
	require.Error(t, err)

	logger := Open(cfg)
	require.NotNil(t, logger)
	assert.NoError(t, logger.Close())
}

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, DefaultConfig())

	logger.StdLogger(LevelWarn).Print("read error is unrecoverable")
	assert.True(t, strings.Contains(buf.String(), "level=WARN"))
	assert.Contains(t, buf.String(), "read error is unrecoverable")
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	cfg := &Config{
		FilePath:   logPath,
		MaxSize:    1,
		MaxAge:     7,
		MaxBackups: 2,
	}

	rotator, err := NewFileRotator(cfg)
	require.NoError(t, err)
	defer rotator.Close()

	line := []byte(strings.Repeat("x", 1023) + "\n")
	for i := 0; i < 3*1024+10; i++ {
		_, err := rotator.Write(line)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{logPath, logPath + ".1", logPath + ".2"}, rotator.Files(),
		"backups beyond MaxBackups are removed")

	st, err := os.Stat(logPath + ".1")
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024), st.Size())
}

func TestFileRotatorCompress(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, Compress: true})
	require.NoError(t, err)
	defer rotator.Close()

	line := []byte(strings.Repeat("y", 1023) + "\n")
	for i := 0; i < 1025; i++ {
		_, err := rotator.Write(line)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{logPath, logPath + ".1.gz"}, rotator.Files())
	assert.NoFileExists(t, logPath+".1")
}

func TestFileRotatorZeroMaxSize(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath})
	require.NoError(t, err)
	defer rotator.Close()

	for i := 0; i < 10; i++ {
		_, err := rotator.Write([]byte("line\n"))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{logPath}, rotator.Files())
}
