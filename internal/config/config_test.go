package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltrnp/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LTRNP_DIR", "/cfg")
	cfg := DefaultConfig()

	assert.Equal(t, "Scroll_Lock", cfg.Keys.Recenter)
	assert.Equal(t, "Pause", cfg.Keys.Pause)
	assert.Equal(t, "linuxtrack", cfg.Engine.Backend)
	assert.Equal(t, time.Second, cfg.SettleDelay())
	assert.Equal(t, "Default", cfg.Profiles.DefaultName)
	assert.Equal(t, filepath.Join("/cfg", "apps.xml"), cfg.Profiles.AppDB)
	assert.Equal(t, filepath.Join("/cfg", "journal.db"), cfg.Journal.Path)
	assert.NoError(t, cfg.Validate())
}

func TestDir(t *testing.T) {
	t.Setenv("LTRNP_DIR", "")
	t.Setenv("HOME", "/home/pilot")
	assert.Equal(t, "/home/pilot/.ltrdll", Dir())
	assert.Equal(t, "/home/pilot/.ltrdll/config.toml", ConfigPath())
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing", "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "Scroll_Lock", cfg.Keys.Recenter)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[keys]
recenter = "F12"

[engine]
backend = "simulated"
settle_delay_ms = 250

[bridge]
socket_path = "/run/user/1000/np.sock"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "F12", cfg.Keys.Recenter)
	assert.Equal(t, "Pause", cfg.Keys.Pause, "unset keys keep defaults")
	assert.Equal(t, "simulated", cfg.Engine.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, "/run/user/1000/np.sock", cfg.Bridge.SocketPath)
}

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "config.yaml")
	writeFile(t, yamlPath, "keys:\n  pause: Insert\nnotify:\n  enabled: false\n")
	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "Insert", cfg.Keys.Pause)
	assert.False(t, cfg.Notify.Enabled)

	jsonPath := filepath.Join(dir, "config.json")
	writeFile(t, jsonPath, `{"engine": {"probe": true}}`)
	cfg, err = Load(jsonPath)
	require.NoError(t, err)
	assert.True(t, cfg.Engine.Probe)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[keys\nrecenter = ")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAppliesLegacyThenEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.toml"), "[keys]\nrecenter = \"F12\"\npause = \"F11\"\n")
	writeFile(t, filepath.Join(dir, "config"), "recenter = Home\npause = End\n")
	t.Setenv("LTRNP_PAUSE_KEY", "Insert")

	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "Home", cfg.Keys.Recenter)
	assert.Equal(t, "Insert", cfg.Keys.Pause)
}

func TestApplyLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	writeFile(t, path, strings.Join([]string{
		"# hotkeys",
		"",
		"  RECENTER\t=\tF9  ",
		"pause=",
		"zoom = F1",
		"===",
	}, "\n"))

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyLegacyFile(path))

	assert.Equal(t, "F9", cfg.Keys.Recenter)
	assert.Equal(t, "", cfg.Keys.Pause, "key with no value leaves the operation unbound")
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], `ignoring unknown: "zoom"`)
	assert.Contains(t, cfg.Warnings[1], "malformed line")
}

func TestApplyLegacyFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyLegacyFile(filepath.Join(t.TempDir(), "config"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "Scroll_Lock", cfg.Keys.Recenter)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"backend", func(c *Config) { c.Engine.Backend = "webcam" }, "engine.backend"},
		{"settle", func(c *Config) { c.Engine.SettleDelayMs = -1 }, "engine.settle_delay_ms"},
		{"default name", func(c *Config) { c.Profiles.DefaultName = "" }, "profiles.default_name"},
		{"socket", func(c *Config) { c.Bridge.SocketPath = "" }, "bridge.socket_path"},
		{"connections", func(c *Config) { c.Bridge.MaxConnections = 0 }, "bridge.max_connections"},
		{"journal", func(c *Config) { c.Journal.Path = "" }, "journal.path"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, []string{tt.field}, verrs.Fields())
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, ".ltrdll")

	require.NoError(t, EnsureDir(dir))
	st, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	require.NoError(t, EnsureDir(dir))

	file := filepath.Join(base, "plain")
	writeFile(t, file, "")
	assert.Error(t, EnsureDir(file))
}

func TestLogConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"

	lc := cfg.LogConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.Equal(t, "stderr", lc.Output)
	assert.Equal(t, int64(10), lc.MaxSize)
}

func TestKeyBinding(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "Scroll_Lock", cfg.KeyBinding("recenter"))
	assert.Equal(t, "Pause", cfg.KeyBinding("pause"))
	assert.Equal(t, "", cfg.KeyBinding("zoom"))
}
