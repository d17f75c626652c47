// Package config handles configuration loading and validation for ltrnp.
//
// Settings live in ~/.ltrdll (LTRNP_DIR overrides): config.toml (or
// .yaml/.json), the older line-oriented "config" file for key names, and
// apps.xml, the database mapping host profile ids to application names.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"ltrnp/internal/logging"
)

// File names inside the configuration directory.
const (
	ConfigFileName = "config.toml"
	LegacyFileName = "config"
	AppDBFileName  = "apps.xml"
	JournalName    = "journal.db"
)

// Config holds the complete bridge configuration.
type Config struct {
	Keys     KeysConfig     `toml:"keys" json:"keys" yaml:"keys"`
	Engine   EngineConfig   `toml:"engine" json:"engine" yaml:"engine"`
	Profiles ProfilesConfig `toml:"profiles" json:"profiles" yaml:"profiles"`
	Bridge   BridgeConfig   `toml:"bridge" json:"bridge" yaml:"bridge"`
	Journal  JournalConfig  `toml:"journal" json:"journal" yaml:"journal"`
	Notify   NotifyConfig   `toml:"notify" json:"notify" yaml:"notify"`
	Display  DisplayConfig  `toml:"display" json:"display" yaml:"display"`
	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`

	// Warnings collects problems found while loading that did not stop
	// the load, such as unknown keys in the legacy file.
	Warnings []string `toml:"-" json:"-" yaml:"-"`
}

// KeysConfig names the hotkeys. An empty name disables that shortcut.
type KeysConfig struct {
	Recenter string `toml:"recenter" json:"recenter" yaml:"recenter"`
	Pause    string `toml:"pause" json:"pause" yaml:"pause"`
}

// EngineConfig selects and tunes the head-pose engine.
type EngineConfig struct {
	// Backend is "linuxtrack" or "simulated".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// SettleDelayMs is the wait between waking the engine and the
	// automatic recenter when transmission starts.
	SettleDelayMs int `toml:"settle_delay_ms" json:"settle_delay_ms" yaml:"settle_delay_ms"`

	// Probe wraps the engine in a concurrent-call counter reported by
	// status.
	Probe bool `toml:"probe" json:"probe" yaml:"probe"`
}

// ProfilesConfig controls how host profile ids become engine profiles.
type ProfilesConfig struct {
	AppDB            string `toml:"app_db" json:"app_db" yaml:"app_db"`
	LinuxtrackConfig string `toml:"linuxtrack_config" json:"linuxtrack_config" yaml:"linuxtrack_config"`
	RegisterNew      bool   `toml:"register_new" json:"register_new" yaml:"register_new"`
	DefaultName      string `toml:"default_name" json:"default_name" yaml:"default_name"`
	WatchAppDB       bool   `toml:"watch_app_db" json:"watch_app_db" yaml:"watch_app_db"`
}

// BridgeConfig configures the unix socket the host stub talks to.
type BridgeConfig struct {
	SocketPath     string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
	MaxConnections int    `toml:"max_connections" json:"max_connections" yaml:"max_connections"`
	ReadTimeoutSec int    `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`
}

// JournalConfig configures the session journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`
}

// NotifyConfig configures desktop notifications.
type NotifyConfig struct {
	Enabled   bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	TimeoutMs int  `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// DisplayConfig selects the X display. An empty name uses $DISPLAY.
type DisplayConfig struct {
	Name string `toml:"name" json:"name" yaml:"name"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// Dir returns the configuration directory: $LTRNP_DIR, else ~/.ltrdll.
func Dir() string {
	if v := os.Getenv("LTRNP_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ltrdll"
	}
	return filepath.Join(home, ".ltrdll")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(Dir(), ConfigFileName)
}

// DefaultConfig returns a configuration with defaults rooted at Dir.
func DefaultConfig() *Config {
	dir := Dir()
	home, _ := os.UserHomeDir()

	return &Config{
		Keys: KeysConfig{
			Recenter: "Scroll_Lock",
			Pause:    "Pause",
		},
		Engine: EngineConfig{
			Backend:       "linuxtrack",
			SettleDelayMs: 1000,
		},
		Profiles: ProfilesConfig{
			AppDB:            filepath.Join(dir, AppDBFileName),
			LinuxtrackConfig: filepath.Join(home, ".linuxtrack"),
			RegisterNew:      true,
			DefaultName:      "Default",
			WatchAppDB:       true,
		},
		Bridge: BridgeConfig{
			SocketPath:     defaultSocketPath(),
			MaxConnections: 8,
			ReadTimeoutSec: 0,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dir, JournalName),
		},
		Notify: NotifyConfig{
			Enabled:   true,
			TimeoutMs: 2000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

func defaultSocketPath() string {
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "ltrnp.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("ltrnp-%d.sock", os.Getuid()))
}

// Load reads configuration from path (ConfigPath when empty), then the
// legacy key file next to it, then environment overrides. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	if err := cfg.decodeFile(path); err != nil {
		return nil, err
	}

	legacy := filepath.Join(filepath.Dir(path), LegacyFileName)
	if err := cfg.ApplyLegacyFile(legacy); err != nil && !errors.Is(err, os.ErrNotExist) {
		cfg.Warnings = append(cfg.Warnings, err.Error())
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies LTRNP_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := os.LookupEnv("LTRNP_RECENTER_KEY"); ok {
		c.Keys.Recenter = v
	}
	if v, ok := os.LookupEnv("LTRNP_PAUSE_KEY"); ok {
		c.Keys.Pause = v
	}
	if v := os.Getenv("LTRNP_ENGINE"); v != "" {
		c.Engine.Backend = v
	}
	if v := os.Getenv("LTRNP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LTRNP_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("LTRNP_SOCKET_PATH"); v != "" {
		c.Bridge.SocketPath = v
	}
}

// EnsureDir creates dir if it does not exist. It fails when dir exists
// and is not a directory.
func EnsureDir(dir string) error {
	st, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat config directory: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", dir)
	}
	return nil
}

// SettleDelay returns Engine.SettleDelayMs as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Engine.SettleDelayMs) * time.Millisecond
}

// KeyBinding returns the configured key name for op ("recenter" or
// "pause").
func (c *Config) KeyBinding(op string) string {
	switch op {
	case "recenter":
		return c.Keys.Recenter
	case "pause":
		return c.Keys.Pause
	default:
		return ""
	}
}

// LogConfig converts the logging section for the logging package.
// Values that fail to parse keep the logging defaults; Validate reports
// them.
func (c *Config) LogConfig() *logging.Config {
	lc := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = lvl
	}
	if f, err := logging.ParseFormat(c.Logging.Format); err == nil {
		lc.Format = f
	}
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc
}
