// Package logging provides structured logging with slog for ltrnp.
//
// Every component logs through a child of one root logger created at
// attach time. The root logger writes to a rotated file under the user's
// state directory and falls back to stderr when that file cannot be
// opened, so a broken log path never stops the bridge from starting.
package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config describes where and how a Logger writes.
type Config struct {
	Level  Level
	Format Format

	// Output is "file", "both" (file and stderr), "stdout", "stderr" or
	// "discard".
	Output   string
	FilePath string

	// Rotation: MaxSize in megabytes, MaxAge in days. Zero disables
	// that limit.
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool

	AddSource bool

	// Component is attached to every record as "component".
	Component string
}

// DefaultConfig logs text at info to DefaultLogPath.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "file",
		FilePath:   DefaultLogPath(),
		MaxSize:    10,
		MaxAge:     14,
		MaxBackups: 3,
		Compress:   true,
		Component:  "ltrnp",
	}
}

// DefaultLogPath returns $XDG_STATE_HOME/ltrnp/ltrnp.log.
func DefaultLogPath() string {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "ltrnp.log")
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "ltrnp", "ltrnp.log")
}

// Logger is a slog.Logger that may own a log file.
type Logger struct {
	*slog.Logger

	mu      sync.Mutex
	rotator *FileRotator
	closed  bool
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process logger. Until SetDefault is called it
// writes text to stderr.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewWriter(os.Stderr, DefaultConfig())
	}
	return defaultLogger
}

// SetDefault makes l the process logger, for this package and for slog.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// New builds a Logger for cfg. It fails only when the log file cannot be
// opened.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var (
		w       io.Writer
		rotator *FileRotator
	)
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		w = os.Stdout
	case "discard":
		w = io.Discard
	case "file", "both":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rotator, w = r, r
		if strings.EqualFold(cfg.Output, "both") {
			w = io.MultiWriter(r, os.Stderr)
		}
	default:
		w = os.Stderr
	}

	l := NewWriter(w, cfg)
	l.rotator = rotator
	return l, nil
}

// Open is New with the fallback the daemon relies on: when the configured
// log file cannot be opened the returned logger writes to stderr and the
// error is reported through that logger.
func Open(cfg *Config) *Logger {
	l, err := New(cfg)
	if err == nil {
		return l
	}
	l = NewWriter(os.Stderr, cfg)
	l.Warn("log file unavailable, logging to stderr", "path", cfg.FilePath, "error", err)
	return l
}

// NewWriter builds a Logger on w. The Output and rotation fields of cfg
// are ignored.
func NewWriter(w io.Writer, cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, &Config{Level: LevelError})
}

// WithComponent returns a child logger tagged with name. The child shares
// the parent's writer; closing it is a no-op.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", name))}
}

// StdLogger adapts the logger for libraries that only accept a
// *log.Logger.
func (l *Logger) StdLogger(level Level) *log.Logger {
	return slog.NewLogLogger(l.Handler(), level)
}

// Close closes the log file, if this logger owns one.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.rotator == nil {
		return nil
	}
	l.closed = true
	return l.rotator.Close()
}

// Sync flushes the log file to disk.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.rotator == nil {
		return nil
	}
	return l.rotator.Sync()
}

// ParseLevel parses debug, info, warn (or warning) and error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// ParseFormat parses "text" (or empty) and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %q", s)
}

// LevelString is the inverse of ParseLevel.
func LevelString(level Level) string {
	switch {
	case level <= LevelDebug:
		return "debug"
	case level <= LevelInfo:
		return "info"
	case level <= LevelWarn:
		return "warn"
	default:
		return "error"
	}
}
