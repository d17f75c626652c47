package config

import (
	"fmt"
	"strings"
)

// FieldError is a problem with one configuration field, named by its
// dotted TOML path.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// ValidationErrors lists every problem Validate found.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, fe := range e {
		fields[i] = fe.Field
	}
	return fields
}

type validator struct {
	errs ValidationErrors
}

// require records msg against field unless ok holds.
func (v *validator) require(ok bool, field, msg string, args ...any) {
	if !ok {
		v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(msg, args...)})
	}
}

func oneOf(s string, valid ...string) bool {
	for _, x := range valid {
		if s == x {
			return true
		}
	}
	return false
}

// Validate checks the configuration. The returned error, when non-nil, is
// a ValidationErrors.
func (c *Config) Validate() error {
	var v validator

	v.require(oneOf(c.Engine.Backend, "linuxtrack", "simulated"), "engine.backend",
		"unknown backend %q (valid: linuxtrack, simulated)", c.Engine.Backend)
	v.require(c.Engine.SettleDelayMs >= 0, "engine.settle_delay_ms", "cannot be negative")

	v.require(c.Profiles.DefaultName != "", "profiles.default_name", "is required")

	v.require(c.Bridge.SocketPath != "", "bridge.socket_path", "is required")
	v.require(c.Bridge.MaxConnections >= 1, "bridge.max_connections", "must be at least 1")
	v.require(c.Bridge.ReadTimeoutSec >= 0, "bridge.read_timeout_sec", "cannot be negative")

	v.require(!c.Journal.Enabled || c.Journal.Path != "", "journal.path",
		"is required when the journal is enabled")
	v.require(c.Notify.TimeoutMs >= 0, "notify.timeout_ms", "cannot be negative")

	l := &c.Logging
	v.require(oneOf(l.Level, "debug", "info", "warn", "error"), "logging.level",
		"unknown level %q (valid: debug, info, warn, error)", l.Level)
	v.require(oneOf(l.Format, "text", "json"), "logging.format",
		"unknown format %q (valid: text, json)", l.Format)
	v.require(oneOf(l.Output, "stdout", "stderr", "file", "both", "discard"), "logging.output",
		"unknown output %q (valid: stdout, stderr, file, both, discard)", l.Output)
	if oneOf(l.Output, "file", "both") {
		v.require(l.FilePath != "", "logging.file_path", "is required when output is %q", l.Output)
	}
	v.require(l.MaxSizeMB >= 0 && l.MaxBackups >= 0 && l.MaxAgeDays >= 0, "logging",
		"rotation limits cannot be negative")

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}
