package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ApplyLegacyFile reads key names from the line-oriented config file:
//
//	# comment
//	recenter = Scroll_Lock
//	pause = Pause
//
// Keys are case-insensitive. A key with no value leaves that operation
// unbound. Unknown keys and malformed lines are recorded in c.Warnings and
// skipped.
func (c *Config) ApplyLegacyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open legacy config: %w", err)
	}
	defer f.Close()

	isDelim := func(r rune) bool {
		return r == ' ' || r == '=' || r == '\t' || r == '\n' || r == '\r'
	}

	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, isDelim)
		if len(fields) == 0 {
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s line %d: malformed line: %q", path, lineno, line))
			continue
		}

		var target *string
		switch strings.ToLower(fields[0]) {
		case "recenter":
			target = &c.Keys.Recenter
		case "pause":
			target = &c.Keys.Pause
		default:
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s line %d: ignoring unknown: %q", path, lineno, fields[0]))
			continue
		}

		if len(fields) < 2 {
			*target = ""
			continue
		}
		*target = fields[1]
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read legacy config: %w", err)
	}
	return nil
}
