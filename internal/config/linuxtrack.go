package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// RegisterLinuxtrackProfile makes sure the linuxtrack configuration at
// path has a section titled name, appending
//
//	[Sanitized_Name]
//	Title = name
//
// when no "Title = name" line exists (compared case-insensitively). It
// reports whether the file was changed. The file must already exist.
func RegisterLinuxtrackProfile(path, name string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("open linuxtrack config: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "Title") {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(value), name) {
			return false, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("read linuxtrack config: %w", err)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return false, fmt.Errorf("seek linuxtrack config: %w", err)
	}
	if _, err := fmt.Fprintf(f, "\n[%s]\nTitle = %s\n", SanitizeSection(name), name); err != nil {
		return false, fmt.Errorf("append linuxtrack profile: %w", err)
	}
	return true, nil
}

// SanitizeSection replaces ASCII whitespace and punctuation with '_'.
func SanitizeSection(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			return '_'
		}
		return r
	}, name)
}
