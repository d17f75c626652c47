package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LTRNP_DIR", dir)
	t.Setenv("LTRNP_ENGINE", "")
	t.Setenv("LTRNP_LOG_LEVEL", "")
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nbackend = \"simulated\"\nsettle_delay_ms = 250\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apps.xml"),
		[]byte(`<Games><Game id="1" name="One"/><Game id="2" name="Two"/></Games>`), 0o644))

	out, err := runRoot(t, "check-config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "engine:       simulated (settle 250ms)")
	assert.Contains(t, out, "applications: 2 in ")
	assert.Contains(t, out, "logging:      info to ")
	assert.Contains(t, out, "ok\n")
}

func TestCheckConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LTRNP_DIR", dir)
	t.Setenv("LTRNP_ENGINE", "")
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nbackend = \"bogus\"\n"), 0o644))

	out, err := runRoot(t, "check-config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.backend")
	assert.NotContains(t, out, "ok\n")
}

func TestVersionFlag(t *testing.T) {
	out, err := runRoot(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
