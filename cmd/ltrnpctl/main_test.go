package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltrnp/internal/config"
	"ltrnp/internal/control"
	"ltrnp/internal/engine"
	"ltrnp/internal/hotkey"
	"ltrnp/internal/logging"
	"ltrnp/internal/notify"
	"ltrnp/internal/shim"
)

// closedDisplay is a Display that has already lost its connection.
type closedDisplay struct{}

func (closedDisplay) Lookup(string) (control.KeyRef, error) { return control.NoKey, hotkey.ErrKeyNotFound }
func (closedDisplay) Grab(control.KeyRef) error             { return nil }
func (closedDisplay) Ungrab(control.KeyRef) error           { return nil }
func (closedDisplay) NextEvent() (hotkey.Event, error)      { return hotkey.Event{}, io.EOF }
func (closedDisplay) Close() error                          { return nil }

type daemon struct {
	sim    *engine.Simulated
	socket string
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LTRNP_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.AppDBFileName),
		[]byte(`<Games><Game id="2025" name="Sim Flight"/></Games>`), 0o644))

	sockDir, err := os.MkdirTemp("", "ltrnp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })

	cfg := config.DefaultConfig()
	cfg.Engine.Backend = engine.BackendSimulated
	cfg.Engine.SettleDelayMs = 0
	cfg.Profiles.RegisterNew = false
	cfg.Profiles.WatchAppDB = false
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Bridge.SocketPath = filepath.Join(sockDir, "s.sock")

	d := &daemon{sim: engine.NewSimulated(), socket: cfg.Bridge.SocketPath}
	s, err := shim.Attach(context.Background(), shim.Options{
		Config:   cfg,
		Logger:   logging.Discard(),
		Engine:   d.sim,
		Dial:     func() (hotkey.Display, error) { return closedDisplay{}, nil },
		Notifier: notify.Nop{},
		Version:  "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Detach() })
	require.NoError(t, s.ServeBridge())
	return d
}

func (d *daemon) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--socket", d.socket))
	err := root.Execute()
	return out.String(), err
}

func TestHostCallsThroughCLI(t *testing.T) {
	d := startDaemon(t)

	out, err := d.run(t, "profile", "2025")
	require.NoError(t, err)
	assert.Contains(t, out, "NP_RegisterProgramProfileID: ok")
	assert.Equal(t, "Sim Flight", d.sim.Profile())

	out, err = d.run(t, "start")
	require.NoError(t, err)
	assert.Contains(t, out, "NP_StartDataTransmission: ok")
	assert.False(t, d.sim.Suspended())

	d.sim.SetPose(engine.Pose{Yaw: 45})
	out, err = d.run(t, "data", "--count", "2", "--interval", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "frame")
	assert.Contains(t, out, "-4096.0")

	out, err = d.run(t, "pause")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: paused")

	out, err = d.run(t, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "NP_StopDataTransmission: ok")

	out, err = d.run(t, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Sim Flight")
	assert.Contains(t, out, "2 frames")
}

func TestStatusCommand(t *testing.T) {
	d := startDaemon(t)

	out, err := d.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "DAEMON")
	assert.Contains(t, out, "Version        test")
	assert.Contains(t, out, "Mode           idle")

	out, err = d.run(t, "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"phase": "uninitialized"`)
}

func TestSignatureCommand(t *testing.T) {
	d := startDaemon(t)
	out, err := d.run(t, "signature")
	require.NoError(t, err)
	assert.Contains(t, out, "version: 0x0400")
}

func TestRecenterBeforeRegistration(t *testing.T) {
	d := startDaemon(t)
	_, err := d.run(t, "recenter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestReloadCommand(t *testing.T) {
	d := startDaemon(t)
	out, err := d.run(t, "reload")
	require.NoError(t, err)
	assert.Contains(t, out, "1 entries")
}

func TestProfileRejectsBadID(t *testing.T) {
	d := startDaemon(t)
	_, err := d.run(t, "profile", "99999")
	assert.ErrorContains(t, err, "invalid profile id")
}

func TestNoDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("", "ltrnp")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"status", "--socket", filepath.Join(dir, "none.sock")})
	err = root.Execute()
	assert.ErrorContains(t, err, "daemon is not running")
}

func TestMetricsCommand(t *testing.T) {
	d := startDaemon(t)

	out, err := d.run(t, "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "# TYPE ltrnp_bridge_requests_total counter")

	out, err = d.run(t, "metrics", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"ltrnp_bridge_requests_total"`)

	_, err = d.run(t, "metrics", "--format", "xml")
	assert.Error(t, err)
}
