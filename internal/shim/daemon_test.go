package shim

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonManager(t *testing.T) {
	dir := t.TempDir()
	m := NewDaemonManager(dir)
	assert.False(t, m.IsRunning())
	assert.False(t, m.Status().Running)

	require.NoError(t, m.WritePID())
	pid, err := m.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, NewDaemonManager(dir).WritePID(), ErrAlreadyRunning)

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	require.NoError(t, m.WriteState(&DaemonState{
		PID:        pid,
		StartedAt:  started,
		Version:    "test",
		SocketPath: "/run/user/1000/ltrnp.sock",
	}))

	st := m.Status()
	assert.True(t, st.Running)
	assert.Equal(t, pid, st.PID)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, "/run/user/1000/ltrnp.sock", st.SocketPath)
	assert.True(t, started.Equal(st.StartedAt))
	assert.GreaterOrEqual(t, st.Uptime, time.Minute)

	m.Cleanup()
	assert.False(t, m.IsRunning())
	_, err = m.ReadState()
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, m.SignalStop())
	assert.NoError(t, m.WaitForStop(time.Second))

	second := NewDaemonManager(dir)
	require.NoError(t, second.WritePID())
	second.Cleanup()
}

func TestDaemonManagerInvalidPID(t *testing.T) {
	dir := t.TempDir()
	m := NewDaemonManager(dir)
	require.NoError(t, os.WriteFile(m.pidFile, []byte("nope"), 0o600))
	_, err := m.ReadPID()
	assert.ErrorContains(t, err, "invalid PID file")
	assert.False(t, m.IsRunning(), "an unlocked PID file is stale")
	assert.False(t, m.Status().Running)
}
