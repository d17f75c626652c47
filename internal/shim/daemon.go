package shim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by WritePID while another process holds
// the PID file.
var ErrAlreadyRunning = errors.New("ltrnpd is already running")

var errNotRunning = errors.New("ltrnpd is not running")

// DaemonState is what a running ltrnpd records about itself.
type DaemonState struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Version    string    `json:"version"`
	SocketPath string    `json:"socket_path"`
}

// DaemonManager owns ltrnpd.pid and ltrnpd.state. The daemon keeps an
// exclusive flock on the PID file while it runs; a PID file nobody has
// locked is stale no matter what it contains.
type DaemonManager struct {
	pidFile   string
	stateFile string
	lock      *os.File
}

func NewDaemonManager(dir string) *DaemonManager {
	return &DaemonManager{
		pidFile:   filepath.Join(dir, "ltrnpd.pid"),
		stateFile: filepath.Join(dir, "ltrnpd.state"),
	}
}

// IsRunning reports whether some process holds the PID file lock.
func (m *DaemonManager) IsRunning() bool {
	f, err := os.Open(m.pidFile)
	if err != nil {
		return false
	}
	defer f.Close()

	switch err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); {
	case err == nil:
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return false
	default:
		return errors.Is(err, unix.EWOULDBLOCK)
	}
}

// ReadPID returns the PID recorded in the PID file.
func (m *DaemonManager) ReadPID() (int, error) {
	raw, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscan(string(raw), &pid); err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s: %q", m.pidFile, raw)
	}
	return pid, nil
}

// WritePID takes the PID file lock and records os.Getpid. The lock lasts
// until Cleanup.
func (m *DaemonManager) WritePID() (err error) {
	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(m.pidFile, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("lock %s: %w", m.pidFile, err)
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return err
	}
	m.lock = f
	return nil
}

// WriteState records st next to the PID file.
func (m *DaemonManager) WriteState(st *DaemonState) error {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.stateFile, raw, 0o600)
}

func (m *DaemonManager) ReadState() (*DaemonState, error) {
	raw, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}
	st := new(DaemonState)
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", m.stateFile, err)
	}
	return st, nil
}

// SignalStop asks the running daemon to detach and exit.
func (m *DaemonManager) SignalStop() error {
	if !m.IsRunning() {
		return errNotRunning
	}
	pid, err := m.ReadPID()
	if err != nil {
		return err
	}
	return unix.Kill(pid, unix.SIGTERM)
}

// WaitForStop polls until the lock is released or timeout passes.
func (m *DaemonManager) WaitForStop(timeout time.Duration) error {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	expired := time.After(timeout)

	for m.IsRunning() {
		select {
		case <-tick.C:
		case <-expired:
			return fmt.Errorf("ltrnpd still running after %v", timeout)
		}
	}
	return nil
}

// Cleanup removes both files and drops the lock taken by WritePID.
func (m *DaemonManager) Cleanup() {
	for _, p := range []string{m.stateFile, m.pidFile} {
		os.Remove(p)
	}
	if m.lock != nil {
		m.lock.Close()
		m.lock = nil
	}
}

// DaemonStatus is what the files say about the daemon, without asking
// it over the socket.
type DaemonStatus struct {
	Running    bool
	PID        int
	StartedAt  time.Time
	Uptime     time.Duration
	Version    string
	SocketPath string
}

func (m *DaemonManager) Status() *DaemonStatus {
	if !m.IsRunning() {
		return &DaemonStatus{}
	}
	out := &DaemonStatus{Running: true}
	out.PID, _ = m.ReadPID()
	st, err := m.ReadState()
	if err != nil {
		return out
	}
	out.StartedAt, out.Version, out.SocketPath = st.StartedAt, st.Version, st.SocketPath
	out.Uptime = time.Since(st.StartedAt)
	return out
}
