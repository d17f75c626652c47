// Package control holds the state shared by the host-facing API and the
// hotkey listener.
//
// State is the only place that calls into the engine. One mutex guards
// every flag and is held for the whole duration of each engine call, so
// the engine never sees two calls at once and no caller observes a flag
// that disagrees with what the engine was last told.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ltrnp/internal/engine"
	"ltrnp/internal/logging"
	"ltrnp/internal/metrics"
)

var (
	// ErrNotInitialized is returned for operations that need a loaded
	// profile when none is loaded. No engine call is made.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrEngineInit wraps the engine's error when a profile fails to load.
	ErrEngineInit = errors.New("engine initialization failed")

	// ErrNotTracking is returned by TogglePause when transmission is not
	// in a state the user may pause or resume.
	ErrNotTracking = errors.New("transmission not active")

	// ErrBindingsSet is returned when bindings are published twice.
	ErrBindingsSet = errors.New("key bindings already set")
)

// Mode is the transmission mode. It is the single authority on whether
// the engine should be running.
type Mode int

const (
	// ModeIdle means the host has not requested transmission yet.
	ModeIdle Mode = iota
	// ModeActive means the engine is running and poses are flowing.
	ModeActive
	// ModePausedByUser means the pause hotkey suspended the engine.
	ModePausedByUser
	// ModeStoppedByHost means the host stopped transmission.
	ModeStoppedByHost
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeActive:
		return "active"
	case ModePausedByUser:
		return "paused"
	case ModeStoppedByHost:
		return "stopped"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Phase is the engine lifecycle as seen by the host.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseReady
	PhaseTracking
	PhaseSuspended
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseReady:
		return "ready"
	case PhaseTracking:
		return "tracking"
	case PhaseSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// KeyRef identifies a physical key. The zero value means no key is bound.
type KeyRef uint8

// NoKey is the unbound KeyRef.
const NoKey KeyRef = 0

// Valid reports whether k refers to a key.
func (k KeyRef) Valid() bool { return k != NoKey }

// Bindings are the keys grabbed by the hotkey listener.
type Bindings struct {
	Recenter KeyRef
	Pause    KeyRef
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Phase           Phase
	Mode            Mode
	Initialized     bool
	TrackingEnabled bool
	Profile         string
	Generation      uint64
	Bindings        Bindings
	BindingsSet     bool
}

// Options configures a State.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.BridgeMetrics
}

// State is the control state shared between the API and the listener.
type State struct {
	mu sync.Mutex

	engine  engine.Adapter
	log     *logging.Logger
	metrics *metrics.BridgeMetrics

	initialized bool
	profile     string
	// generation increments on every successful Init.
	generation  uint64
	mode        Mode
	bindings    Bindings
	bindingsSet bool
}

// New creates a State driving eng.
func New(eng engine.Adapter, opts Options) *State {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &State{
		engine:  eng,
		log:     log.WithComponent("control"),
		metrics: opts.Metrics,
	}
}

// call runs one engine operation. s.mu must be held.
func (s *State) call(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveEngineCall(time.Since(start), err)
	if err != nil {
		s.log.Warn("engine call failed", "op", op, "error", err)
	}
	return err
}

func (s *State) setMode(m Mode) {
	if s.mode != m {
		s.log.Debug("transmission mode", "from", s.mode, "to", m)
	}
	s.mode = m
	if s.metrics != nil {
		s.metrics.TrackingMode.Set(int64(m))
	}
}

// RegisterProfile loads profile into the engine, shutting down any engine
// already running. The lock is held across the shutdown and the init, so
// no other caller sees the engine between the two. On success the engine
// is left suspended unless transmission is active.
func (s *State) RegisterProfile(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		s.log.Info("shutting down engine before re-init", "profile", s.profile)
		_ = s.call("shutdown", s.engine.Shutdown)
		s.initialized = false
	}

	if err := s.call("init", func() error { return s.engine.Init(profile) }); err != nil {
		return fmt.Errorf("%w: profile %q: %v", ErrEngineInit, profile, err)
	}
	s.initialized = true
	s.profile = profile
	s.generation++

	if s.mode != ModeActive {
		_ = s.call("suspend", s.engine.Suspend)
	}
	s.log.Info("engine initialized", "profile", profile, "mode", s.mode)
	return nil
}

// StartTransmission wakes the engine, waits for settle without holding the
// lock, and then recenters. The recenter is skipped when the engine was
// re-initialized, shut down, paused or stopped during the wait, or when
// ctx ends first.
func (s *State) StartTransmission(ctx context.Context, settle time.Duration) error {
	s.mu.Lock()
	if s.initialized {
		_ = s.call("wakeup", s.engine.Wakeup)
	}
	s.setMode(ModeActive)
	initialized := s.initialized
	gen := s.generation
	s.mu.Unlock()

	if !initialized {
		s.log.Info("transmission requested before engine init")
		return nil
	}

	if settle > 0 {
		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized || s.generation != gen || s.mode != ModeActive {
		s.log.Debug("settle recenter skipped", "mode", s.mode, "initialized", s.initialized)
		return nil
	}
	return s.call("recenter", s.engine.Recenter)
}

// StopTransmission suspends the engine at the host's request. A pause by
// the user is overridden.
func (s *State) StopTransmission() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.initialized {
		err = s.call("suspend", s.engine.Suspend)
	}
	if s.mode != ModeIdle {
		s.setMode(ModeStoppedByHost)
	}
	return err
}

// Recenter recenters the engine.
func (s *State) Recenter() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	return s.call("recenter", s.engine.Recenter)
}

// TogglePause suspends an active engine or wakes one the user paused, and
// returns the resulting mode. In any other mode nothing happens and
// ErrNotTracking is returned. A failed engine call leaves the mode as it
// was.
func (s *State) TogglePause() (Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return s.mode, ErrNotInitialized
	}

	switch s.mode {
	case ModeActive:
		if err := s.call("suspend", s.engine.Suspend); err != nil {
			return s.mode, err
		}
		s.setMode(ModePausedByUser)
	case ModePausedByUser:
		if err := s.call("wakeup", s.engine.Wakeup); err != nil {
			return s.mode, err
		}
		s.setMode(ModeActive)
	default:
		return s.mode, fmt.Errorf("%w: mode %s", ErrNotTracking, s.mode)
	}
	return s.mode, nil
}

// Update reads the latest pose.
func (s *State) Update() (engine.Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return engine.Pose{}, ErrNotInitialized
	}
	var pose engine.Pose
	err := s.call("update", func() error {
		var err error
		pose, err = s.engine.Update()
		return err
	})
	return pose, err
}

// Shutdown stops the engine if it is running. It is safe to call more
// than once.
func (s *State) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	err := s.call("shutdown", s.engine.Shutdown)
	s.initialized = false
	s.log.Info("engine shut down", "profile", s.profile)
	return err
}

// SetBindings publishes the key bindings. It may be called once.
func (s *State) SetBindings(b Bindings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bindingsSet {
		return ErrBindingsSet
	}
	s.bindings = b
	s.bindingsSet = true
	return nil
}

// Bindings returns the published key bindings.
func (s *State) Bindings() Bindings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings
}

// Mode returns the transmission mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Phase:           s.phase(),
		Mode:            s.mode,
		Initialized:     s.initialized,
		TrackingEnabled: s.mode != ModeIdle,
		Profile:         s.profile,
		Generation:      s.generation,
		Bindings:        s.bindings,
		BindingsSet:     s.bindingsSet,
	}
}

func (s *State) phase() Phase {
	switch {
	case !s.initialized:
		return PhaseUninitialized
	case s.mode == ModeIdle:
		return PhaseReady
	case s.mode == ModeActive:
		return PhaseTracking
	default:
		return PhaseSuspended
	}
}
