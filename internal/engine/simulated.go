package engine

import (
	"errors"
	"math"
	"sync"
	"time"
)

var errNotRunning = errors.New("simulated engine not initialized")

// Simulated is an in-memory engine. It produces a slow deterministic head
// motion, records what was asked of it and can be told to fail. It is the
// engine used by tests and by `engine.backend = "simulated"`.
type Simulated struct {
	mu sync.Mutex

	// InitErr, when set, is returned by Init.
	InitErr error
	// UpdateErr, when set, is returned by Update.
	UpdateErr error
	// Latency is slept inside every call, outside the adapter's own lock.
	Latency time.Duration

	profile     string
	initialized bool
	suspended   bool
	recenters   int
	counter     uint32
	calls       []string
	center      Pose
	fixed       *Pose
}

// NewSimulated creates a simulated engine.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) enter(call string) {
	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
}

// Init implements Adapter.
func (s *Simulated) Init(profile string) error {
	s.enter("init")
	defer s.mu.Unlock()

	if s.InitErr != nil {
		return s.InitErr
	}
	s.profile = profile
	s.initialized = true
	s.suspended = false
	return nil
}

// Shutdown implements Adapter.
func (s *Simulated) Shutdown() error {
	s.enter("shutdown")
	defer s.mu.Unlock()

	s.initialized = false
	s.suspended = false
	return nil
}

// Suspend implements Adapter.
func (s *Simulated) Suspend() error {
	s.enter("suspend")
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotRunning
	}
	s.suspended = true
	return nil
}

// Wakeup implements Adapter.
func (s *Simulated) Wakeup() error {
	s.enter("wakeup")
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotRunning
	}
	s.suspended = false
	return nil
}

// Recenter implements Adapter.
func (s *Simulated) Recenter() error {
	s.enter("recenter")
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotRunning
	}
	s.recenters++
	s.center = s.motion(s.counter)
	return nil
}

// Update implements Adapter. A suspended engine keeps reporting its last
// pose without advancing the counter.
func (s *Simulated) Update() (Pose, error) {
	s.enter("update")
	defer s.mu.Unlock()

	if s.UpdateErr != nil {
		return Pose{}, s.UpdateErr
	}
	if !s.initialized {
		return Pose{}, errNotRunning
	}
	if !s.suspended {
		s.counter++
	}
	if s.fixed != nil {
		p := *s.fixed
		p.Counter = s.counter
		return p, nil
	}
	raw := s.motion(s.counter)
	return Pose{
		Yaw:     raw.Yaw - s.center.Yaw,
		Pitch:   raw.Pitch - s.center.Pitch,
		Roll:    raw.Roll - s.center.Roll,
		X:       raw.X - s.center.X,
		Y:       raw.Y - s.center.Y,
		Z:       raw.Z - s.center.Z,
		Counter: s.counter,
	}, nil
}

// motion is a slow figure-eight, one cycle every 600 samples.
func (s *Simulated) motion(n uint32) Pose {
	phase := 2 * math.Pi * float64(n%600) / 600
	return Pose{
		Yaw:   float32(30 * math.Sin(phase)),
		Pitch: float32(10 * math.Sin(2*phase)),
		Roll:  float32(5 * math.Cos(phase)),
		X:     float32(20 * math.Sin(phase)),
		Y:     float32(5 * math.Cos(2*phase)),
		Z:     float32(10 * math.Cos(phase)),
	}
}

// SetPose makes Update report p (with a fresh counter) instead of the
// generated motion.
func (s *Simulated) SetPose(p Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed = &p
}

// Initialized reports whether Init has succeeded since the last Shutdown.
func (s *Simulated) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Suspended reports whether the engine is suspended.
func (s *Simulated) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Profile returns the profile passed to the last successful Init.
func (s *Simulated) Profile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Recenters returns how many times Recenter succeeded.
func (s *Simulated) Recenters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recenters
}

// Calls returns the names of all calls made so far, in order.
func (s *Simulated) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
