// Package engine is the boundary to the head-pose engine.
//
// An Adapter is not safe for concurrent use: the engine library it wraps
// keeps global state and must see at most one call at a time. Callers
// serialize through control.State, and Probe can be wrapped around any
// Adapter to check that they do.
package engine

import (
	"errors"
	"fmt"
)

// Pose is one head-pose sample. Angles are in degrees, translations in the
// engine's units.
type Pose struct {
	Yaw     float32
	Pitch   float32
	Roll    float32
	X       float32
	Y       float32
	Z       float32
	Counter uint32
}

// Adapter is the set of engine operations the bridge uses.
type Adapter interface {
	// Init loads the named profile and starts the engine.
	Init(profile string) error
	Shutdown() error
	Suspend() error
	Wakeup() error
	Recenter() error
	// Update returns the latest pose.
	Update() (Pose, error)
}

var (
	// ErrUnavailable is returned by every call of an Unavailable adapter.
	ErrUnavailable = errors.New("engine backend not available")

	// ErrNoPose is returned when the engine has no pose to report.
	ErrNoPose = errors.New("engine returned no pose")
)

// Backend names accepted by New.
const (
	BackendLinuxtrack = "linuxtrack"
	BackendSimulated  = "simulated"
)

// New returns the adapter for the named backend. A backend that is not
// compiled into this binary yields an Unavailable adapter together with
// the reason, so the caller can log it and carry on.
func New(backend string) (Adapter, error) {
	switch backend {
	case BackendSimulated:
		return NewSimulated(), nil
	case BackendLinuxtrack, "":
		a, err := newLinuxtrack()
		if err != nil {
			return Unavailable{Backend: BackendLinuxtrack}, err
		}
		return a, nil
	default:
		return Unavailable{Backend: backend}, fmt.Errorf("unknown engine backend %q", backend)
	}
}

// Unavailable stands in for a backend that cannot be used. Init always
// fails, so profile registration reports the failure while the rest of the
// bridge keeps running.
type Unavailable struct {
	Backend string
}

func (u Unavailable) err() error {
	return fmt.Errorf("%w: %s", ErrUnavailable, u.Backend)
}

func (u Unavailable) Init(string) error     { return u.err() }
func (u Unavailable) Shutdown() error       { return nil }
func (u Unavailable) Suspend() error        { return u.err() }
func (u Unavailable) Wakeup() error         { return u.err() }
func (u Unavailable) Recenter() error       { return u.err() }
func (u Unavailable) Update() (Pose, error) { return Pose{}, u.err() }
