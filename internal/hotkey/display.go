package hotkey

import (
	"errors"

	"ltrnp/internal/control"
)

var (
	// ErrKeyNotFound is returned by Display.Lookup for an unknown key name.
	ErrKeyNotFound = errors.New("no key with that name")

	// ErrDisplayClosed is returned by a Display after Close.
	ErrDisplayClosed = errors.New("display connection closed")
)

// EventType classifies display events.
type EventType int

const (
	EventOther EventType = iota
	EventKeyPress
	EventKeyRelease
)

// Event is one event read from the display.
type Event struct {
	Type EventType
	Key  control.KeyRef
}

// Display is a connection to the windowing system. Only the listener's
// goroutines use a Display; NextEvent may run concurrently with Grab and
// Ungrab, and Close may be called from any goroutine.
type Display interface {
	// Lookup resolves a key name such as "Scroll_Lock" to a key.
	Lookup(name string) (control.KeyRef, error)
	// Grab takes an exclusive global grab of key under any modifier
	// combination. The error reports a failure of this grab only.
	Grab(key control.KeyRef) error
	// Ungrab releases a grab taken by Grab.
	Ungrab(key control.KeyRef) error
	// NextEvent blocks until an event arrives. It returns an error
	// wrapping io.EOF or ErrDisplayClosed once the connection is gone.
	NextEvent() (Event, error)
	Close() error
}

// Dialer opens a Display.
type Dialer func() (Display, error)
