// Package store provides the SQLite journal of host activity.
package store

import "time"

// Registration is one profile registration requested by a host.
type Registration struct {
	ID        int64
	ProfileID int
	Name      string
	OK        bool
	AtNs      int64
}

// At returns the registration time.
func (r Registration) At() time.Time { return time.Unix(0, r.AtNs) }

// Session is one span of data transmission, from the host's start call to
// its stop call.
type Session struct {
	ID        int64
	Profile   string
	StartedNs int64
	// StoppedNs is nil while the session is open.
	StoppedNs *int64
	Frames    uint64
}

// Open reports whether the session has not been stopped.
func (s Session) Open() bool { return s.StoppedNs == nil }

// Duration returns the session length, measured up to now for open
// sessions.
func (s Session) Duration() time.Duration {
	end := time.Now().UnixNano()
	if s.StoppedNs != nil {
		end = *s.StoppedNs
	}
	return time.Duration(end - s.StartedNs)
}
