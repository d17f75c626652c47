package store

import (
	"sync"

	"ltrnp/internal/logging"
)

// Journal records host activity in a Store. Its methods never fail: write
// errors are logged and the host call carries on.
type Journal struct {
	store *Store
	log   *logging.Logger

	mu      sync.Mutex
	current int64
}

// NewJournal creates a Journal writing to store. Sessions left open by an
// earlier run are closed first.
func NewJournal(store *Store, log *logging.Logger) *Journal {
	if log == nil {
		log = logging.Default()
	}
	j := &Journal{store: store, log: log.WithComponent("store")}
	if n, err := store.CloseOpenSessions(); err != nil {
		j.log.Warn("could not close stale sessions", "error", err)
	} else if n > 0 {
		j.log.Info("closed stale sessions", "count", n)
	}
	return j
}

// Store returns the underlying store.
func (j *Journal) Store() *Store {
	return j.store
}

// ProfileRegistered records a registration.
func (j *Journal) ProfileRegistered(id int, name string, ok bool) {
	if _, err := j.store.InsertRegistration(&Registration{ProfileID: id, Name: name, OK: ok}); err != nil {
		j.log.Warn("journal registration", "error", err)
	}
}

// TransmissionStarted opens a session.
func (j *Journal) TransmissionStarted(profile string) {
	id, err := j.store.StartSession(profile)
	if err != nil {
		j.log.Warn("journal session start", "error", err)
		return
	}
	j.mu.Lock()
	j.current = id
	j.mu.Unlock()
}

// TransmissionStopped closes the open session.
func (j *Journal) TransmissionStopped(_ string, frames uint64) {
	j.mu.Lock()
	id := j.current
	j.current = 0
	j.mu.Unlock()

	if id == 0 {
		return
	}
	if err := j.store.StopSession(id, frames); err != nil {
		j.log.Warn("journal session stop", "session", id, "error", err)
	}
}

// Close stops any open session and closes the store.
func (j *Journal) Close() error {
	if _, err := j.store.CloseOpenSessions(); err != nil {
		j.log.Warn("journal close", "error", err)
	}
	return j.store.Close()
}
