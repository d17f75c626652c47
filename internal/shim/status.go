package shim

import (
	"context"
	"io"
	"time"

	"ltrnp/internal/control"
	"ltrnp/internal/hotkey"
	"ltrnp/internal/ipc"
)

var _ ipc.Controller = (*Shim)(nil)

// Status aggregates the state of every collaborator.
func (s *Shim) Status() ipc.StatusResponse {
	snap := s.state.Snapshot()
	st := ipc.StatusResponse{
		Version:         s.version,
		StartedAt:       s.startedAt,
		Uptime:          time.Since(s.startedAt),
		Phase:           snap.Phase.String(),
		Mode:            snap.Mode.String(),
		Initialized:     snap.Initialized,
		TrackingEnabled: snap.TrackingEnabled,
		Profile:         snap.Profile,
		Generation:      snap.Generation,
		Engine:          s.engine,
		Listener: ipc.ListenerStatus{
			Phase:         s.listener.Phase().String(),
			Strategy:      s.listener.Strategy().String(),
			RecenterKey:   s.provider.KeyBinding(string(hotkey.OpRecenter)),
			PauseKey:      s.provider.KeyBinding(string(hotkey.OpPause)),
			RecenterBound: snap.Bindings.Recenter.Valid(),
			PauseBound:    snap.Bindings.Pause.Valid(),
		},
		AppDB: ipc.AppDBStatus{
			Path:    s.provider.Apps().Path(),
			Entries: s.provider.Apps().Len(),
		},
		Journal: s.journal != nil,
		Health:  s.Health(context.Background()),
		Metrics: s.metrics.Snapshot(),
	}
	if s.probe != nil {
		st.Probe = &ipc.ProbeStatus{
			Calls:         s.probe.Calls(),
			MaxConcurrent: s.probe.MaxConcurrent(),
			Violations:    s.probe.Violations(),
		}
	}

	s.mu.Lock()
	if s.server != nil {
		st.Clients = s.server.ClientCount()
	}
	s.mu.Unlock()
	return st
}

// Recenter recenters the engine on the operator's request.
func (s *Shim) Recenter() error {
	return s.state.Recenter()
}

// TogglePause pauses or resumes tracking on the operator's request.
func (s *Shim) TogglePause() (control.Mode, error) {
	return s.state.TogglePause()
}

// History returns the newest journal entries. Without a journal both
// lists are empty.
func (s *Shim) History(limit int) (*ipc.HistoryResponse, error) {
	resp := &ipc.HistoryResponse{
		Registrations: []ipc.RegistrationInfo{},
		Sessions:      []ipc.SessionInfo{},
	}
	if s.journal == nil {
		return resp, nil
	}
	db := s.journal.Store()

	regs, err := db.RecentRegistrations(limit)
	if err != nil {
		return nil, err
	}
	for _, r := range regs {
		resp.Registrations = append(resp.Registrations, ipc.RegistrationInfo{
			ProfileID: r.ProfileID,
			Name:      r.Name,
			OK:        r.OK,
			At:        r.At(),
		})
	}

	sessions, err := db.RecentSessions(limit)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, ipc.SessionInfo{
			ID:        sess.ID,
			Profile:   sess.Profile,
			StartedAt: time.Unix(0, sess.StartedNs),
			Duration:  sess.Duration(),
			Open:      sess.Open(),
			Frames:    sess.Frames,
		})
	}
	return resp, nil
}

// WriteMetrics exports the bridge metrics.
func (s *Shim) WriteMetrics(w io.Writer, format string) error {
	return s.metrics.Export(w, format)
}

// ReloadApps re-reads the application database and returns its size.
func (s *Shim) ReloadApps() (int, error) {
	if err := s.provider.ReloadApps(); err != nil {
		return 0, err
	}
	return s.provider.Apps().Len(), nil
}
