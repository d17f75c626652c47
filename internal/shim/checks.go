package shim

import (
	"context"
	"fmt"

	"ltrnp/internal/health"
	"ltrnp/internal/hotkey"
)

// newHealthChecker registers one check per collaborator. Only the engine
// is critical: without it no host call can succeed.
func (s *Shim) newHealthChecker() *health.Checker {
	c := health.NewChecker()

	c.RegisterFunc("engine", true, func(context.Context) health.CheckResult {
		if s.engineErr != nil {
			return health.Unhealthy("engine backend unavailable", s.engineErr)
		}
		snap := s.state.Snapshot()
		r := health.Healthy(snap.Phase.String())
		r.Details = map[string]any{"backend": s.engine, "mode": snap.Mode.String()}
		if s.probe != nil && s.probe.Violations() > 0 {
			r = health.Degraded(fmt.Sprintf("%d overlapping engine calls", s.probe.Violations()))
		}
		return r
	})

	c.RegisterFunc("hotkeys", false, func(context.Context) health.CheckResult {
		phase := s.listener.Phase()
		if phase == hotkey.PhaseStopped {
			return health.Degraded("hotkey listener stopped")
		}
		b := s.state.Bindings()
		if !b.Recenter.Valid() && !b.Pause.Valid() && phase == hotkey.PhaseWaiting {
			return health.Degraded("no hotkey bound")
		}
		return health.Healthy(phase.String())
	})

	c.RegisterFunc("app_db", false, func(context.Context) health.CheckResult {
		n := s.provider.Apps().Len()
		if n == 0 {
			return health.Degraded("no applications, every profile resolves to the default")
		}
		return health.Healthy(fmt.Sprintf("%d applications", n))
	})

	if s.cfg.Journal.Enabled {
		c.RegisterFunc("journal", false, func(ctx context.Context) health.CheckResult {
			if s.journal == nil {
				return health.Degraded("journal could not be opened")
			}
			return health.PingCheck("journal", s.journal.Store().Ping)(ctx)
		})
	}
	return c
}

// Health runs every check.
func (s *Shim) Health(ctx context.Context) health.Report {
	return s.health.Report(ctx)
}
