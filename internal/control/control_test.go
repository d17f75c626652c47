package control

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltrnp/internal/engine"
	"ltrnp/internal/logging"
	"ltrnp/internal/metrics"
)

func newState(t *testing.T) (*State, *engine.Simulated) {
	t.Helper()
	sim := engine.NewSimulated()
	return New(sim, Options{Logger: logging.Discard()}), sim
}

func TestRegisterProfileLeavesEngineSuspended(t *testing.T) {
	s, sim := newState(t)

	require.NoError(t, s.RegisterProfile("Falcon"))

	snap := s.Snapshot()
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Equal(t, "Falcon", snap.Profile)
	assert.False(t, snap.TrackingEnabled)
	assert.True(t, sim.Suspended())
	assert.Equal(t, []string{"init", "suspend"}, sim.Calls())
}

func TestRegisterProfileFailure(t *testing.T) {
	s, sim := newState(t)
	sim.InitErr = errors.New("camera busy")

	err := s.RegisterProfile("Default")
	require.ErrorIs(t, err, ErrEngineInit)
	assert.Equal(t, PhaseUninitialized, s.Snapshot().Phase)

	assert.ErrorIs(t, s.Recenter(), ErrNotInitialized)
	_, err = s.Update()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.TogglePause()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, []string{"init"}, sim.Calls(), "no engine calls while uninitialized")
}

func TestRegisterProfileReinitializes(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("A"))
	gen := s.Snapshot().Generation

	require.NoError(t, s.RegisterProfile("B"))
	assert.Equal(t, []string{"init", "suspend", "shutdown", "init", "suspend"}, sim.Calls())
	assert.Equal(t, "B", sim.Profile())
	assert.Equal(t, gen+1, s.Snapshot().Generation)
}

func TestRegisterProfileFailureAfterSuccess(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("A"))

	sim.InitErr = errors.New("gone")
	require.Error(t, s.RegisterProfile("B"))
	assert.False(t, s.Snapshot().Initialized, "previous engine was shut down")
	assert.False(t, sim.Initialized())
}

func TestStartTransmission(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("Default"))

	require.NoError(t, s.StartTransmission(context.Background(), 0))

	snap := s.Snapshot()
	assert.Equal(t, PhaseTracking, snap.Phase)
	assert.Equal(t, ModeActive, snap.Mode)
	assert.False(t, sim.Suspended())
	assert.Equal(t, 1, sim.Recenters())
}

func TestStartBeforeInitKeepsEngineAwakeOnRegister(t *testing.T) {
	s, sim := newState(t)

	require.NoError(t, s.StartTransmission(context.Background(), time.Hour))
	assert.Empty(t, sim.Calls(), "no engine calls before init")
	assert.True(t, s.Snapshot().TrackingEnabled)

	require.NoError(t, s.RegisterProfile("Default"))
	assert.Equal(t, []string{"init"}, sim.Calls())
	assert.Equal(t, PhaseTracking, s.Snapshot().Phase)
}

func TestStartSkipsRecenterWhenPausedDuringSettle(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("Default"))

	done := make(chan error, 1)
	go func() {
		done <- s.StartTransmission(context.Background(), 100*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return s.Mode() == ModeActive }, time.Second, time.Millisecond)
	mode, err := s.TogglePause()
	require.NoError(t, err)
	assert.Equal(t, ModePausedByUser, mode)

	require.NoError(t, <-done)
	assert.Equal(t, 0, sim.Recenters())
	assert.True(t, sim.Suspended())
}

func TestStartSkipsRecenterAfterReinit(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("A"))

	done := make(chan error, 1)
	go func() {
		done <- s.StartTransmission(context.Background(), 100*time.Millisecond)
	}()
	require.Eventually(t, func() bool { return s.Mode() == ModeActive }, time.Second, time.Millisecond)
	require.NoError(t, s.RegisterProfile("B"))

	require.NoError(t, <-done)
	assert.Equal(t, 0, sim.Recenters())
	assert.False(t, sim.Suspended(), "re-init while active leaves the engine running")
}

func TestStartCanceledDuringSettle(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("Default"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.StartTransmission(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sim.Recenters())
	assert.Equal(t, ModeActive, s.Mode())
}

func TestTogglePauseTwiceRestores(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("Default"))
	require.NoError(t, s.StartTransmission(context.Background(), 0))

	mode, err := s.TogglePause()
	require.NoError(t, err)
	assert.Equal(t, ModePausedByUser, mode)
	assert.Equal(t, PhaseSuspended, s.Snapshot().Phase)
	assert.True(t, sim.Suspended())

	mode, err = s.TogglePause()
	require.NoError(t, err)
	assert.Equal(t, ModeActive, mode)
	assert.Equal(t, PhaseTracking, s.Snapshot().Phase)
	assert.False(t, sim.Suspended())
}

func TestTogglePauseIgnoredWhenNotTracking(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*State)
		mode  Mode
	}{
		{"idle", func(*State) {}, ModeIdle},
		{"stopped by host", func(s *State) {
			_ = s.StartTransmission(context.Background(), 0)
			_ = s.StopTransmission()
		}, ModeStoppedByHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sim := newState(t)
			require.NoError(t, s.RegisterProfile("Default"))
			tt.setup(s)
			before := len(sim.Calls())

			mode, err := s.TogglePause()
			assert.ErrorIs(t, err, ErrNotTracking)
			assert.Equal(t, tt.mode, mode)
			assert.Len(t, sim.Calls(), before, "ignored toggle makes no engine call")
			assert.True(t, sim.Suspended())
		})
	}
}

func TestStopOverridesUserPause(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.RegisterProfile("Default"))
	require.NoError(t, s.StartTransmission(context.Background(), 0))
	_, err := s.TogglePause()
	require.NoError(t, err)

	require.NoError(t, s.StopTransmission())
	assert.Equal(t, ModeStoppedByHost, s.Mode())

	_, err = s.TogglePause()
	assert.ErrorIs(t, err, ErrNotTracking, "pause key cannot resume a host stop")
	assert.True(t, sim.Suspended())

	require.NoError(t, s.StartTransmission(context.Background(), 0))
	assert.Equal(t, ModeActive, s.Mode())
	assert.False(t, sim.Suspended())
}

func TestStopBeforeStartStaysIdle(t *testing.T) {
	s, _ := newState(t)
	require.NoError(t, s.RegisterProfile("Default"))
	require.NoError(t, s.StopTransmission())
	assert.Equal(t, ModeIdle, s.Mode())
}

func TestStopUninitializedMakesNoEngineCall(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.StartTransmission(context.Background(), 0))
	require.NoError(t, s.StopTransmission())
	assert.Empty(t, sim.Calls())
	assert.Equal(t, ModeStoppedByHost, s.Mode())
}

func TestShutdownIdempotent(t *testing.T) {
	s, sim := newState(t)
	require.NoError(t, s.Shutdown())
	require.NoError(t, s.RegisterProfile("Default"))
	require.NoError(t, s.Shutdown())
	require.NoError(t, s.Shutdown())

	assert.Equal(t, []string{"init", "suspend", "shutdown"}, sim.Calls())
	assert.Equal(t, PhaseUninitialized, s.Snapshot().Phase)
}

func TestSetBindingsOnce(t *testing.T) {
	s, _ := newState(t)
	b := Bindings{Recenter: 78, Pause: NoKey}

	require.NoError(t, s.SetBindings(b))
	assert.ErrorIs(t, s.SetBindings(Bindings{}), ErrBindingsSet)
	assert.Equal(t, b, s.Bindings())
	assert.True(t, s.Bindings().Recenter.Valid())
	assert.False(t, s.Bindings().Pause.Valid())
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.NewBridgeMetrics(nil)
	sim := engine.NewSimulated()
	s := New(sim, Options{Logger: logging.Discard(), Metrics: m})

	require.NoError(t, s.RegisterProfile("Default"))
	require.NoError(t, s.StartTransmission(context.Background(), 0))

	assert.Equal(t, uint64(4), m.EngineCalls.Value())
	assert.Equal(t, int64(ModeActive), m.TrackingMode.Value())
}

// TestConcurrentCallersNeverOverlap drives the state from the two roles
// that share it, plus pose reads, with an engine slow enough that any
// missing lock would show up as overlapping calls.
func TestConcurrentCallersNeverOverlap(t *testing.T) {
	sim := engine.NewSimulated()
	sim.Latency = 200 * time.Microsecond
	probe := engine.NewProbe(sim)
	s := New(probe, Options{Logger: logging.Discard()})
	require.NoError(t, s.RegisterProfile("Default"))

	ctx := context.Background()
	var wg sync.WaitGroup

	// API role.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			switch i % 4 {
			case 0:
				_ = s.StartTransmission(ctx, time.Millisecond)
			case 1:
				_, _ = s.Update()
			case 2:
				_ = s.StopTransmission()
			case 3:
				_ = s.RegisterProfile("Default")
			}
		}
	}()

	// Listener role.
	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 40; i++ {
			if rng.Intn(2) == 0 {
				_, _ = s.TogglePause()
			} else {
				_ = s.Recenter()
			}
		}
	}()

	// Pose readers.
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				_, _ = s.Update()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), probe.MaxConcurrent())
	assert.Zero(t, probe.Violations())

	snap := s.Snapshot()
	require.True(t, snap.Initialized)
	assert.Equal(t, snap.Mode != ModeActive, sim.Suspended(),
		"engine is awake exactly when the mode is active")
}

func TestModeAndPhaseStrings(t *testing.T) {
	assert.Equal(t, "paused", ModePausedByUser.String())
	assert.Equal(t, "stopped", ModeStoppedByHost.String())
	assert.Equal(t, "tracking", PhaseTracking.String())
	assert.Equal(t, "mode(9)", Mode(9).String())
}
