// Package hotkey grabs the recenter and pause keys globally and turns key
// presses into control operations.
//
// A Listener runs on its own goroutine and owns its display connection
// and key grabs from STARTING until STOPPED:
//
//	STARTING -> BINDING -> WAITING <-> DISPATCHING -> SHUTTING_DOWN -> STOPPED
//
// The owner stops it with Stop, which signals the listener through a
// ShutdownChannel and waits for STOPPED. When the channel cannot be
// created the listener runs with the forced strategy instead: Stop closes
// the display connection, the blocked wait returns, and the key grabs are
// left to the server to drop with the connection.
package hotkey

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"ltrnp/internal/control"
	"ltrnp/internal/logging"
	"ltrnp/internal/metrics"
)

// Operation names a hotkey action.
type Operation string

const (
	OpRecenter Operation = "recenter"
	OpPause    Operation = "pause"
)

// Default key names, tried when the configured name cannot be bound.
const (
	DefaultRecenterKey = "Scroll_Lock"
	DefaultPauseKey    = "Pause"
)

// Phase is the listener's lifecycle phase.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseBinding
	PhaseWaiting
	PhaseDispatching
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseBinding:
		return "binding"
	case PhaseWaiting:
		return "waiting"
	case PhaseDispatching:
		return "dispatching"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Strategy is how Stop ends the listener. It is chosen once, by Start.
type Strategy int

const (
	// StrategyGraceful stops through the ShutdownChannel and releases the
	// key grabs.
	StrategyGraceful Strategy = iota
	// StrategyForced stops by closing the display connection.
	StrategyForced
)

func (s Strategy) String() string {
	if s == StrategyForced {
		return "forced"
	}
	return "graceful"
}

// KeyNames are the configured key names per operation.
type KeyNames struct {
	Recenter string
	Pause    string
}

// Notifier is told about completed hotkey actions.
type Notifier interface {
	Notify(summary, body string)
}

// Options configures a Listener.
type Options struct {
	Dial     Dialer
	Keys     KeyNames
	Notifier Notifier
	Logger   *logging.Logger
	Metrics  *metrics.BridgeMetrics
}

// Listener dispatches global key presses to a control.State.
type Listener struct {
	state    *control.State
	dial     Dialer
	keys     KeyNames
	notifier Notifier
	log      *logging.Logger
	metrics  *metrics.BridgeMetrics

	newShutdown func() (*ShutdownChannel, error)

	phase atomic.Int32

	mu       sync.Mutex
	started  bool
	stopping bool
	display  Display
	strategy Strategy
	shutdown *ShutdownChannel

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Listener. It does nothing until Start.
func New(state *control.State, opts Options) *Listener {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Listener{
		state:       state,
		dial:        opts.Dial,
		keys:        opts.Keys,
		notifier:    opts.Notifier,
		log:         log.WithComponent("hotkey"),
		metrics:     opts.Metrics,
		newShutdown: NewShutdownChannel,
		done:        make(chan struct{}),
	}
}

// Start picks the stop strategy and launches the listener goroutine.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.New("hotkey listener already started")
	}
	if l.dial == nil {
		return errors.New("hotkey listener has no dialer")
	}

	ch, err := l.newShutdown()
	if err != nil {
		l.log.Warn("shutdown channel unavailable, listener will be stopped by closing its display",
			"error", err)
		l.strategy = StrategyForced
	} else {
		l.shutdown = ch
		l.strategy = StrategyGraceful
	}

	l.started = true
	go l.run()
	return nil
}

// Stop ends the listener and waits until it reaches STOPPED. Calls after
// the first return nil without doing anything.
func (l *Listener) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		l.mu.Lock()
		started, strategy := l.started, l.strategy
		l.mu.Unlock()

		if !started {
			l.log.Debug("no hotkey listener to stop")
			return
		}

		switch strategy {
		case StrategyGraceful:
			if err = l.shutdown.Signal(); err != nil {
				l.log.Error("cannot signal hotkey listener, closing its display", "error", err)
				l.forceClose()
			}
		case StrategyForced:
			l.log.Warn("stopping hotkey listener by closing its display; key grabs are not released")
			l.forceClose()
		}

		<-l.done
		if cerr := l.shutdown.Close(); cerr != nil {
			l.log.Debug("close shutdown channel", "error", cerr)
		}
		l.log.Info("hotkey listener stopped")
	})
	return err
}

// Done is closed when the listener reaches STOPPED.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Phase returns the current phase.
func (l *Listener) Phase() Phase {
	return Phase(l.phase.Load())
}

// Strategy returns the stop strategy chosen by Start.
func (l *Listener) Strategy() Strategy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.strategy
}

func (l *Listener) setPhase(p Phase) {
	if old := Phase(l.phase.Swap(int32(p))); old != p {
		l.log.Debug("listener phase", "from", old, "to", p)
	}
}

// forceClose marks the listener as stopping and closes its display, which
// unblocks a pending NextEvent.
func (l *Listener) forceClose() {
	l.mu.Lock()
	l.stopping = true
	l.mu.Unlock()
	l.closeDisplay()
}

func (l *Listener) closeDisplay() {
	l.mu.Lock()
	d := l.display
	l.display = nil
	l.mu.Unlock()

	if d != nil {
		if err := d.Close(); err != nil {
			l.log.Debug("close display", "error", err)
		}
	}
}

func (l *Listener) run() {
	defer close(l.done)
	defer l.setPhase(PhaseStopped)
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("hotkey listener panicked", "panic", r)
			l.closeDisplay()
		}
	}()

	l.setPhase(PhaseStarting)
	d, err := l.dial()
	if err != nil {
		l.log.Warn("cannot open display, hotkeys disabled", "error", err)
		return
	}
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		_ = d.Close()
		return
	}
	l.display = d
	l.mu.Unlock()

	l.setPhase(PhaseBinding)
	bindings := control.Bindings{
		Recenter: l.bindWithFallback(d, OpRecenter, l.keys.Recenter, DefaultRecenterKey),
		Pause:    l.bindWithFallback(d, OpPause, l.keys.Pause, DefaultPauseKey),
	}
	if err := l.state.SetBindings(bindings); err != nil {
		l.log.Warn("key bindings not published", "error", err)
	}

	events := make(chan Event, 32)
	quit := make(chan struct{})
	pumpDone := make(chan struct{})
	go l.pump(d, events, quit, pumpDone)
	defer func() {
		close(quit)
		l.closeDisplay()
		<-pumpDone
	}()

	l.setPhase(PhaseWaiting)
	signaled := l.wait(events, bindings)

	l.setPhase(PhaseShuttingDown)
	if signaled {
		l.release(d, bindings)
	} else {
		l.log.Warn("display connection closed, key grabs not released")
	}
}

// pump feeds display events into events until the display is closed or
// quit is closed.
func (l *Listener) pump(d Display, events chan<- Event, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(events)

	for {
		ev, err := d.NextEvent()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrDisplayClosed) {
				l.log.Warn("display read failed", "error", err)
			}
			return
		}
		select {
		case events <- ev:
		case <-quit:
			return
		}
	}
}

// wait runs WAITING and DISPATCHING. It returns true when the shutdown
// signal was observed and false when the event stream ended first.
func (l *Listener) wait(events <-chan Event, b control.Bindings) bool {
	for {
		select {
		case <-l.shutdown.Done():
			return true
		case ev, ok := <-events:
			if !ok {
				return false
			}
			l.setPhase(PhaseDispatching)
			l.dispatch(ev, b)
			for drained := false; !drained; {
				select {
				case ev, ok := <-events:
					if !ok {
						return false
					}
					l.dispatch(ev, b)
				default:
					drained = true
				}
			}
			l.setPhase(PhaseWaiting)
		}
	}
}

func (l *Listener) dispatch(ev Event, b control.Bindings) {
	if ev.Type != EventKeyPress || !ev.Key.Valid() {
		return
	}

	if ev.Key == b.Recenter || ev.Key == b.Pause {
		if l.metrics != nil {
			l.metrics.HotkeyEvents.Inc()
		}
	}

	switch ev.Key {
	case b.Recenter:
		if err := l.state.Recenter(); err != nil {
			l.log.Info("recenter key ignored", "error", err)
			return
		}
		l.log.Info("recentered by hotkey")
		l.notify("Head tracking recentered", "")
	case b.Pause:
		mode, err := l.state.TogglePause()
		if err != nil {
			l.log.Info("pause key ignored", "mode", mode, "error", err)
			return
		}
		if mode == control.ModePausedByUser {
			l.log.Info("tracking paused by hotkey")
			l.notify("Head tracking paused", "Press the pause key again to resume.")
		} else {
			l.log.Info("tracking resumed by hotkey")
			l.notify("Head tracking resumed", "")
		}
	}
}

func (l *Listener) notify(summary, body string) {
	if l.notifier != nil {
		l.notifier.Notify(summary, body)
	}
}

// release ungrabs every bound key.
func (l *Listener) release(d Display, b control.Bindings) {
	for _, k := range []control.KeyRef{b.Recenter, b.Pause} {
		if !k.Valid() {
			continue
		}
		if err := d.Ungrab(k); err != nil {
			l.log.Warn("failed to release key", "key", k, "error", err)
		}
	}
}

// bindWithFallback binds name, and fallback when name cannot be bound.
// An empty name leaves the operation unbound.
func (l *Listener) bindWithFallback(d Display, op Operation, name, fallback string) control.KeyRef {
	if name == "" {
		l.log.Info("no key configured, shortcut disabled", "op", op)
		return control.NoKey
	}
	if k := bind(d, l.log, name, op); k.Valid() {
		return k
	}
	if strings.EqualFold(name, fallback) {
		return control.NoKey
	}
	l.log.Info("trying default key", "op", op, "key", fallback)
	return bind(d, l.log, fallback, op)
}

// bind resolves name and grabs the key. It returns NoKey when the name is
// unknown or the grab fails, so an ungrabbed key is never dispatched.
func bind(d Display, log *logging.Logger, name string, op Operation) control.KeyRef {
	log.Info("binding key", "key", name, "op", op)

	k, err := d.Lookup(name)
	if err != nil {
		log.Warn("failed to find key", "key", name, "op", op, "error", err)
		return control.NoKey
	}
	if err := d.Grab(k); err != nil {
		log.Warn("failed to grab key, function unavailable", "key", name, "op", op, "error", err)
		return control.NoKey
	}
	return k
}
