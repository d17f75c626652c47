// Package shim attaches the bridge to the process and detaches it again.
//
// Attach builds every collaborator in a fixed order: logger, configuration,
// application database and its watcher, journal, notifier, engine, control
// state, hotkey listener and the host client. A collaborator that cannot
// be built is logged and left out; Attach itself does not fail on it.
// Detach tears the same pieces down in reverse and is safe to call more
// than once.
package shim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ltrnp/internal/config"
	"ltrnp/internal/control"
	"ltrnp/internal/engine"
	"ltrnp/internal/health"
	"ltrnp/internal/hotkey"
	"ltrnp/internal/ipc"
	"ltrnp/internal/logging"
	"ltrnp/internal/metrics"
	"ltrnp/internal/notify"
	"ltrnp/internal/npclient"
	"ltrnp/internal/store"
)

// Options configures Attach. Zero values take everything from the
// configuration file.
type Options struct {
	// ConfigPath is the configuration file. Empty means config.ConfigPath.
	ConfigPath string
	// Config, when set, is used instead of loading ConfigPath.
	Config *config.Config
	// LogLevel overrides logging.level when not empty.
	LogLevel string
	// Logger, when set, is used instead of building one from the
	// configuration. Detach does not close it.
	Logger *logging.Logger

	// Engine, when set, replaces the configured backend.
	Engine engine.Adapter
	// Dial, when set, replaces the X11 display.
	Dial hotkey.Dialer
	// Notifier, when set, replaces the D-Bus notifier.
	Notifier notify.Notifier

	Version string
}

// Shim owns the attached bridge.
type Shim struct {
	cfg       *config.Config
	log       *logging.Logger
	ownLog    bool
	version   string
	startedAt time.Time

	provider *config.Provider
	journal  *store.Journal
	notifier notify.Notifier
	engine   string
	probe    *engine.Probe
	state    *control.State
	listener *hotkey.Listener
	client   *npclient.Client
	metrics  *metrics.BridgeMetrics
	health   *health.Checker

	engineErr error

	mu     sync.Mutex
	server *ipc.Server

	detachOnce sync.Once
	detachErr  error
}

// Attach builds and starts the bridge. It fails only when ctx is already
// done.
func Attach(ctx context.Context, opts Options) (*Shim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Shim{
		version:   opts.Version,
		startedAt: time.Now(),
		metrics:   metrics.NewBridgeMetrics(nil),
	}
	if s.version == "" {
		s.version = "dev"
	}

	cfg, problems := loadConfig(opts)
	s.cfg = cfg

	if opts.Logger != nil {
		s.log = opts.Logger
	} else {
		s.log = logging.Open(cfg.LogConfig())
		s.ownLog = true
	}
	log := s.log.WithComponent("shim")
	log.Info("attaching", "version", s.version, "config", opts.ConfigPath)
	for _, p := range problems {
		log.Warn("configuration", "problem", p)
	}

	if err := config.EnsureDir(config.Dir()); err != nil {
		log.Warn("configuration directory unusable, using defaults", "dir", config.Dir(), "error", err)
	}

	s.provider = config.Open(cfg, s.log)
	if cfg.Profiles.WatchAppDB {
		if err := s.provider.Watch(); err != nil {
			log.Warn("application database will not reload on change", "error", err)
		}
	}

	if cfg.Journal.Enabled {
		st, err := store.Open(cfg.Journal.Path)
		if err != nil {
			log.Warn("journal unavailable", "path", cfg.Journal.Path, "error", err)
		} else {
			s.journal = store.NewJournal(st, s.log)
		}
	}

	s.notifier = opts.Notifier
	if s.notifier == nil {
		s.notifier = notify.Open(cfg.Notify.Enabled, notify.Options{
			AppName: notify.DefaultAppName,
			Timeout: time.Duration(cfg.Notify.TimeoutMs) * time.Millisecond,
			Logger:  s.log,
		})
	}

	eng := opts.Engine
	s.engine = "custom"
	if eng == nil {
		s.engine = cfg.Engine.Backend
		var err error
		if eng, err = engine.New(cfg.Engine.Backend); err != nil {
			s.engineErr = err
			log.Error("engine backend unavailable, profile registration will fail",
				"backend", cfg.Engine.Backend, "error", err)
		}
	}
	if cfg.Engine.Probe {
		s.probe = engine.NewProbe(eng)
		eng = s.probe
	}

	s.state = control.New(eng, control.Options{Logger: s.log, Metrics: s.metrics})

	if err := ctx.Err(); err != nil {
		s.Detach()
		return nil, err
	}

	dial := opts.Dial
	if dial == nil {
		dial = hotkey.X11Dialer(cfg.Display.Name, s.log)
	}
	s.listener = hotkey.New(s.state, hotkey.Options{
		Dial: dial,
		Keys: hotkey.KeyNames{
			Recenter: s.provider.KeyBinding(string(hotkey.OpRecenter)),
			Pause:    s.provider.KeyBinding(string(hotkey.OpPause)),
		},
		Notifier: s.notifier,
		Logger:   s.log,
		Metrics:  s.metrics,
	})
	if err := s.listener.Start(); err != nil {
		log.Warn("hotkey listener not started", "error", err)
	}

	npOpts := npclient.Options{
		Apps:           s.provider,
		DefaultProfile: cfg.Profiles.DefaultName,
		Settle:         cfg.SettleDelay(),
		Logger:         s.log,
		Metrics:        s.metrics,
	}
	if npOpts.Settle == 0 {
		npOpts.Settle = -1
	}
	if cfg.Profiles.RegisterNew {
		path := cfg.Profiles.LinuxtrackConfig
		npOpts.AddProfile = func(name string) (bool, error) {
			return config.RegisterLinuxtrackProfile(path, name)
		}
	}
	if s.journal != nil {
		npOpts.Journal = s.journal
	}
	s.client = npclient.New(s.state, npOpts)
	s.health = s.newHealthChecker()

	log.Info("attached", "engine", s.engine, "apps", s.provider.Apps().Len(),
		"journal", s.journal != nil)
	return s, nil
}

// loadConfig returns the configuration to run with and the problems met
// getting it. It never fails: unreadable or invalid configuration is
// replaced by the defaults.
func loadConfig(opts Options) (*config.Config, []string) {
	var problems []string

	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			problems = append(problems, fmt.Sprintf("load failed, using defaults: %v", err))
			cfg = config.DefaultConfig()
		}
	}
	problems = append(problems, cfg.Warnings...)

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("invalid, using defaults: %v", err))
		cfg = config.DefaultConfig()
	}
	return cfg, problems
}

// ServeBridge starts the bridge socket server. Detach stops it.
func (s *Shim) ServeBridge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("bridge already serving")
	}

	srvCfg := ipc.DefaultServerConfig(s.cfg.Bridge.SocketPath)
	srvCfg.Version = s.version
	srvCfg.MaxConnections = s.cfg.Bridge.MaxConnections
	srvCfg.ReadTimeout = time.Duration(s.cfg.Bridge.ReadTimeoutSec) * time.Second
	srvCfg.Logger = s.log
	srvCfg.Metrics = s.metrics

	srv, err := ipc.NewServer(srvCfg, ipc.NewBridgeHandler(s.client, s, s.log))
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	s.server = srv
	return nil
}

// Detach stops the bridge: socket server, hotkey listener, engine,
// configuration watcher, journal, notifier and finally the logger. Every
// step runs even when an earlier one fails.
func (s *Shim) Detach() error {
	s.detachOnce.Do(func() {
		log := s.log.WithComponent("shim")
		log.Info("detaching")

		var errs []error
		s.mu.Lock()
		srv := s.server
		s.mu.Unlock()
		if srv != nil {
			errs = append(errs, srv.Stop())
		}
		if s.listener != nil {
			errs = append(errs, s.listener.Stop())
		}
		if s.state != nil {
			errs = append(errs, s.state.Shutdown())
		}
		errs = append(errs, s.provider.Close())
		if s.journal != nil {
			errs = append(errs, s.journal.Close())
		}
		errs = append(errs, s.notifier.Close())

		s.detachErr = errors.Join(errs...)
		if s.detachErr != nil {
			log.Warn("detached with errors", "error", s.detachErr)
		} else {
			log.Info("detached")
		}
		if s.ownLog {
			s.log.Close()
		}
	})
	return s.detachErr
}

// Client returns the host client.
func (s *Shim) Client() *npclient.Client { return s.client }

// State returns the control state.
func (s *Shim) State() *control.State { return s.state }

// Listener returns the hotkey listener.
func (s *Shim) Listener() *hotkey.Listener { return s.listener }

// Config returns the configuration in use.
func (s *Shim) Config() *config.Config { return s.cfg }

// Provider returns the configuration provider.
func (s *Shim) Provider() *config.Provider { return s.provider }

// Metrics returns the bridge metrics.
func (s *Shim) Metrics() *metrics.BridgeMetrics { return s.metrics }

// Logger returns the bridge logger.
func (s *Shim) Logger() *logging.Logger { return s.log }
