package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ltrnp/internal/logging"
)

// Provider is the configuration as the bridge consumes it: key names per
// operation and application names per profile id. The key names are
// fixed once loaded; the application database can be reloaded.
type Provider struct {
	cfg  *Config
	apps *AppDB
	log  *logging.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
	onReload []func(entries int)
}

// NewProvider wraps a loaded configuration and application database.
func NewProvider(cfg *Config, apps *AppDB, log *logging.Logger) *Provider {
	if log == nil {
		log = logging.Default()
	}
	if apps == nil {
		apps = NewAppDB(cfg.Profiles.AppDB)
	}
	return &Provider{cfg: cfg, apps: apps, log: log.WithComponent("config")}
}

// Open loads the application database named by cfg and wraps both. A
// database that cannot be read is logged and left empty.
func Open(cfg *Config, log *logging.Logger) *Provider {
	p := NewProvider(cfg, nil, log)
	if err := p.ReloadApps(); err != nil {
		p.log.Warn("application database unavailable, all profiles resolve to the default",
			"path", cfg.Profiles.AppDB, "error", err)
	}
	return p
}

// Config returns the loaded configuration.
func (p *Provider) Config() *Config {
	return p.cfg
}

// Apps returns the application database.
func (p *Provider) Apps() *AppDB {
	return p.apps
}

// KeyBinding returns the key name for op.
func (p *Provider) KeyBinding(op string) string {
	return p.cfg.KeyBinding(op)
}

// ResolveAppName returns the application name registered for id.
func (p *Provider) ResolveAppName(id int) (string, bool) {
	return p.apps.Resolve(id)
}

// OnReload registers a callback run after each successful reload of the
// application database.
func (p *Provider) OnReload(cb func(entries int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = append(p.onReload, cb)
}

// ReloadApps re-reads the application database.
func (p *Provider) ReloadApps() error {
	if err := p.apps.Reload(); err != nil {
		return err
	}
	for _, w := range p.apps.Warnings() {
		p.log.Warn("application database", "path", p.apps.Path(), "problem", w)
	}
	n := p.apps.Len()
	p.log.Info("application database loaded", "path", p.apps.Path(), "entries", n)

	p.mu.Lock()
	cbs := append([]func(int){}, p.onReload...)
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(n)
	}
	return nil
}

// Watch reloads the application database whenever its file is written or
// replaced. It watches the containing directory so editors that rename
// over the file are seen.
func (p *Provider) Watch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.apps.Path())); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.watcher = watcher
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.watchLoop(ctx, watcher, p.done)
	return nil
}

func (p *Provider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	base := filepath.Base(p.apps.Path())

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				if ctx.Err() != nil {
					return
				}
				if err := p.ReloadApps(); err != nil {
					p.log.Warn("reload application database", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.log.Warn("config watcher", "error", err)
		}
	}
}

// Close stops watching.
func (p *Provider) Close() error {
	p.mu.Lock()
	watcher, cancel, done := p.watcher, p.cancel, p.done
	p.watcher, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()

	if watcher == nil {
		return nil
	}
	cancel()
	err := watcher.Close()
	<-done
	return err
}
