// Package notify shows desktop notifications for hotkey actions.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"ltrnp/internal/logging"
)

// Freedesktop notification service.
const (
	Service   = "org.freedesktop.Notifications"
	Path      = "/org/freedesktop/Notifications"
	Interface = "org.freedesktop.Notifications"

	notifyMethod = Interface + ".Notify"
)

// DefaultAppName identifies the sender to the notification server.
const DefaultAppName = "ltrnp"

// Notifier shows short notifications.
type Notifier interface {
	Notify(summary, body string)
	Close() error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) {}
func (Nop) Close() error          { return nil }

// caller is the part of dbus.BusObject the notifier uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Options configures a DBus notifier.
type Options struct {
	AppName string
	Icon    string
	// Timeout is how long a bubble stays up. Zero lets the server decide.
	Timeout time.Duration
	Logger  *logging.Logger
}

// DBus sends notifications over the session bus. Each notification
// replaces the previous one, so a burst of key presses shows one bubble.
type DBus struct {
	conn    *dbus.Conn
	obj     caller
	appName string
	icon    string
	timeout time.Duration
	log     *logging.Logger

	mu     sync.Mutex
	lastID uint32
	closed bool
}

// Connect opens a private session-bus connection.
func Connect(opts Options) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	d := newDBus(conn.Object(Service, Path), opts)
	d.conn = conn
	return d, nil
}

func newDBus(obj caller, opts Options) *DBus {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	app := opts.AppName
	if app == "" {
		app = DefaultAppName
	}
	return &DBus{
		obj:     obj,
		appName: app,
		icon:    opts.Icon,
		timeout: opts.Timeout,
		log:     log.WithComponent("notify"),
	}
}

// Notify shows summary and body. Failures are logged.
func (d *DBus) Notify(summary, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	expire := int32(-1)
	if d.timeout > 0 {
		expire = int32(d.timeout / time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	call := d.obj.CallWithContext(ctx, notifyMethod, 0,
		d.appName, d.lastID, d.icon, summary, body,
		[]string{}, map[string]dbus.Variant{}, expire)

	var id uint32
	if err := call.Store(&id); err != nil {
		d.log.Warn("notification failed", "summary", summary, "error", err)
		return
	}
	d.lastID = id
}

// Close closes the bus connection.
func (d *DBus) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Open returns a D-Bus notifier, or Nop when disabled or when the session
// bus cannot be reached.
func Open(enabled bool, opts Options) Notifier {
	if !enabled {
		return Nop{}
	}
	d, err := Connect(opts)
	if err != nil {
		log := opts.Logger
		if log == nil {
			log = logging.Default()
		}
		log.WithComponent("notify").Info("desktop notifications unavailable", "error", err)
		return Nop{}
	}
	return d
}
