package hotkey

import (
	"fmt"
	"io"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"

	"ltrnp/internal/control"
	"ltrnp/internal/logging"
)

// x11Display is a Display on an X server.
type x11Display struct {
	xu   *xgbutil.XUtil
	conn *xgb.Conn
	root xproto.Window
	log  *logging.Logger

	mu     sync.Mutex
	closed bool
}

// X11Dialer returns a Dialer for the named X display; an empty name uses
// $DISPLAY.
func X11Dialer(name string, log *logging.Logger) Dialer {
	if log == nil {
		log = logging.Default()
	}
	log = log.WithComponent("x11")
	return func() (Display, error) {
		xgb.Logger = log.StdLogger(logging.LevelDebug)
		xgbutil.Logger = log.StdLogger(logging.LevelDebug)

		xu, err := xgbutil.NewConnDisplay(name)
		if err != nil {
			return nil, fmt.Errorf("connect to X display %q: %w", name, err)
		}
		keybind.Initialize(xu)

		return &x11Display{
			xu:   xu,
			conn: xu.Conn(),
			root: xu.RootWin(),
			log:  log,
		}, nil
	}
}

// Lookup implements Display using the server's current keyboard mapping.
func (d *x11Display) Lookup(name string) (control.KeyRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return control.NoKey, ErrDisplayClosed
	}

	codes := keybind.StrToKeycodes(d.xu, name)
	if len(codes) == 0 {
		return control.NoKey, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	return control.KeyRef(codes[0]), nil
}

// Grab implements Display. The request is checked, so an X error caused by
// this grab (typically BadAccess when another client holds the key) is
// returned here instead of arriving later on the event stream.
func (d *x11Display) Grab(key control.KeyRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDisplayClosed
	}

	err := xproto.GrabKeyChecked(d.conn, false, d.root, xproto.ModMaskAny,
		xproto.Keycode(key), xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
	if err != nil {
		return fmt.Errorf("grab keycode %d: %w", key, err)
	}
	return nil
}

// Ungrab implements Display.
func (d *x11Display) Ungrab(key control.KeyRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDisplayClosed
	}

	err := xproto.UngrabKeyChecked(d.conn, xproto.Keycode(key), d.root, xproto.ModMaskAny).Check()
	if err != nil {
		return fmt.Errorf("ungrab keycode %d: %w", key, err)
	}
	return nil
}

// NextEvent implements Display. X errors not tied to a checked request are
// logged and skipped.
func (d *x11Display) NextEvent() (Event, error) {
	for {
		ev, xerr := d.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			d.mu.Lock()
			// xgb has already torn the connection down.
			d.closed = true
			d.mu.Unlock()
			return Event{}, io.EOF
		}
		if xerr != nil {
			d.log.Debug("X error", "error", xerr)
			continue
		}

		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			return Event{Type: EventKeyPress, Key: control.KeyRef(e.Detail)}, nil
		case xproto.KeyReleaseEvent:
			return Event{Type: EventKeyRelease, Key: control.KeyRef(e.Detail)}, nil
		default:
			return Event{Type: EventOther}, nil
		}
	}
}

// Close implements Display. It is safe to call more than once.
func (d *x11Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	defer func() {
		// xgb closes the connection on its own after a read failure, and
		// closing it again panics.
		if r := recover(); r != nil {
			d.log.Debug("X connection already closed", "panic", r)
		}
	}()
	d.conn.Close()
	return nil
}
