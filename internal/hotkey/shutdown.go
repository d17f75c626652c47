package hotkey

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// ErrAlreadySignaled is returned by ShutdownChannel.Signal after the first
// call.
var ErrAlreadySignaled = errors.New("shutdown already signaled")

const shutdownByte = 'q'

// ShutdownChannel carries the one-shot stop request from the owner to the
// listener. It is backed by a pipe so a signal sent before the listener
// starts waiting is kept, not lost.
type ShutdownChannel struct {
	r, w      *os.File
	ready     chan struct{}
	watchDone chan struct{}
	signaled  atomic.Bool
	closeOnce sync.Once
}

// NewShutdownChannel creates the pipe and starts watching its read end.
func NewShutdownChannel() (*ShutdownChannel, error) {
	r, w, err := openPipe()
	if err != nil {
		return nil, fmt.Errorf("create shutdown pipe: %w", err)
	}
	c := &ShutdownChannel{
		r:         r,
		w:         w,
		ready:     make(chan struct{}),
		watchDone: make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

func (c *ShutdownChannel) watch() {
	defer close(c.watchDone)
	var buf [1]byte
	for {
		n, err := c.r.Read(buf[:])
		if n == 1 && buf[0] == shutdownByte {
			close(c.ready)
			return
		}
		if err != nil {
			return
		}
	}
}

// Signal requests shutdown. Only the first call writes to the pipe.
func (c *ShutdownChannel) Signal() error {
	if !c.signaled.CompareAndSwap(false, true) {
		return ErrAlreadySignaled
	}
	if _, err := c.w.Write([]byte{shutdownByte}); err != nil {
		return fmt.Errorf("write shutdown pipe: %w", err)
	}
	return nil
}

// Done is closed once the signal has been read. A nil channel has a nil
// Done, which blocks forever in a select.
func (c *ShutdownChannel) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.ready
}

// Close releases both pipe ends. Call it after the listener has stopped.
func (c *ShutdownChannel) Close() error {
	if c == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		err = errors.Join(c.w.Close(), c.r.Close())
		<-c.watchDone
	})
	return err
}
