// Package npclient implements the entry points a legacy head-tracking host
// calls, on top of the shared control state.
//
// Every method corresponds to one host call. Calls the host cannot see
// fail are logged and report success; only profile registration has a
// failure result.
package npclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"ltrnp/internal/control"
	"ltrnp/internal/logging"
	"ltrnp/internal/metrics"
)

// DefaultProfile is the profile loaded for ids with no application name.
const DefaultProfile = "Default"

// DefaultSettle is how long the engine runs before the first recenter.
const DefaultSettle = time.Second

// AppResolver maps host profile ids to application names.
type AppResolver interface {
	ResolveAppName(id int) (string, bool)
}

// Journal records what the host did. Implementations handle their own
// errors.
type Journal interface {
	ProfileRegistered(id int, name string, ok bool)
	TransmissionStarted(profile string)
	TransmissionStopped(profile string, frames uint64)
}

// Options configures a Client.
type Options struct {
	Apps AppResolver

	// DefaultProfile replaces unresolved ids. Empty means DefaultProfile.
	DefaultProfile string

	// AddProfile, when set, is called with every resolved application
	// name so the engine's own configuration knows about it. It reports
	// whether anything was added.
	AddProfile func(name string) (bool, error)

	// Settle is the delay between wakeup and recenter when transmission
	// starts. Zero means DefaultSettle; negative means no delay.
	Settle time.Duration

	Journal Journal
	Logger  *logging.Logger
	Metrics *metrics.BridgeMetrics
}

// Client serves host calls.
type Client struct {
	state      *control.State
	apps       AppResolver
	defaultPro string
	addProfile func(string) (bool, error)
	settle     time.Duration
	journal    Journal
	log        *logging.Logger
	metrics    *metrics.BridgeMetrics
	signature  Signature

	mu       sync.Mutex
	frame    int16
	frames   uint64
	failing  bool
	sending  bool
	lastProf string
}

// New creates a Client driving state.
func New(state *control.State, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	def := opts.DefaultProfile
	if def == "" {
		def = DefaultProfile
	}
	settle := opts.Settle
	switch {
	case settle == 0:
		settle = DefaultSettle
	case settle < 0:
		settle = 0
	}
	return &Client{
		state:      state,
		apps:       opts.Apps,
		defaultPro: def,
		addProfile: opts.AddProfile,
		settle:     settle,
		journal:    opts.Journal,
		log:        log.WithComponent("npclient"),
		metrics:    opts.Metrics,
		signature:  DefaultSignature(),
	}
}

// GetSignature returns the client signature.
func (c *Client) GetSignature() Signature {
	c.log.Debug("NP_GetSignature")
	return c.signature
}

// QueryVersion returns the interface version.
func (c *Client) QueryVersion() uint16 {
	c.log.Debug("NP_QueryVersion")
	return Version
}

// ReCenter recenters the engine.
func (c *Client) ReCenter() error {
	c.log.Debug("NP_ReCenter")
	err := c.state.Recenter()
	if err != nil {
		c.log.Info("recenter ignored", "error", err)
	}
	return err
}

// RegisterWindowHandle accepts and ignores the host window.
func (c *Client) RegisterWindowHandle(handle uint64) {
	c.log.Debug("NP_RegisterWindowHandle", "handle", handle)
}

// UnregisterWindowHandle is a no-op.
func (c *Client) UnregisterWindowHandle() {
	c.log.Debug("NP_UnregisterWindowHandle")
}

// ResolveProfile returns the profile name for id and whether it came
// from the application database.
func (c *Client) ResolveProfile(id int) (string, bool) {
	if c.apps != nil && id >= 0 {
		if name, ok := c.apps.ResolveAppName(id); ok {
			return name, true
		}
	}
	return c.defaultPro, false
}

// RegisterProgramProfileID loads the profile for the host's id. An id
// without an application name loads the default profile. The returned
// error wraps control.ErrEngineInit when the engine rejects the profile.
func (c *Client) RegisterProgramProfileID(id int) error {
	profile, known := c.ResolveProfile(id)
	if known && c.addProfile != nil {
		added, err := c.addProfile(profile)
		switch {
		case err != nil:
			c.log.Warn("could not add engine profile", "profile", profile, "error", err)
		case added:
			c.log.Info("added engine profile", "profile", profile)
		}
	}
	c.log.Info("program profile", "profile", profile, "id", id, "known", known)

	if c.metrics != nil {
		c.metrics.ProfileRegistrations.Inc()
	}

	err := c.state.RegisterProfile(profile)
	if err != nil {
		c.log.Error("failed to initialize engine", "profile", profile, "error", err)
	}
	if c.journal != nil {
		c.journal.ProfileRegistered(id, profile, err == nil)
	}
	return err
}

// RequestData accepts and ignores the host's data mask.
func (c *Client) RequestData(mask int16) {
	c.log.Debug("NP_RequestData", "mask", mask)
}

// GetData returns the current pose. It never fails: when no pose can be
// read the record is zero apart from the frame counter, which advances on
// every call and wraps.
func (c *Client) GetData() Data {
	pose, err := c.state.Update()

	c.mu.Lock()
	defer c.mu.Unlock()

	frame := c.frame
	c.frame++

	if err != nil {
		if !c.failing {
			lvl := logging.LevelWarn
			if errors.Is(err, control.ErrNotInitialized) {
				lvl = logging.LevelDebug
			}
			c.log.Log(context.Background(), lvl, "pose update failed", "error", err)
		}
		c.failing = true
		if c.metrics != nil {
			c.metrics.PoseFailures.Inc()
		}
		return Data{Frame: frame}
	}
	if c.failing {
		c.log.Info("pose updates recovered")
		c.failing = false
	}

	c.frames++
	if c.metrics != nil {
		c.metrics.FramesServed.Inc()
	}
	return FromPose(pose, frame)
}

// StopCursor is a no-op.
func (c *Client) StopCursor() {
	c.log.Debug("NP_StopCursor")
}

// StartCursor is a no-op.
func (c *Client) StartCursor() {
	c.log.Debug("NP_StartCursor")
}

// StartDataTransmission wakes the engine and recenters it once it has
// settled. It blocks for the settle delay; ctx cuts the wait short and
// skips the recenter.
func (c *Client) StartDataTransmission(ctx context.Context) error {
	c.log.Debug("NP_StartDataTransmission")

	c.mu.Lock()
	restarted := c.sending
	prevFrames, prevProfile := c.frames, c.lastProf
	c.frames = 0
	c.sending = true
	c.lastProf = c.state.Snapshot().Profile
	profile := c.lastProf
	c.mu.Unlock()

	if c.journal != nil {
		if restarted {
			c.journal.TransmissionStopped(prevProfile, prevFrames)
		}
		c.journal.TransmissionStarted(profile)
	}
	return c.state.StartTransmission(ctx, c.settle)
}

// StopDataTransmission suspends the engine.
func (c *Client) StopDataTransmission() error {
	c.log.Debug("NP_StopDataTransmission")

	err := c.state.StopTransmission()
	if err != nil {
		c.log.Info("stop transmission", "error", err)
	}

	c.mu.Lock()
	wasSending := c.sending
	frames, profile := c.frames, c.lastProf
	c.sending = false
	c.mu.Unlock()

	if wasSending && c.journal != nil {
		c.journal.TransmissionStopped(profile, frames)
	}
	return err
}

// Result converts an error from a Client method into a host result code.
func Result(err error) int32 {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}
