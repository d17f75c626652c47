package engine

import (
	"sync/atomic"
)

// Probe wraps an Adapter and counts how many calls are inside it at once.
// The bridge never allows more than one; Violations counts every entry
// that found another call already in progress.
type Probe struct {
	next Adapter

	inside     atomic.Int32
	max        atomic.Int32
	calls      atomic.Int64
	violations atomic.Int64
}

// NewProbe wraps next.
func NewProbe(next Adapter) *Probe {
	return &Probe{next: next}
}

func (p *Probe) enter() {
	n := p.inside.Add(1)
	p.calls.Add(1)
	if n > 1 {
		p.violations.Add(1)
	}
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (p *Probe) exit() {
	p.inside.Add(-1)
}

// MaxConcurrent returns the highest number of simultaneous calls observed.
func (p *Probe) MaxConcurrent() int32 { return p.max.Load() }

// Violations returns the number of calls that overlapped another call.
func (p *Probe) Violations() int64 { return p.violations.Load() }

// Calls returns the total number of calls made through the probe.
func (p *Probe) Calls() int64 { return p.calls.Load() }

// Init implements Adapter.
func (p *Probe) Init(profile string) error {
	p.enter()
	defer p.exit()
	return p.next.Init(profile)
}

// Shutdown implements Adapter.
func (p *Probe) Shutdown() error {
	p.enter()
	defer p.exit()
	return p.next.Shutdown()
}

// Suspend implements Adapter.
func (p *Probe) Suspend() error {
	p.enter()
	defer p.exit()
	return p.next.Suspend()
}

// Wakeup implements Adapter.
func (p *Probe) Wakeup() error {
	p.enter()
	defer p.exit()
	return p.next.Wakeup()
}

// Recenter implements Adapter.
func (p *Probe) Recenter() error {
	p.enter()
	defer p.exit()
	return p.next.Recenter()
}

// Update implements Adapter.
func (p *Probe) Update() (Pose, error) {
	p.enter()
	defer p.exit()
	return p.next.Update()
}
