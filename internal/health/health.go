// Package health aggregates component checks into one bridge status.
//
// A critical component that fails makes the bridge unhealthy; any other
// failure only degrades it, matching how the bridge keeps running with a
// feature switched off.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is the outcome of one check run.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

type Check func(ctx context.Context) CheckResult

// Component is a named check. Critical components decide whether the
// bridge as a whole is unhealthy.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// DefaultTimeout bounds a check registered without a timeout.
const DefaultTimeout = 2 * time.Second

type entry struct {
	comp *Component
	last CheckResult
}

// Checker runs registered checks and remembers their last results.
type Checker struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewChecker() *Checker {
	return &Checker{entries: make(map[string]*entry)}
}

// Register adds comp, replacing any component of the same name. Until its
// first run the component reads as unknown.
func (c *Checker) Register(comp *Component) {
	if comp.Timeout <= 0 {
		comp.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	c.entries[comp.Name] = &entry{comp: comp, last: CheckResult{Status: StatusUnknown}}
	c.mu.Unlock()
}

func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Names returns the registered component names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every component concurrently and returns the fresh results.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.entries))
	for _, e := range c.entries {
		comps = append(comps, e.comp)
	}
	c.mu.RUnlock()

	results := make([]CheckResult, len(comps))
	var wg sync.WaitGroup
	for i, comp := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, comp)
		}()
	}
	wg.Wait()

	out := make(map[string]CheckResult, len(comps))
	c.mu.Lock()
	for i, comp := range comps {
		out[comp.Name] = results[i]
		if e, ok := c.entries[comp.Name]; ok && e.comp == comp {
			e.last = results[i]
		}
	}
	c.mu.Unlock()
	return out
}

// runCheck turns a timeout or a panic in comp into an unhealthy result.
func runCheck(ctx context.Context, comp *Component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	started := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(p)}
			}
		}()
		done <- comp.Check(ctx)
	}()

	var r CheckResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r = Unhealthy("check timed out", ctx.Err())
	}
	r.LastChecked = started
	r.Duration = time.Since(started)
	return r
}

// GetResult returns the last result recorded for name.
func (c *Checker) GetResult(name string) (CheckResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return CheckResult{}, false
	}
	return e.last, true
}

// OverallStatus folds the last results together. A failing critical
// component wins; an unchecked critical component makes the status
// unknown; any other problem degrades it.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := StatusHealthy
	for _, e := range c.entries {
		switch st := e.last.Status; {
		case st == StatusUnhealthy && e.comp.Critical:
			return StatusUnhealthy
		case st == StatusUnknown && e.comp.Critical:
			overall = StatusUnknown
		case st == StatusUnhealthy, st == StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall
}

// Report is the result of one full run.
type Report struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components,omitempty"`
}

// Report runs every check and aggregates the results.
func (c *Checker) Report(ctx context.Context) Report {
	results := c.Check(ctx)
	return Report{Status: c.OverallStatus(), Components: results}
}

func Healthy(message string) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: message}
}

func Degraded(message string) CheckResult {
	return CheckResult{Status: StatusDegraded, Message: message}
}

// Unhealthy carries err's text in Error when err is non-nil.
func Unhealthy(message string, err error) CheckResult {
	r := CheckResult{Status: StatusUnhealthy, Message: message}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// PingCheck wraps ping as a check reporting "<what> ok" or
// "<what> unreachable".
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return Unhealthy(what+" unreachable", err)
		}
		return Healthy(what + " ok")
	}
}
