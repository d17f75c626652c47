// Package metrics provides Prometheus-compatible counters, gauges and
// histograms for ltrnp. Metrics are exported through the bridge socket
// rather than an HTTP endpoint.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are constant labels attached to a metric.
type Labels map[string]string

// String renders labels in exposition format, keys sorted. Empty labels
// render as "".
func (l Labels) String() string {
	return l.with("", "")
}

// with renders l plus one extra pair, used for histogram "le".
func (l Labels) with(key, value string) string {
	pairs := make([]string, 0, len(l)+1)
	for k, v := range l {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, v))
	}
	sort.Strings(pairs)
	if key != "" {
		pairs = append(pairs, fmt.Sprintf("%s=%q", key, value))
	}
	if len(pairs) == 0 {
		return ""
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

type desc struct {
	name   string
	help   string
	labels Labels
}

// Name returns the namespaced metric name.
func (d *desc) Name() string { return d.name }

func (d *desc) header(w io.Writer, kind string) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, kind)
	return err
}

// collector is implemented by every metric kind.
type collector interface {
	expose(w io.Writer) error
	collect(into map[string]float64)
}

// Counter only goes up. A nil *Counter is valid and records nothing.
type Counter struct {
	desc
	v atomic.Uint64
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(n uint64) {
	if c != nil {
		c.v.Add(n)
	}
}

func (c *Counter) Value() uint64 {
	if c == nil {
		return 0
	}
	return c.v.Load()
}

func (c *Counter) expose(w io.Writer) error {
	if err := c.header(w, "counter"); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s%s %d\n", c.name, c.labels, c.Value())
	return err
}

func (c *Counter) collect(into map[string]float64) { into[c.name] = float64(c.Value()) }

// Gauge is a value that can go up and down. A nil *Gauge is valid.
type Gauge struct {
	desc
	v atomic.Int64
}

func (g *Gauge) Set(v int64) {
	if g != nil {
		g.v.Store(v)
	}
}

func (g *Gauge) Add(v int64) {
	if g != nil {
		g.v.Add(v)
	}
}

func (g *Gauge) Value() int64 {
	if g == nil {
		return 0
	}
	return g.v.Load()
}

func (g *Gauge) expose(w io.Writer) error {
	if err := g.header(w, "gauge"); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s%s %d\n", g.name, g.labels, g.Value())
	return err
}

func (g *Gauge) collect(into map[string]float64) { into[g.name] = float64(g.Value()) }

// DurationBuckets suit engine calls, in seconds.
var DurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Histogram counts observations into buckets. A nil *Histogram is valid.
type Histogram struct {
	desc
	bounds []float64

	mu    sync.Mutex
	hits  []uint64 // len(bounds)+1; the last slot is +Inf
	sum   float64
	count uint64
}

func (h *Histogram) Observe(v float64) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.hits[sort.SearchFloat64s(h.bounds, v)]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

func (h *Histogram) Count() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) Sum() float64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *Histogram) expose(w io.Writer) error {
	if err := h.header(w, "histogram"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var cum uint64
	for i, hit := range h.hits {
		cum += hit
		le := "+Inf"
		if i < len(h.bounds) {
			le = fmt.Sprintf("%g", h.bounds[i])
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", le), cum)
	}
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, h.labels, h.sum)
	_, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, h.labels, h.count)
	return err
}

func (h *Histogram) collect(into map[string]float64) {
	h.mu.Lock()
	into[h.name+"_sum"] = h.sum
	into[h.name+"_count"] = float64(h.count)
	h.mu.Unlock()
}

// Registry owns a set of metrics under one namespace.
type Registry struct {
	namespace string

	mu      sync.RWMutex
	metrics map[string]collector
}

// NewRegistry creates a registry. Metric names are prefixed with
// namespace and an underscore.
func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace, metrics: make(map[string]collector)}
}

// register returns the metric already registered under name, or stores
// the one built by mk. Registering one name as two kinds panics.
func register[T collector](r *Registry, name string, mk func(full string) T) T {
	full := name
	if r.namespace != "" {
		full = r.namespace + "_" + name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[full]; ok {
		existing, same := m.(T)
		if !same {
			panic(fmt.Sprintf("metrics: %s registered twice with different kinds", full))
		}
		return existing
	}
	m := mk(full)
	r.metrics[full] = m
	return m
}

// Counter registers a counter or returns the existing one.
func (r *Registry) Counter(name, help string, labels Labels) *Counter {
	return register(r, name, func(full string) *Counter {
		return &Counter{desc: desc{full, help, labels}}
	})
}

// Gauge registers a gauge or returns the existing one.
func (r *Registry) Gauge(name, help string, labels Labels) *Gauge {
	return register(r, name, func(full string) *Gauge {
		return &Gauge{desc: desc{full, help, labels}}
	})
}

// Histogram registers a histogram or returns the existing one. Bounds
// need not be sorted.
func (r *Registry) Histogram(name, help string, labels Labels, bounds []float64) *Histogram {
	return register(r, name, func(full string) *Histogram {
		b := append([]float64(nil), bounds...)
		sort.Float64s(b)
		return &Histogram{desc: desc{full, help, labels}, bounds: b, hits: make([]uint64, len(b)+1)}
	})
}

// WritePrometheus writes every metric in text exposition format, sorted
// by name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.metrics[name].expose(w); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the current value of every metric. Histograms
// contribute their _sum and _count.
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(r.metrics))
	for _, m := range r.metrics {
		m.collect(out)
	}
	return out
}

// WriteJSON writes Snapshot as indented JSON.
func (r *Registry) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Snapshot())
}
