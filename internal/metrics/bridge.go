package metrics

import (
	"fmt"
	"io"
	"time"
)

// BridgeMetrics holds the metrics the bridge maintains. A nil
// *BridgeMetrics is valid and records nothing.
type BridgeMetrics struct {
	registry *Registry
	started  time.Time

	EngineCalls          *Counter
	EngineErrors         *Counter
	EngineCallDuration   *Histogram
	FramesServed         *Counter
	PoseFailures         *Counter
	HotkeyEvents         *Counter
	ProfileRegistrations *Counter
	BridgeRequests       *Counter

	// TrackingMode mirrors control.Mode as an integer.
	TrackingMode  *Gauge
	BridgeClients *Gauge
	UptimeSeconds *Gauge
}

// NewBridgeMetrics registers the bridge metrics in registry, creating a
// registry with the "ltrnp" namespace when nil.
func NewBridgeMetrics(registry *Registry) *BridgeMetrics {
	if registry == nil {
		registry = NewRegistry("ltrnp")
	}
	return &BridgeMetrics{
		registry: registry,
		started:  time.Now(),

		EngineCalls: registry.Counter("engine_calls_total",
			"Calls made into the head-pose engine", nil),
		EngineErrors: registry.Counter("engine_errors_total",
			"Engine calls that returned an error", nil),
		EngineCallDuration: registry.Histogram("engine_call_seconds",
			"Time spent inside engine calls", nil, DurationBuckets),
		FramesServed: registry.Counter("frames_served_total",
			"Data records returned to the host", nil),
		PoseFailures: registry.Counter("pose_failures_total",
			"Data requests answered with a zeroed record", nil),
		HotkeyEvents: registry.Counter("hotkey_events_total",
			"Key presses dispatched by the hotkey listener", nil),
		ProfileRegistrations: registry.Counter("profile_registrations_total",
			"Profile registrations requested by the host", nil),
		BridgeRequests: registry.Counter("bridge_requests_total",
			"Requests received on the bridge socket", nil),

		TrackingMode: registry.Gauge("tracking_mode",
			"Transmission mode: 0 idle, 1 active, 2 paused by user, 3 stopped by host", nil),
		BridgeClients: registry.Gauge("bridge_clients",
			"Connected bridge clients", nil),
		UptimeSeconds: registry.Gauge("uptime_seconds",
			"Seconds since the bridge attached", nil),
	}
}

// Registry returns the underlying registry.
func (m *BridgeMetrics) Registry() *Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveEngineCall records one engine call.
func (m *BridgeMetrics) ObserveEngineCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.EngineCalls.Inc()
	m.EngineCallDuration.ObserveDuration(d)
	if err != nil {
		m.EngineErrors.Inc()
	}
}

func (m *BridgeMetrics) refreshUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
}

// Snapshot refreshes uptime and returns every metric value.
func (m *BridgeMetrics) Snapshot() map[string]float64 {
	if m == nil {
		return nil
	}
	m.refreshUptime()
	return m.registry.Snapshot()
}

// Export refreshes uptime and writes every metric in format, "prometheus"
// (or empty) for the text exposition format or "json".
func (m *BridgeMetrics) Export(w io.Writer, format string) error {
	if m == nil {
		return nil
	}
	m.refreshUptime()
	switch format {
	case "", "prometheus":
		return m.registry.WritePrometheus(w)
	case "json":
		return m.registry.WriteJSON(w)
	}
	return fmt.Errorf("unknown metrics format %q", format)
}
