// Package metrics provides bridge client metrics for observability
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/portbridge/internal/bridge"
)

// Label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// BridgeMetrics contains Prometheus metrics for bridge clients
type BridgeMetrics struct {
	registry *prometheus.Registry

	// Block processing, updated from the real-time thread through pre-resolved children
	blocksTotal       *prometheus.CounterVec
	framesTotal       *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec
	deadlineOverruns  *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	clientState       *prometheus.GaugeVec
	portRegistrations *prometheus.CounterVec
	portPeak          *prometheus.GaugeVec
}

// NewBridgeMetrics creates and registers bridge metrics
func NewBridgeMetrics(registry *prometheus.Registry) (*BridgeMetrics, error) {
	m := &BridgeMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *BridgeMetrics) initMetrics() {
	m.blocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_blocks_processed_total",
			Help: "Total number of audio blocks delivered to the processing routine",
		},
		[]string{"client"},
	)

	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_frames_processed_total",
			Help: "Total number of frames delivered to the processing routine",
		},
		[]string{"client"},
	)

	m.processDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_process_duration_seconds",
			Help:    "Time spent in one block notification including the routine",
			Buckets: prometheus.ExponentialBuckets(10e-6, 2, 12), // 10µs to ~20ms
		},
		[]string{"client"},
	)

	m.deadlineOverruns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_deadline_overruns_total",
			Help: "Blocks whose processing took longer than the block duration",
		},
		[]string{"client"},
	)

	m.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_state_transitions_total",
			Help: "Client lifecycle transitions",
		},
		[]string{"client", "from", "to", "status"},
	)

	m.clientState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_client_state",
			Help: "Current client state: 0 constructed, 1 activated, 2 deactivated, 3 closed",
		},
		[]string{"client"},
	)

	m.portRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_port_registrations_total",
			Help: "Port registration attempts",
		},
		[]string{"client", "direction", "status"},
	)

	m.portPeak = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_port_peak_amplitude",
			Help: "Peak absolute sample value seen on a port since the last report",
		},
		[]string{"client", "port"},
	)
}

// Describe implements the prometheus.Collector interface
func (m *BridgeMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.blocksTotal.Describe(ch)
	m.framesTotal.Describe(ch)
	m.processDuration.Describe(ch)
	m.deadlineOverruns.Describe(ch)
	m.stateTransitions.Describe(ch)
	m.clientState.Describe(ch)
	m.portRegistrations.Describe(ch)
	m.portPeak.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *BridgeMetrics) Collect(ch chan<- prometheus.Metric) {
	m.blocksTotal.Collect(ch)
	m.framesTotal.Collect(ch)
	m.processDuration.Collect(ch)
	m.deadlineOverruns.Collect(ch)
	m.stateTransitions.Collect(ch)
	m.clientState.Collect(ch)
	m.portRegistrations.Collect(ch)
	m.portPeak.Collect(ch)
}

// SetPortPeak records the latest peak for a port. Call from a control goroutine.
func (m *BridgeMetrics) SetPortPeak(client, port string, peak float64) {
	m.portPeak.WithLabelValues(client, port).Set(peak)
}

// ForClient returns a bridge.Observer for one client. Label lookups happen
// here so BlockProcessed only touches atomics.
func (m *BridgeMetrics) ForClient(client string) *ClientObserver {
	return &ClientObserver{
		metrics:  m,
		client:   client,
		blocks:   m.blocksTotal.WithLabelValues(client),
		frames:   m.framesTotal.WithLabelValues(client),
		duration: m.processDuration.WithLabelValues(client),
		overruns: m.deadlineOverruns.WithLabelValues(client),
	}
}

// ClientObserver feeds bridge events for one client into BridgeMetrics
type ClientObserver struct {
	metrics *BridgeMetrics
	client  string

	blocks   prometheus.Counter
	frames   prometheus.Counter
	duration prometheus.Observer
	overruns prometheus.Counter

	sampleRate atomic.Uint32
}

var _ bridge.Observer = (*ClientObserver)(nil)

// SetSampleRate enables deadline overrun counting. Zero disables it.
func (o *ClientObserver) SetSampleRate(rate uint32) {
	o.sampleRate.Store(rate)
}

// BlockProcessed implements bridge.Observer. Runs on the real-time thread.
func (o *ClientObserver) BlockProcessed(frames uint32, elapsed time.Duration) {
	o.blocks.Inc()
	o.frames.Add(float64(frames))
	o.duration.Observe(elapsed.Seconds())

	if rate := o.sampleRate.Load(); rate > 0 {
		budget := time.Duration(frames) * time.Second / time.Duration(rate)
		if elapsed > budget {
			o.overruns.Inc()
		}
	}
}

// StateChanged implements bridge.Observer
func (o *ClientObserver) StateChanged(from, to bridge.State, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	o.metrics.stateTransitions.WithLabelValues(o.client, from.String(), to.String(), status).Inc()
	o.metrics.clientState.WithLabelValues(o.client).Set(float64(to))
}

// PortRegistered implements bridge.Observer
func (o *ClientObserver) PortRegistered(p bridge.Port, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	o.metrics.portRegistrations.WithLabelValues(o.client, p.Direction.String(), status).Inc()
}
