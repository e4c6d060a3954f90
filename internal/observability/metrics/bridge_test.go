package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/server/offline"
)

func newTestMetrics(t *testing.T) (*BridgeMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m, err := NewBridgeMetrics(registry)
	require.NoError(t, err)
	return m, registry
}

func histogramCount(t *testing.T, registry *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
		var total uint64
		for _, metric := range mf.GetMetric() {
			total += metric.GetHistogram().GetSampleCount()
		}
		return total
	}
	return 0
}

func TestBlockProcessed(t *testing.T) {
	m, registry := newTestMetrics(t)
	obs := m.ForClient("synth")

	obs.BlockProcessed(256, 100*time.Microsecond)
	obs.BlockProcessed(128, 50*time.Microsecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.blocksTotal.WithLabelValues("synth")), 0)
	assert.InDelta(t, 384, testutil.ToFloat64(m.framesTotal.WithLabelValues("synth")), 0)
	assert.Equal(t, uint64(2), histogramCount(t, registry, "bridge_process_duration_seconds"))
	assert.InDelta(t, 0, testutil.ToFloat64(m.deadlineOverruns.WithLabelValues("synth")), 0, "no rate, no overrun accounting")
}

func TestDeadlineOverruns(t *testing.T) {
	m, _ := newTestMetrics(t)
	obs := m.ForClient("slow")
	obs.SetSampleRate(48000)

	// 480 frames at 48 kHz is a 10ms budget
	obs.BlockProcessed(480, 9*time.Millisecond)
	obs.BlockProcessed(480, 11*time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.deadlineOverruns.WithLabelValues("slow")), 0)
}

func TestBlockProcessedDoesNotAllocate(t *testing.T) {
	m, _ := newTestMetrics(t)
	obs := m.ForClient("rt")
	obs.SetSampleRate(48000)

	allocs := testing.AllocsPerRun(100, func() {
		obs.BlockProcessed(256, 20*time.Microsecond)
	})
	assert.Zero(t, allocs)
}

func TestObserverWithBridgeClient(t *testing.T) {
	m, _ := newTestMetrics(t)
	srv := offline.New(offline.Config{})
	obs := m.ForClient("wired")

	c, err := bridge.New(srv, "wired", bridge.Layout{Inputs: 1, Outputs: 2}, func(bridge.Context) {}, bridge.WithObserver(obs))
	require.NoError(t, err)
	require.True(t, c.Start())

	_, err = srv.Cycle(64)
	require.NoError(t, err)
	require.True(t, c.Stop())
	require.NoError(t, c.Close())

	assert.InDelta(t, 1, testutil.ToFloat64(m.portRegistrations.WithLabelValues("wired", "input", StatusSuccess)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.portRegistrations.WithLabelValues("wired", "output", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.blocksTotal.WithLabelValues("wired")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stateTransitions.WithLabelValues("wired", "constructed", "activated", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stateTransitions.WithLabelValues("wired", "deactivated", "closed", StatusSuccess)), 0)
	assert.InDelta(t, float64(bridge.StateClosed), testutil.ToFloat64(m.clientState.WithLabelValues("wired")), 0)
}

func TestFailedTransitionIsLabelled(t *testing.T) {
	m, _ := newTestMetrics(t)
	srv := offline.New(offline.Config{})
	obs := m.ForClient("flaky")

	c, err := bridge.New(srv, "flaky", bridge.Layout{Outputs: 1}, func(bridge.Context) {}, bridge.WithObserver(obs))
	require.NoError(t, err)
	srv.InjectFaults(offline.Faults{Activate: errors.NewStd("rejected")})
	require.False(t, c.Start())

	assert.InDelta(t, 1, testutil.ToFloat64(m.stateTransitions.WithLabelValues("flaky", "constructed", "closed", StatusError)), 0)
}

func TestSetPortPeak(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.SetPortPeak("meter", "in_0", 0.75)
	m.SetPortPeak("meter", "in_0", 0.25)

	assert.InDelta(t, 0.25, testutil.ToFloat64(m.portPeak.WithLabelValues("meter", "in_0")), 1e-9)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewBridgeMetrics(registry)
	require.NoError(t, err)

	_, err = NewBridgeMetrics(registry)
	require.Error(t, err)
}
