package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriteTextfile(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	obs := m.Bridge.ForClient("tf")
	obs.BlockProcessed(64, time.Microsecond)

	path := filepath.Join(t.TempDir(), "portbridge.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bridge_blocks_processed_total{client="tf"} 1`)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestWriteTextfileBadDirectory(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	err = m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	require.Error(t, err)
}

func TestTextfileExporterWritesOnShutdown(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "exporter.prom")
	exporter := NewTextfileExporter(m, path, time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- exporter.Run(ctx) }()

	m.Bridge.ForClient("late").BlockProcessed(32, time.Microsecond)
	cancel()
	require.NoError(t, <-done)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bridge_frames_processed_total{client="late"} 32`)
}
