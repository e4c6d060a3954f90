package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/conf"
	"github.com/tphakala/portbridge/internal/routines"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func offlineSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings, err := conf.Defaults()
	require.NoError(t, err)
	settings.Client.Name = "runner-test"
	settings.Server.Backend = conf.BackendOffline
	settings.Server.SampleRate = 48000
	settings.Server.PeriodFrames = 48
	settings.Monitor.Enabled = true
	settings.Monitor.Interval = 5 * time.Millisecond
	return settings
}

func TestRunOfflineUntilCancelled(t *testing.T) {
	settings := offlineSettings(t)
	settings.Metrics.Enabled = true
	settings.Metrics.Textfile = filepath.Join(t.TempDir(), "portbridge.prom")
	settings.Metrics.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	summary, err := Run(ctx, settings)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.NotEmpty(t, summary.SessionID)
	assert.Equal(t, uint32(48000), summary.SampleRate)
	assert.Positive(t, summary.Blocks)

	data, err := os.ReadFile(settings.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bridge_blocks_processed_total{client="runner-test"}`)
	assert.Contains(t, string(data), `bridge_port_peak_amplitude{client="runner-test",port="out_0"}`)
}

func TestRunRejectsUnknownRoutine(t *testing.T) {
	settings := offlineSettings(t)
	settings.Routine.Name = "reverb"

	_, err := Run(t.Context(), settings)
	require.ErrorIs(t, err, routines.ErrUnknownRoutine)
}

func TestRunReportsConstructionFailure(t *testing.T) {
	settings := offlineSettings(t)
	settings.Client.Inputs = 0
	settings.Client.Outputs = 0

	_, err := Run(t.Context(), settings)
	require.ErrorIs(t, err, bridge.ErrInvalidLayout)
}
