// Package runner runs a configured bridge client until it is cancelled or
// its server goes away.
package runner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/conf"
	"github.com/tphakala/portbridge/internal/logger"
	"github.com/tphakala/portbridge/internal/observability"
	"github.com/tphakala/portbridge/internal/observability/metrics"
	"github.com/tphakala/portbridge/internal/routines"
	"github.com/tphakala/portbridge/internal/server"
)

// Summary describes a finished run
type Summary struct {
	SessionID  string
	SampleRate uint32
	Blocks     uint64
	Elapsed    time.Duration
}

func getLogger() logger.Logger {
	return logger.Global().Module("runner")
}

// Run connects the client described by settings, activates it and blocks
// until ctx is done or the server shuts the client down. The client is
// always closed before Run returns.
func Run(ctx context.Context, settings *conf.Settings) (*Summary, error) {
	log := getLogger()
	start := time.Now()

	routine, err := routines.ByName(settings.Routine.Name)
	if err != nil {
		return nil, err
	}
	backend, err := server.New(&settings.Server)
	if err != nil {
		return nil, err
	}

	layout := bridge.Layout{Inputs: settings.Client.Inputs, Outputs: settings.Client.Outputs}
	peaks := routines.NewPeakMonitor(layout, routine)

	var (
		opts     []bridge.Option
		m        *observability.Metrics
		observer *metrics.ClientObserver
	)
	if settings.Metrics.Enabled {
		m, err = observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		observer = m.Bridge.ForClient(settings.Client.Name)
		opts = append(opts, bridge.WithObserver(observer))
	}

	client, err := bridge.New(backend.Server, settings.Client.Name, layout, peaks.Process, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("client close failed", logger.Error(err))
		}
	}()

	if observer != nil {
		observer.SetSampleRate(client.SampleRate())
	}

	if !client.Start() {
		return nil, client.Err()
	}

	log.Info("bridge client running",
		logger.String("client", client.Name()),
		logger.String("session_id", client.SessionID()),
		logger.String("backend", backend.Name),
		logger.String("layout", layout.String()),
		logger.String("routine", settings.Routine.Name),
		logger.Uint32("sample_rate", client.SampleRate()))

	g, gctx := errgroup.WithContext(ctx)

	if backend.Clock != nil {
		g.Go(func() error { return backend.Clock(gctx) })
	}
	if settings.Monitor.Enabled {
		g.Go(func() error {
			monitorPeaks(gctx, client.Name(), peaks, m, settings.Monitor.Interval)
			return nil
		})
	}
	if m != nil && settings.Metrics.Textfile != "" {
		exporter := observability.NewTextfileExporter(m, settings.Metrics.Textfile, settings.Metrics.Interval)
		g.Go(func() error { return exporter.Run(gctx) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-client.Done():
			return client.Err()
		}
	})

	runErr := g.Wait()
	if !client.Stop() && runErr == nil && ctx.Err() == nil {
		runErr = client.Err()
	}

	summary := &Summary{
		SessionID:  client.SessionID(),
		SampleRate: client.SampleRate(),
		Blocks:     client.Blocks(),
		Elapsed:    time.Since(start),
	}
	log.Info("bridge client stopped",
		logger.Uint64("blocks", summary.Blocks),
		logger.Duration("elapsed", summary.Elapsed),
		logger.Error(runErr))

	return summary, runErr
}

// monitorPeaks logs and exports per-port peak levels every interval
func monitorPeaks(ctx context.Context, client string, peaks *routines.PeakMonitor, m *observability.Metrics, interval time.Duration) {
	log := getLogger().With(logger.String("client", client))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range peaks.Snapshot() {
				log.Debug("port peak",
					logger.String("port", p.Port),
					logger.Float32("peak", p.Peak))
				if m != nil {
					m.Bridge.SetPortPeak(client, p.Port, float64(p.Peak))
				}
			}
		}
	}
}
