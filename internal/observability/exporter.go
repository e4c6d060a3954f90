package observability

import (
	"context"
	"time"

	"github.com/tphakala/portbridge/internal/logger"
)

// TextfileExporter periodically writes metrics to a file
type TextfileExporter struct {
	metrics  *Metrics
	path     string
	interval time.Duration
}

// NewTextfileExporter creates an exporter writing to path every interval
func NewTextfileExporter(m *Metrics, path string, interval time.Duration) *TextfileExporter {
	return &TextfileExporter{
		metrics:  m,
		path:     path,
		interval: interval,
	}
}

// Run writes the textfile every interval until ctx is cancelled, then writes
// once more so the final counters are kept. Write failures are logged, not fatal.
func (e *TextfileExporter) Run(ctx context.Context) error {
	log := getLogger()
	log.Info("metrics textfile exporter started",
		logger.String("path", e.path),
		logger.Duration("interval", e.interval))

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := e.metrics.WriteTextfile(e.path); err != nil {
				log.Warn("final metrics write failed", logger.Error(err))
			}
			return nil
		case <-ticker.C:
			if err := e.metrics.WriteTextfile(e.path); err != nil {
				log.Warn("metrics write failed", logger.Error(err))
			}
		}
	}
}
