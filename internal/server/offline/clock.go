package offline

import (
	"context"
	"time"

	"github.com/tphakala/portbridge/internal/logger"
)

// PeriodDuration returns the wall-clock length of a period at the server's sample rate
func (s *Server) PeriodDuration(period uint32) time.Duration {
	return time.Duration(period) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Run calls Cycle with period frames once per period of wall-clock time
// until ctx is done or the server is shut down. It stands in for a sound
// card clock when no real server is available.
func (s *Server) Run(ctx context.Context, period uint32) error {
	ticker := time.NewTicker(s.PeriodDuration(period))
	defer ticker.Stop()

	s.log.Info("offline clock started",
		logger.Uint32("period_frames", period),
		logger.Uint32("sample_rate", s.cfg.SampleRate))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Cycle(period); err != nil {
				return err
			}
		}
	}
}
