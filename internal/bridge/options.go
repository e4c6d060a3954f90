package bridge

import (
	"time"

	"github.com/tphakala/portbridge/internal/logger"
)

// Observer receives client events. BlockProcessed runs on the real-time
// thread and must not block, allocate or lock.
type Observer interface {
	BlockProcessed(frames uint32, elapsed time.Duration)
	StateChanged(from, to State, err error)
	PortRegistered(p Port, err error)
}

// Option configures a Client
type Option func(*options)

type options struct {
	observer Observer
	log      logger.Logger
}

// WithObserver installs an Observer, e.g. the prometheus metrics collector
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

// WithLogger replaces the default "bridge" module logger
func WithLogger(l logger.Logger) Option {
	return func(opts *options) {
		if l != nil {
			opts.log = l
		}
	}
}
