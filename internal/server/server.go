// Package server builds the configured audio server backend
package server

import (
	"context"
	"fmt"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/conf"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/server/jackserver"
	"github.com/tphakala/portbridge/internal/server/malgoserver"
	"github.com/tphakala/portbridge/internal/server/offline"
)

// ErrUnknownBackend is returned for a backend name New does not know
var ErrUnknownBackend = errors.NewStd("unknown server backend")

// Backend is a configured audio server
type Backend struct {
	Name   string
	Server bridge.Server

	// Clock drives block delivery for servers without their own real-time
	// thread. It is nil for jack and malgo.
	Clock func(ctx context.Context) error
}

// New returns the backend selected by settings
func New(settings *conf.ServerSettings) (*Backend, error) {
	switch settings.Backend {
	case conf.BackendJack:
		return &Backend{
			Name:   settings.Backend,
			Server: jackserver.New(jackserver.Config{NoStartServer: settings.NoStartServer}),
		}, nil

	case conf.BackendMalgo:
		return &Backend{
			Name: settings.Backend,
			Server: malgoserver.New(malgoserver.Config{
				Device:         settings.Device,
				SampleRate:     uint32(settings.SampleRate),
				PeriodFrames:   uint32(settings.PeriodFrames),
				MaxBlockFrames: settings.MaxBlockFrames,
			}),
		}, nil

	case conf.BackendOffline:
		srv := offline.New(offline.Config{
			SampleRate:     uint32(settings.SampleRate),
			MaxBlockFrames: settings.MaxBlockFrames,
		})
		period := uint32(settings.PeriodFrames)
		return &Backend{
			Name:   settings.Backend,
			Server: srv,
			Clock: func(ctx context.Context) error {
				return srv.Run(ctx, period)
			},
		}, nil

	default:
		return nil, errors.New(fmt.Errorf("%w: %q", ErrUnknownBackend, settings.Backend)).
			Component("server").
			Category(errors.CategoryConfiguration).
			Context("backend", settings.Backend).
			Build()
	}
}
