package bridge

import (
	"fmt"

	"github.com/tphakala/portbridge/internal/errors"
)

const componentBridge = "bridge"

// Sentinel errors. Returned errors are *errors.EnhancedError values that wrap
// one of these, test with errors.Is.
var (
	ErrInvalidLayout    = errors.NewStd("invalid port layout")
	ErrNilProcess       = errors.NewStd("process routine is nil")
	ErrOpenFailed       = errors.NewStd("failed to open server connection")
	ErrPortRegistration = errors.NewStd("failed to register port")
	ErrCallbackInstall  = errors.NewStd("failed to install process callback")
	ErrActivate         = errors.NewStd("failed to activate client")
	ErrDeactivate       = errors.NewStd("failed to deactivate client")
	ErrClosed           = errors.NewStd("client is closed")
	ErrServerShutdown   = errors.NewStd("audio server shut down")
)

var (
	errNoServer = errors.NewStd("no server")
	errNoPorts  = errors.NewStd("no ports")
	errNoHandle = errors.NewStd("server returned no port handle")
)

const (
	categoryValidation       = errors.CategoryValidation
	categoryConnection       = errors.CategoryConnection
	categoryPortRegistration = errors.CategoryPortRegistration
	categoryCallback         = errors.CategoryCallback
	categoryState            = errors.CategoryState
)

// newError starts a bridge error wrapping sentinel and, when non-nil, cause
func newError(sentinel, cause error, category errors.ErrorCategory) *errors.ErrorBuilder {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return errors.New(err).
		Component(componentBridge).
		Category(category)
}
