// Package routines holds ready-made bridge processing routines used by the
// command line tools. All of them follow the real-time rules of the bridge.
package routines

import (
	"fmt"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/conf"
	"github.com/tphakala/portbridge/internal/errors"
)

// ErrUnknownRoutine is returned by ByName for names without a routine
var ErrUnknownRoutine = errors.NewStd("unknown routine")

// Passthrough copies input i to output i. Outputs without a matching input
// are silenced.
func Passthrough(ctx bridge.Context) {
	for i := range ctx.NumOutputs() {
		out := ctx.Out(i)
		if i < ctx.NumInputs() {
			ctx.In(i).CopyTo(out)
			continue
		}
		clear(out)
	}
}

// Silence writes zeros to every output
func Silence(ctx bridge.Context) {
	for i := range ctx.NumOutputs() {
		clear(ctx.Out(i))
	}
}

// ByName returns the routine configured under name
func ByName(name string) (bridge.ProcessFunc, error) {
	switch name {
	case conf.RoutinePassthrough:
		return Passthrough, nil
	case conf.RoutineSilence:
		return Silence, nil
	default:
		return nil, errors.New(fmt.Errorf("%w: %q", ErrUnknownRoutine, name)).
			Component("routines").
			Category(errors.CategoryConfiguration).
			Context("routine", name).
			Build()
	}
}
