package jackserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xthexder/go-jack"

	"github.com/tphakala/portbridge/internal/errors"
)

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := statusError(jack.Failure | jack.ServerFailed)
	assert.Contains(t, err.Error(), "unable to connect to server")

	err = statusError(jack.Failure | jack.NameNotUnique)
	assert.Contains(t, err.Error(), "client name not unique")

	err = statusError(jack.Failure)
	assert.Contains(t, err.Error(), "jack status")
}

func TestSamplesAsFloat32SharesMemory(t *testing.T) {
	t.Parallel()

	buf := []jack.AudioSample{0.5, -0.25, 1}
	view := samplesAsFloat32(buf)
	assert.Equal(t, []float32{0.5, -0.25, 1}, view)

	view[1] = 0.75
	assert.InDelta(t, 0.75, float32(buf[1]), 0)

	assert.Nil(t, samplesAsFloat32(nil))
}

func TestNewErrorWrapsSentinel(t *testing.T) {
	t.Parallel()

	err := newError(ErrOpen, statusError(jack.Failure), errors.CategoryConnection).Build()
	assert.ErrorIs(t, err, ErrOpen)
	assert.True(t, errors.IsCategory(err, errors.CategoryConnection))
}
