package offline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
)

func openConn(t *testing.T, s *Server, name string) *Conn {
	t.Helper()
	bc, err := s.Open(name)
	require.NoError(t, err)
	c, ok := bc.(*Conn)
	require.True(t, ok)
	return c
}

func TestOpenValidatesNames(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	openConn(t, s, "synth")

	tests := []struct {
		name    string
		client  string
		wantErr error
	}{
		{"empty", "", ErrInvalidName},
		{"colon", "a:b", ErrInvalidName},
		{"too long", strings.Repeat("x", MaxClientNameLength+1), ErrInvalidName},
		{"duplicate", "synth", ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Open(tt.client)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := s.Open(strings.Repeat("x", MaxClientNameLength))
	require.NoError(t, err, "a name at the limit is accepted")
	assert.Equal(t, []string{"synth", strings.Repeat("x", MaxClientNameLength)}, s.Clients())
}

func TestRegisterPort(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxBlockFrames: 128})
	c := openConn(t, s, "fx")

	h, err := c.RegisterPort("in_0", bridge.Input)
	require.NoError(t, err)
	assert.Equal(t, "fx:in_0", h.Name())
	assert.Len(t, h.Buffer(32), 32)

	_, err = c.RegisterPort("in_0", bridge.Input)
	require.ErrorIs(t, err, ErrDuplicateName)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	_, err = c.RegisterPort("bad:name", bridge.Output)
	require.ErrorIs(t, err, ErrInvalidName)

	p := c.Port("in_0")
	require.NotNil(t, p)
	assert.Equal(t, bridge.Input, p.Direction())
	assert.Equal(t, "in_0", p.ShortName())
	assert.Len(t, p.Samples(), 128)
}

func TestFaultsFireOnce(t *testing.T) {
	t.Parallel()

	boom := errors.NewStd("boom")
	s := New(Config{})
	s.InjectFaults(Faults{Open: boom})

	_, err := s.Open("a")
	require.ErrorIs(t, err, boom)

	c := openConn(t, s, "a")

	s.InjectFaults(Faults{PortName: "out_1", Port: boom})
	_, err = c.RegisterPort("out_0", bridge.Output)
	require.NoError(t, err, "fault is bound to out_1")
	_, err = c.RegisterPort("out_1", bridge.Output)
	require.ErrorIs(t, err, boom)
	v, ok := errors.ContextValue(err, "port")
	require.True(t, ok)
	assert.Equal(t, "out_1", v)
	_, err = c.RegisterPort("out_2", bridge.Output)
	require.NoError(t, err)

	s.InjectFaults(Faults{Callback: boom})
	require.ErrorIs(t, c.SetProcessCallback(func(uint32) {}), boom)
	require.NoError(t, c.SetProcessCallback(func(uint32) {}))

	s.InjectFaults(Faults{Activate: boom})
	require.ErrorIs(t, c.Activate(), boom)
	require.NoError(t, c.Activate())

	s.InjectFaults(Faults{Deactivate: boom})
	require.ErrorIs(t, c.Deactivate(), boom)
	require.NoError(t, c.Deactivate())
}

func TestCycleDeliversToActiveClients(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxBlockFrames: 256})
	var order []string

	a := openConn(t, s, "a")
	b := openConn(t, s, "b")
	idle := openConn(t, s, "idle")

	require.NoError(t, a.SetProcessCallback(func(n uint32) { order = append(order, "a") }))
	require.NoError(t, b.SetProcessCallback(func(n uint32) { order = append(order, "b") }))
	require.NoError(t, idle.SetProcessCallback(func(n uint32) { order = append(order, "idle") }))
	require.NoError(t, b.Activate())
	require.NoError(t, a.Activate())

	ran, err := s.Cycle(64)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)
	assert.Equal(t, []string{"a", "b"}, order, "clients run in open order")
	assert.Equal(t, uint64(1), a.Cycles())
	assert.Equal(t, uint64(0), idle.Cycles())

	_, err = s.Cycle(257)
	require.ErrorIs(t, err, ErrBlockTooLarge)
}

func TestCycleZeroesOutputs(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxBlockFrames: 16})
	c := openConn(t, s, "z")
	in, err := c.RegisterPort("in_0", bridge.Input)
	require.NoError(t, err)
	out, err := c.RegisterPort("out_0", bridge.Output)
	require.NoError(t, err)

	var seenOut float32 = -1
	require.NoError(t, c.SetProcessCallback(func(n uint32) {
		seenOut = out.Buffer(n)[0]
	}))
	require.NoError(t, c.Activate())

	c.Port("out_0").Samples()[0] = 9
	c.Port("in_0").Samples()[0] = 3

	_, err = s.Cycle(8)
	require.NoError(t, err)
	assert.InDelta(t, 0, seenOut, 0)
	assert.InDelta(t, 3, in.Buffer(8)[0], 0, "inputs are left as written")
}

func TestActivateRequiresCallback(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	c := openConn(t, s, "nocb")
	require.ErrorIs(t, c.Activate(), ErrNoCallback)
}

func TestCloseFreesNameAndStopsDelivery(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	c := openConn(t, s, "x")
	calls := 0
	require.NoError(t, c.SetProcessCallback(func(uint32) { calls++ }))
	require.NoError(t, c.Activate())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
	assert.True(t, c.Closed())

	_, err := s.Cycle(32)
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	require.ErrorIs(t, c.Activate(), ErrClosed)
	_, err = c.RegisterPort("in_0", bridge.Input)
	require.ErrorIs(t, err, ErrClosed)

	openConn(t, s, "x")
}

func TestShutdownNotifiesClients(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	c := openConn(t, s, "victim")
	notified := 0
	c.OnShutdown(func() { notified++ })
	require.NoError(t, c.SetProcessCallback(func(uint32) {}))
	require.NoError(t, c.Activate())

	s.Shutdown()

	assert.Equal(t, 1, notified)
	assert.False(t, c.Active())
	_, err := s.Open("late")
	require.ErrorIs(t, err, ErrShutdown)
	_, err = s.Cycle(16)
	require.ErrorIs(t, err, ErrShutdown)
	require.NoError(t, c.Close())
}

func TestRunDrivesCycles(t *testing.T) {
	t.Parallel()

	s := New(Config{SampleRate: 48000, MaxBlockFrames: 64})
	c := openConn(t, s, "clocked")
	_, err := c.RegisterPort("out_0", bridge.Output)
	require.NoError(t, err)

	ticks := make(chan uint32, 16)
	require.NoError(t, c.SetProcessCallback(func(n uint32) {
		select {
		case ticks <- n:
		default:
		}
	}))
	require.NoError(t, c.Activate())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 48) }()

	assert.Equal(t, uint32(48), <-ticks)
	assert.Equal(t, uint32(48), <-ticks)
	cancel()
	require.NoError(t, <-done)
}

func TestRunStopsOnShutdown(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	assert.Equal(t, time.Millisecond, s.PeriodDuration(48))

	s.Shutdown()
	err := s.Run(t.Context(), 48)
	require.ErrorIs(t, err, ErrShutdown)
}
