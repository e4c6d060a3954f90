package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/portbridge/internal/logger"
)

// Client is one connection to an audio server with a fixed port layout and
// an installed processing routine.
//
// Control methods are safe for concurrent use. The process path never takes
// the control mutex.
type Client struct {
	name      string
	sessionID string
	layout    Layout

	// written during New only, read by the process path
	fn       ProcessFunc
	inputs   []Port
	outputs  []Port
	inViews  []InputBuffer
	outViews [][]float32
	observer Observer

	log logger.Logger

	mu    sync.Mutex
	conn  Conn
	state State
	err   error

	sampleRate uint32
	blocks     atomic.Uint64
	shutdown   atomic.Bool
	done       chan struct{}
	doneOnce   sync.Once
}

// New opens a connection on srv named name, registers layout.Inputs input
// ports then layout.Outputs output ports, and installs fn as the block
// routine. The client is left in StateConstructed; call Start or Activate.
//
// On error the returned client is non-nil and inert: its state is Closed,
// Err reports the failure and Start returns false. Any connection opened
// before the failure has been released.
func New(srv Server, name string, layout Layout, fn ProcessFunc, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().Module("bridge")
	}

	c := &Client{
		name:      name,
		sessionID: uuid.NewString(),
		layout:    layout,
		fn:        fn,
		observer:  o.observer,
		state:     StateClosed,
		done:      make(chan struct{}),
	}
	c.log = o.log.With(logger.String("client", name), logger.String("session", c.sessionID))

	if err := layout.Validate(); err != nil {
		return c.fail(err)
	}
	if fn == nil {
		return c.fail(newError(ErrNilProcess, nil, categoryValidation).Build())
	}
	if srv == nil {
		return c.fail(newError(ErrOpenFailed, errNoServer, categoryConnection).
			Context("client", name).
			Build())
	}

	conn, err := srv.Open(name)
	if err != nil {
		return c.fail(newError(ErrOpenFailed, err, categoryConnection).
			Context("client", name).
			Build())
	}
	c.conn = conn

	c.inputs, c.outputs, err = registerPorts(conn, layout, c.reportPort)
	if err != nil {
		return c.fail(err)
	}

	c.inViews = make([]InputBuffer, len(c.inputs))
	c.outViews = make([][]float32, len(c.outputs))

	if sr, ok := conn.(SampleRater); ok {
		c.sampleRate = sr.SampleRate()
	}
	if sn, ok := conn.(ShutdownNotifier); ok {
		sn.OnShutdown(c.onShutdown)
	}

	if err := conn.SetProcessCallback(c.process); err != nil {
		return c.fail(newError(ErrCallbackInstall, err, categoryCallback).
			Context("client", name).
			Build())
	}

	c.state = StateConstructed
	c.log.Info("client opened",
		logger.Int("inputs", layout.Inputs),
		logger.Int("outputs", layout.Outputs),
		logger.Uint32("sample_rate", c.sampleRate))

	return c, nil
}

// fail releases any open connection and leaves the client inert
func (c *Client) fail(err error) (*Client, error) {
	c.log.Error("client construction failed", logger.Error(err))
	if c.conn != nil {
		if closeErr := c.conn.Close(); closeErr != nil {
			c.log.Warn("failed to release connection", logger.Error(closeErr))
		}
		c.conn = nil
	}
	c.state = StateClosed
	c.err = err
	c.markDone()
	return c, err
}

func (c *Client) reportPort(p Port, err error) {
	if err != nil {
		c.log.Error("port registration failed", logger.String("port", p.Name), logger.Error(err))
	} else {
		c.log.Debug("port registered", logger.String("port", p.Name))
	}
	if c.observer != nil {
		c.observer.PortRegistered(p, err)
	}
}

// Start activates the client and reports success. It never panics.
func (c *Client) Start() bool {
	return c.Activate() == nil
}

// Stop deactivates the client and reports success. It never panics.
func (c *Client) Stop() bool {
	return c.Deactivate() == nil
}

// Activate asks the server to start block delivery. It is a no-op in
// StateActivated while the server is up. If the server rejects the request
// or has shut down, the connection is released and the client becomes Closed.
func (c *Client) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return c.closedErrLocked()
	}

	if c.shutdown.Load() {
		built := newError(ErrServerShutdown, nil, categoryConnection).
			Context("client", c.name).
			Context("operation", "activate").
			Build()
		c.releaseLocked(built)
		return built
	}

	if c.state == StateActivated {
		return nil
	}

	start := time.Now()
	if err := c.conn.Activate(); err != nil {
		built := newError(ErrActivate, err, categoryState).
			Context("client", c.name).
			Timing("activate", time.Since(start)).
			Build()
		c.releaseLocked(built)
		return built
	}

	c.transitionLocked(StateActivated, nil)
	return nil
}

// Deactivate asks the server to stop block delivery. It is a no-op in
// StateConstructed and StateDeactivated. If the server rejects the request
// the connection is released and the client becomes Closed.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConstructed, StateDeactivated:
		return nil
	case StateClosed:
		return c.closedErrLocked()
	}

	start := time.Now()
	if err := c.conn.Deactivate(); err != nil {
		built := newError(ErrDeactivate, err, categoryState).
			Context("client", c.name).
			Timing("deactivate", time.Since(start)).
			Build()
		c.releaseLocked(built)
		return built
	}

	c.transitionLocked(StateDeactivated, nil)
	return nil
}

// Close releases the connection and all ports. It is idempotent; only the
// first call reaches the server.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.state = StateClosed
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.transitionLocked(StateClosed, nil)
	c.markDone()

	if err != nil {
		return newError(ErrClosed, err, categoryConnection).
			Context("client", c.name).
			Context("operation", "close").
			Build()
	}
	return nil
}

// releaseLocked closes the connection after a failed transition
func (c *Client) releaseLocked(cause error) {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Warn("failed to release connection", logger.Error(err))
		}
		c.conn = nil
	}
	c.err = cause
	c.transitionLocked(StateClosed, cause)
	c.markDone()
}

func (c *Client) transitionLocked(to State, err error) {
	from := c.state
	c.state = to
	if err != nil {
		c.log.Error("client state change failed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
			logger.Error(err))
	} else {
		c.log.Info("client state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}
	if c.observer != nil {
		c.observer.StateChanged(from, to, err)
	}
}

func (c *Client) closedErrLocked() error {
	if c.err != nil {
		return c.err
	}
	return newError(ErrClosed, nil, categoryState).
		Context("client", c.name).
		Build()
}

// onShutdown runs on a server thread when the server disappears
func (c *Client) onShutdown() {
	if c.shutdown.Swap(true) {
		return
	}
	c.log.Warn("audio server shut down the client")
	c.markDone()
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Done is closed when the client becomes unusable: closed, failed, or shut down by the server
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that made the client inert, or ErrServerShutdown
// after a server shutdown, or nil
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && c.shutdown.Load() {
		return newError(ErrServerShutdown, nil, categoryConnection).
			Context("client", c.name).
			Build()
	}
	return c.err
}

// Name returns the client name passed to New
func (c *Client) Name() string {
	return c.name
}

// SessionID returns the random identifier used to correlate log lines
func (c *Client) SessionID() string {
	return c.sessionID
}

// Layout returns the port layout passed to New
func (c *Client) Layout() Layout {
	return c.layout
}

// Ports returns a copy of the registered ports, inputs first
func (c *Client) Ports() []Port {
	ports := make([]Port, 0, len(c.inputs)+len(c.outputs))
	ports = append(ports, c.inputs...)
	return append(ports, c.outputs...)
}

// SampleRate returns the server sample rate, or 0 if the server does not report one
func (c *Client) SampleRate() uint32 {
	return c.sampleRate
}

// Blocks returns the number of blocks processed so far
func (c *Client) Blocks() uint64 {
	return c.blocks.Load()
}
