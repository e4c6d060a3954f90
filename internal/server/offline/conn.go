package offline

import (
	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/logger"
)

// Conn is one client connection on an offline Server
type Conn struct {
	srv  *Server
	name string

	// guarded by srv.mu
	ports      []*Port
	byName     map[string]*Port
	callback   func(nframes uint32)
	onShutdown func()
	active     bool
	closed     bool
	cycles     uint64
}

var _ bridge.Conn = (*Conn)(nil)

// Name returns the client name
func (c *Conn) Name() string {
	return c.name
}

// RegisterPort implements bridge.Conn
func (c *Conn) RegisterPort(name string, dir bridge.Direction) (bridge.PortHandle, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return nil, c.closedErr("register_port")
	}
	if s.faults.Port != nil && (s.faults.PortName == "" || s.faults.PortName == name) {
		err := takeFault(&s.faults.Port)
		s.faults.PortName = ""
		return nil, newError(err, nil, errors.CategoryPortRegistration).
			Context("client", c.name).
			Context("port", name).
			Build()
	}
	if err := validateName(name, MaxPortNameLength-len(c.name)-1); err != nil {
		return nil, newError(ErrInvalidName, err, errors.CategoryValidation).Context("port", name).Build()
	}
	if _, exists := c.byName[name]; exists {
		return nil, newError(ErrDuplicateName, nil, errors.CategoryConflict).Context("port", name).Build()
	}

	p := &Port{
		short: name,
		full:  c.name + ":" + name,
		dir:   dir,
		buf:   make([]float32, s.cfg.MaxBlockFrames),
	}
	c.ports = append(c.ports, p)
	c.byName[name] = p
	s.log.Debug("port registered", logger.String("port", p.full), logger.String("direction", dir.String()))

	return p, nil
}

// SetProcessCallback implements bridge.Conn
func (c *Conn) SetProcessCallback(fn func(nframes uint32)) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return c.closedErr("set_process_callback")
	}
	if err := takeFault(&s.faults.Callback); err != nil {
		return newError(err, nil, errors.CategoryCallback).Context("client", c.name).Build()
	}
	if c.active {
		return newError(errors.NewStd("callback change while active"), nil, errors.CategoryState).
			Context("client", c.name).
			Build()
	}
	c.callback = fn
	return nil
}

// OnShutdown implements bridge.ShutdownNotifier
func (c *Conn) OnShutdown(fn func()) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.onShutdown = fn
}

// SampleRate implements bridge.SampleRater
func (c *Conn) SampleRate() uint32 {
	return c.srv.cfg.SampleRate
}

// Activate implements bridge.Conn
func (c *Conn) Activate() error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return c.closedErr("activate")
	}
	if s.shutdown {
		return newError(ErrShutdown, nil, errors.CategoryConnection).Context("client", c.name).Build()
	}
	if err := takeFault(&s.faults.Activate); err != nil {
		return newError(err, nil, errors.CategoryState).Context("client", c.name).Build()
	}
	if c.callback == nil {
		return newError(ErrNoCallback, nil, errors.CategoryCallback).Context("client", c.name).Build()
	}
	c.active = true
	return nil
}

// Deactivate implements bridge.Conn. It waits for a running Cycle to finish.
func (c *Conn) Deactivate() error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return c.closedErr("deactivate")
	}
	if err := takeFault(&s.faults.Deactivate); err != nil {
		return newError(err, nil, errors.CategoryState).Context("client", c.name).Build()
	}
	c.active = false
	return nil
}

// Close implements bridge.Conn. Ports are dropped and the name becomes free.
func (c *Conn) Close() error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.active = false
	c.callback = nil
	c.onShutdown = nil
	c.ports = nil
	c.byName = nil
	s.removeLocked(c)
	s.log.Debug("client closed", logger.String("client", c.name))
	return nil
}

// Active reports whether the connection receives blocks
func (c *Conn) Active() bool {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.active
}

// Closed reports whether Close has been called
func (c *Conn) Closed() bool {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.closed
}

// Cycles returns the number of blocks delivered to this connection
func (c *Conn) Cycles() uint64 {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.cycles
}

// Port returns the registered port with the given short name, or nil
func (c *Conn) Port(name string) *Port {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.byName[name]
}

// PortNames returns the short names of registered ports in registration order
func (c *Conn) PortNames() []string {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	names := make([]string, len(c.ports))
	for i, p := range c.ports {
		names[i] = p.short
	}
	return names
}

func (c *Conn) closedErr(op string) error {
	return newError(ErrClosed, nil, errors.CategoryState).
		Context("client", c.name).
		Context("operation", op).
		Build()
}

// Port is a registered port with storage for the largest block
type Port struct {
	short string
	full  string
	dir   bridge.Direction
	buf   []float32
}

var _ bridge.PortHandle = (*Port)(nil)

// Name returns the full "client:port" name
func (p *Port) Name() string {
	return p.full
}

// ShortName returns the port name without the client prefix
func (p *Port) ShortName() string {
	return p.short
}

// Direction returns the port direction
func (p *Port) Direction() bridge.Direction {
	return p.dir
}

// Buffer implements bridge.PortHandle
func (p *Port) Buffer(nframes uint32) []float32 {
	return p.buf[:nframes]
}

// Samples returns the port's whole storage. Callers write input samples here
// before Cycle and read output samples after it.
func (p *Port) Samples() []float32 {
	return p.buf
}
