// Package offline provides a deterministic in-process audio server.
//
// Blocks are delivered only when the owner calls Cycle, on the caller's
// goroutine, to every active client in the order the clients were opened.
// It backs the bridge tests and the render command.
package offline

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/logger"
)

// Name limits follow JACK's so tests catch names a real server would reject
const (
	MaxClientNameLength = 63
	MaxPortNameLength   = 255

	DefaultSampleRate     = 48000
	DefaultMaxBlockFrames = 4096
)

// Sentinel errors
var (
	ErrDuplicateName = errors.NewStd("name already in use")
	ErrInvalidName   = errors.NewStd("invalid name")
	ErrClosed        = errors.NewStd("connection closed")
	ErrBlockTooLarge = errors.NewStd("block exceeds max block frames")
	ErrNoCallback    = errors.NewStd("no process callback installed")
	ErrShutdown      = errors.NewStd("server is shut down")
)

// Config configures an offline server
type Config struct {
	SampleRate     uint32
	MaxBlockFrames int
}

// Faults makes the next matching server call fail with the given error.
// Each fault fires once and is then cleared.
type Faults struct {
	Open       error
	PortName   string // short port name, e.g. "out_1"
	Port       error
	Callback   error
	Activate   error
	Deactivate error
}

// Server is an in-process audio server. It is safe for concurrent use.
type Server struct {
	cfg Config
	log logger.Logger

	mu       sync.Mutex
	conns    []*Conn
	faults   Faults
	shutdown bool
}

// New creates an offline server
func New(cfg Config) *Server {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.MaxBlockFrames <= 0 {
		cfg.MaxBlockFrames = DefaultMaxBlockFrames
	}
	return &Server{
		cfg: cfg,
		log: logger.Global().Module("server").Module("offline"),
	}
}

// InjectFaults arms one-shot failures for subsequent calls
func (s *Server) InjectFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// SampleRate returns the configured sample rate
func (s *Server) SampleRate() uint32 {
	return s.cfg.SampleRate
}

// MaxBlockFrames returns the largest block Cycle accepts
func (s *Server) MaxBlockFrames() int {
	return s.cfg.MaxBlockFrames
}

// Open implements bridge.Server
func (s *Server) Open(name string) (bridge.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil, newError(ErrShutdown, nil, errors.CategoryConnection).Context("client", name).Build()
	}
	if err := takeFault(&s.faults.Open); err != nil {
		return nil, newError(err, nil, errors.CategoryConnection).Context("client", name).Build()
	}
	if err := validateName(name, MaxClientNameLength); err != nil {
		return nil, newError(ErrInvalidName, err, errors.CategoryValidation).Context("client", name).Build()
	}
	if s.connLocked(name) != nil {
		return nil, newError(ErrDuplicateName, nil, errors.CategoryConflict).Context("client", name).Build()
	}

	c := &Conn{
		srv:    s,
		name:   name,
		byName: make(map[string]*Port),
	}
	s.conns = append(s.conns, c)
	s.log.Debug("client opened", logger.String("client", name))

	return c, nil
}

// Conn returns the open connection with the given name, or nil
func (s *Server) Conn(name string) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connLocked(name)
}

func (s *Server) connLocked(name string) *Conn {
	for _, c := range s.conns {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Clients returns the names of open connections in open order
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.conns))
	for i, c := range s.conns {
		names[i] = c.name
	}
	return names
}

// Cycle delivers one block of nframes to every active client and returns the
// number of clients that ran. Output buffers are zeroed before each client
// runs; input buffers keep whatever the caller wrote.
func (s *Server) Cycle(nframes uint32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return 0, newError(ErrShutdown, nil, errors.CategoryConnection).Build()
	}
	if int(nframes) > s.cfg.MaxBlockFrames {
		return 0, newError(ErrBlockTooLarge, nil, errors.CategoryLimit).
			Context("nframes", nframes).
			Context("max_block_frames", s.cfg.MaxBlockFrames).
			Build()
	}

	ran := 0
	for _, c := range s.conns {
		if !c.active {
			continue
		}
		for _, p := range c.ports {
			if p.dir == bridge.Output {
				clear(p.buf[:nframes])
			}
		}
		c.callback(nframes)
		c.cycles++
		ran++
	}
	return ran, nil
}

// Shutdown simulates the server going away: every client's shutdown
// callback runs, all clients stop receiving blocks and later Opens fail.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	var notify []func()
	for _, c := range s.conns {
		c.active = false
		if c.onShutdown != nil {
			notify = append(notify, c.onShutdown)
		}
	}
	s.mu.Unlock()

	// callbacks run without the lock, as a real server calls them from its own thread
	for _, fn := range notify {
		fn()
	}
}

func (s *Server) removeLocked(c *Conn) {
	s.conns = slices.DeleteFunc(s.conns, func(x *Conn) bool { return x == c })
}

// takeFault returns and clears an armed fault
func takeFault(slot *error) error {
	err := *slot
	*slot = nil
	return err
}

func validateName(name string, maxLen int) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case len(name) > maxLen:
		return fmt.Errorf("name longer than %d bytes", maxLen)
	case strings.ContainsRune(name, ':'):
		return fmt.Errorf("name contains ':'")
	}
	return nil
}

func newError(sentinel, cause error, category errors.ErrorCategory) *errors.ErrorBuilder {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return errors.New(err).
		Component("server.offline").
		Category(category)
}
