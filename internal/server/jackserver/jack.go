// Package jackserver connects bridge clients to a running JACK audio server
package jackserver

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/xthexder/go-jack"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/logger"
)

// Sentinel errors
var (
	ErrOpen       = errors.NewStd("jack client open failed")
	ErrPort       = errors.NewStd("jack port registration failed")
	ErrCallback   = errors.NewStd("jack process callback rejected")
	ErrActivate   = errors.NewStd("jack activate failed")
	ErrDeactivate = errors.NewStd("jack deactivate failed")
	ErrClose      = errors.NewStd("jack client close failed")
)

// Config configures how clients connect to JACK
type Config struct {
	// NoStartServer stops libjack from launching a server when none is running
	NoStartServer bool
}

// Server opens JACK client connections
type Server struct {
	cfg Config
	log logger.Logger
}

var _ bridge.Server = (*Server)(nil)

// New creates a JACK server adapter. No connection is made until Open.
func New(cfg Config) *Server {
	return &Server{
		cfg: cfg,
		log: logger.Global().Module("server").Module("jack"),
	}
}

// Open implements bridge.Server. The client name is used as is; JACK's
// automatic renaming is disabled so a taken name is an error.
func (s *Server) Open(name string) (bridge.Conn, error) {
	options := jack.UseExactName
	if s.cfg.NoStartServer {
		options |= jack.NoStartServer
	}

	client, status := jack.ClientOpen(name, options)
	if client == nil || status&jack.Failure != 0 {
		if client != nil {
			client.Close()
		}
		return nil, newError(ErrOpen, statusError(status), errors.CategoryConnection).
			Context("client", name).
			Context("status", status).
			Build()
	}

	s.log.Info("connected to jack server",
		logger.String("client", name),
		logger.Uint32("sample_rate", client.GetSampleRate()),
		logger.Uint32("buffer_size", client.GetBufferSize()))

	return &Conn{client: client, name: name, log: s.log}, nil
}

// Conn is one JACK client connection
type Conn struct {
	client *jack.Client
	name   string
	log    logger.Logger

	mu     sync.Mutex
	closed bool
}

var (
	_ bridge.Conn             = (*Conn)(nil)
	_ bridge.ShutdownNotifier = (*Conn)(nil)
	_ bridge.SampleRater      = (*Conn)(nil)
)

// RegisterPort implements bridge.Conn
func (c *Conn) RegisterPort(name string, dir bridge.Direction) (bridge.PortHandle, error) {
	flags := uint64(jack.PortIsInput)
	if dir == bridge.Output {
		flags = uint64(jack.PortIsOutput)
	}

	port := c.client.PortRegister(name, jack.DEFAULT_AUDIO_TYPE, flags, 0)
	if port == nil {
		return nil, newError(ErrPort, nil, errors.CategoryPortRegistration).
			Context("client", c.name).
			Context("port", name).
			Build()
	}
	return &portHandle{port: port, name: c.name + ":" + name}, nil
}

// SetProcessCallback implements bridge.Conn
func (c *Conn) SetProcessCallback(fn func(nframes uint32)) error {
	code := c.client.SetProcessCallback(func(nframes uint32) int {
		fn(nframes)
		return 0
	})
	if code != 0 {
		return newError(ErrCallback, codeError(code), errors.CategoryCallback).
			Context("client", c.name).
			Build()
	}
	return nil
}

// OnShutdown implements bridge.ShutdownNotifier
func (c *Conn) OnShutdown(fn func()) {
	c.client.OnShutdown(func() {
		c.log.Warn("jack server shut down", logger.String("client", c.name))
		fn()
	})
}

// SampleRate implements bridge.SampleRater
func (c *Conn) SampleRate() uint32 {
	return c.client.GetSampleRate()
}

// Activate implements bridge.Conn
func (c *Conn) Activate() error {
	if code := c.client.Activate(); code != 0 {
		return newError(ErrActivate, codeError(code), errors.CategoryConnection).
			Context("client", c.name).
			Build()
	}
	return nil
}

// Deactivate implements bridge.Conn
func (c *Conn) Deactivate() error {
	if code := c.client.Deactivate(); code != 0 {
		return newError(ErrDeactivate, codeError(code), errors.CategoryConnection).
			Context("client", c.name).
			Build()
	}
	return nil
}

// Close implements bridge.Conn. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if code := c.client.Close(); code != 0 {
		return newError(ErrClose, codeError(code), errors.CategoryConnection).
			Context("client", c.name).
			Build()
	}
	return nil
}

type portHandle struct {
	port *jack.Port
	name string
}

func (p *portHandle) Name() string {
	return p.name
}

// Buffer views JACK's port memory as float32 without copying
func (p *portHandle) Buffer(nframes uint32) []float32 {
	return samplesAsFloat32(p.port.GetBuffer(nframes))
}

// samplesAsFloat32 reinterprets a JACK sample slice; AudioSample is a float32
func samplesAsFloat32(buf []jack.AudioSample) []float32 {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(buf))), len(buf))
}

// statusBits names the jack_status_t flags that explain an open failure
var statusBits = []struct {
	bit  int
	name string
}{
	{jack.InvalidOption, "invalid option"},
	{jack.NameNotUnique, "client name not unique"},
	{jack.ServerFailed, "unable to connect to server"},
	{jack.ServerError, "communication error with server"},
	{jack.NoSuchClient, "no such client"},
	{jack.LoadFailure, "unable to load internal client"},
	{jack.InitFailure, "unable to initialize client"},
	{jack.ShmFailure, "unable to access shared memory"},
	{jack.VersionError, "client protocol version mismatch"},
}

// statusError describes a jack_status_t returned by ClientOpen
func statusError(status int) error {
	var reasons []string
	for _, s := range statusBits {
		if status&s.bit != 0 {
			reasons = append(reasons, s.name)
		}
	}
	if len(reasons) == 0 {
		return fmt.Errorf("jack status 0x%x", status)
	}
	return fmt.Errorf("%s (status 0x%x)", strings.Join(reasons, ", "), status)
}

func codeError(code int) error {
	return fmt.Errorf("jack returned %d", code)
}

func newError(sentinel, cause error, category errors.ErrorCategory) *errors.ErrorBuilder {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return errors.New(err).
		Component("server.jack").
		Category(category)
}
