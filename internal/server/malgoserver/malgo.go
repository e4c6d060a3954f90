// Package malgoserver runs bridge clients directly on a soundcard through
// miniaudio. Each connection owns one device: capture for input ports,
// playback for output ports, duplex when it has both.
package malgoserver

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/portbridge/internal/bridge"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/logger"
)

// Defaults applied by New
const (
	DefaultSampleRate     = 48000
	DefaultPeriodFrames   = 256
	DefaultMaxBlockFrames = 4096
)

// Sentinel errors
var (
	ErrUnsupportedOS = errors.NewStd("unsupported operating system")
	ErrContext       = errors.NewStd("audio context failed")
	ErrNoDevice      = errors.NewStd("no matching audio device found")
	ErrDevice        = errors.NewStd("audio device failed")
	ErrNoCallback    = errors.NewStd("no process callback installed")
	ErrNoPorts       = errors.NewStd("no ports registered")
	ErrClosed        = errors.NewStd("connection closed")
	ErrInvalidName   = errors.NewStd("invalid name")
)

// Config selects the soundcard and stream format
type Config struct {
	// Device is matched against device names and IDs, empty means system default
	Device         string
	SampleRate     uint32
	PeriodFrames   uint32
	MaxBlockFrames int
}

// Server opens soundcard connections
type Server struct {
	cfg Config
	log logger.Logger
}

var _ bridge.Server = (*Server)(nil)

// New creates a soundcard server. Devices are opened on Activate.
func New(cfg Config) *Server {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.PeriodFrames == 0 {
		cfg.PeriodFrames = DefaultPeriodFrames
	}
	if cfg.MaxBlockFrames <= 0 {
		cfg.MaxBlockFrames = DefaultMaxBlockFrames
	}
	return &Server{
		cfg: cfg,
		log: logger.Global().Module("server").Module("malgo"),
	}
}

// Open implements bridge.Server
func (s *Server) Open(name string) (bridge.Conn, error) {
	if name == "" {
		return nil, newError(ErrInvalidName, nil, errors.CategoryValidation).Build()
	}
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	return &Conn{
		cfg:  s.cfg,
		name: name,
		log:  s.log.With(logger.String("client", name)),
		ctx:  ctx,
	}, nil
}

// Conn is a client connection bound to one soundcard device
type Conn struct {
	cfg  Config
	name string
	log  logger.Logger

	mu         sync.Mutex
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	inputs     []*port
	outputs    []*port
	inViews    [][]float32
	outViews   [][]float32
	callback   func(nframes uint32)
	onShutdown func()
	closed     bool

	// stopping is set while the device is stopped on request, so the
	// device stop callback is not mistaken for a lost device
	stopping atomic.Bool
}

var (
	_ bridge.Conn             = (*Conn)(nil)
	_ bridge.ShutdownNotifier = (*Conn)(nil)
	_ bridge.SampleRater      = (*Conn)(nil)
)

type port struct {
	name string
	buf  []float32
}

func (p *port) Name() string { return p.name }

func (p *port) Buffer(nframes uint32) []float32 {
	return p.buf[:nframes]
}

// RegisterPort implements bridge.Conn
func (c *Conn) RegisterPort(name string, dir bridge.Direction) (bridge.PortHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, newError(ErrClosed, nil, errors.CategoryState).Context("operation", "register_port").Build()
	}
	p := &port{name: c.name + ":" + name, buf: make([]float32, c.cfg.MaxBlockFrames)}
	if dir == bridge.Input {
		c.inputs = append(c.inputs, p)
		c.inViews = append(c.inViews, p.buf)
	} else {
		c.outputs = append(c.outputs, p)
		c.outViews = append(c.outViews, p.buf)
	}
	return p, nil
}

// SetProcessCallback implements bridge.Conn
func (c *Conn) SetProcessCallback(fn func(nframes uint32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return newError(ErrClosed, nil, errors.CategoryState).Context("operation", "set_callback").Build()
	}
	c.callback = fn
	return nil
}

// OnShutdown implements bridge.ShutdownNotifier. fn runs when the device
// stops without being asked to, e.g. when it is unplugged.
func (c *Conn) OnShutdown(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onShutdown = fn
}

// SampleRate implements bridge.SampleRater
func (c *Conn) SampleRate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return c.device.SampleRate()
	}
	return c.cfg.SampleRate
}

// Activate opens and starts the device
func (c *Conn) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return newError(ErrClosed, nil, errors.CategoryState).Context("operation", "activate").Build()
	case c.callback == nil:
		return newError(ErrNoCallback, nil, errors.CategoryCallback).Build()
	case len(c.inputs) == 0 && len(c.outputs) == 0:
		return newError(ErrNoPorts, nil, errors.CategoryValidation).Build()
	case c.device != nil:
		return nil
	}

	deviceConfig, err := c.deviceConfigLocked()
	if err != nil {
		return err
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onData,
		Stop: c.onDeviceStop,
	})
	if err != nil {
		return newError(ErrDevice, err, errors.CategoryAudioDevice).
			Context("device_name", c.cfg.Device).
			Context("operation", "init_device").
			Build()
	}

	c.stopping.Store(false)
	if err := device.Start(); err != nil {
		device.Uninit()
		return newError(ErrDevice, err, errors.CategoryAudioDevice).
			Context("device_name", c.cfg.Device).
			Context("operation", "start_device").
			Build()
	}
	c.device = device

	c.log.Info("audio device started",
		logger.Uint32("sample_rate", device.SampleRate()),
		logger.Int("inputs", len(c.inputs)),
		logger.Int("outputs", len(c.outputs)))
	return nil
}

func (c *Conn) deviceConfigLocked() (malgo.DeviceConfig, error) {
	kind := malgo.Duplex
	switch {
	case len(c.outputs) == 0:
		kind = malgo.Capture
	case len(c.inputs) == 0:
		kind = malgo.Playback
	}

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = c.cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = c.cfg.PeriodFrames
	deviceConfig.Alsa.NoMMap = 1

	if len(c.inputs) > 0 {
		info, err := findDevice(c.ctx, malgo.Capture, c.cfg.Device)
		if err != nil {
			return deviceConfig, err
		}
		deviceConfig.Capture.Format = malgo.FormatF32
		deviceConfig.Capture.Channels = uint32(len(c.inputs))
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}
	if len(c.outputs) > 0 {
		info, err := findDevice(c.ctx, malgo.Playback, c.cfg.Device)
		if err != nil {
			return deviceConfig, err
		}
		deviceConfig.Playback.Format = malgo.FormatF32
		deviceConfig.Playback.Channels = uint32(len(c.outputs))
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
	}
	return deviceConfig, nil
}

// onData runs on the device thread. Periods larger than MaxBlockFrames are
// delivered to the callback as consecutive blocks.
func (c *Conn) onData(pOutput, pInput []byte, framecount uint32) {
	maxBlock := uint32(c.cfg.MaxBlockFrames)
	inStride := len(c.inViews) * 4
	outStride := len(c.outViews) * 4

	for offset := uint32(0); offset < framecount; {
		n := min(framecount-offset, maxBlock)
		if inStride > 0 {
			deinterleaveF32(pInput[int(offset)*inStride:], c.inViews, int(n))
		}
		c.callback(n)
		if outStride > 0 {
			interleaveF32(c.outViews, int(n), pOutput[int(offset)*outStride:])
		}
		offset += n
	}
}

func (c *Conn) onDeviceStop() {
	if c.stopping.Load() {
		return
	}
	c.log.Warn("audio device stopped unexpectedly")
	c.mu.Lock()
	fn := c.onShutdown
	c.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

// Deactivate stops and releases the device
func (c *Conn) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopDeviceLocked()
}

func (c *Conn) stopDeviceLocked() error {
	if c.device == nil {
		return nil
	}
	c.stopping.Store(true)
	err := c.device.Stop()
	c.device.Uninit()
	c.device = nil
	if err != nil {
		return newError(ErrDevice, err, errors.CategoryAudioDevice).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

// Close stops the device and releases the audio context. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	stopErr := c.stopDeviceLocked()
	if err := c.ctx.Uninit(); err != nil && stopErr == nil {
		stopErr = newError(ErrContext, err, errors.CategoryAudioDevice).
			Context("operation", "uninit_context").
			Build()
	}
	c.ctx = nil
	return stopErr
}

// deinterleaveF32 splits little-endian interleaved float32 frames into ports
func deinterleaveF32(src []byte, ports [][]float32, frames int) {
	channels := len(ports)
	for f := range frames {
		for ch := range channels {
			off := (f*channels + ch) * 4
			ports[ch][f] = math.Float32frombits(binary.LittleEndian.Uint32(src[off : off+4]))
		}
	}
}

// interleaveF32 writes port samples as little-endian interleaved float32 frames
func interleaveF32(ports [][]float32, frames int, dst []byte) {
	channels := len(ports)
	for f := range frames {
		for ch := range channels {
			off := (f*channels + ch) * 4
			binary.LittleEndian.PutUint32(dst[off:off+4], math.Float32bits(ports[ch][f]))
		}
	}
}

func newError(sentinel, cause error, category errors.ErrorCategory) *errors.ErrorBuilder {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return errors.New(err).
		Component("server.malgo").
		Category(category)
}
