package bridge

// Server opens named client connections to an audio server
type Server interface {
	// Open connects a client under name. Unavailable servers, duplicate
	// names and invalid names are reported as errors.
	Open(name string) (Conn, error)
}

// Conn is one open client connection
type Conn interface {
	// RegisterPort creates a named audio port visible in the server graph
	RegisterPort(name string, dir Direction) (PortHandle, error)

	// SetProcessCallback installs the function the server calls once per
	// block on its real-time thread. It must be called before Activate.
	SetProcessCallback(fn func(nframes uint32)) error

	// Activate starts block delivery
	Activate() error

	// Deactivate stops block delivery. When it returns no further callbacks
	// are scheduled; one already in flight may still complete.
	Deactivate() error

	// Close releases the connection and all its ports. No callbacks are
	// delivered after Close returns.
	Close() error
}

// PortHandle is the server side of a registered port
type PortHandle interface {
	Name() string

	// Buffer returns the port's sample storage for the current block. It is
	// only valid inside the process callback and has at least nframes samples.
	Buffer(nframes uint32) []float32
}

// ShutdownNotifier is implemented by connections whose server can go away
// independently of the client
type ShutdownNotifier interface {
	OnShutdown(fn func())
}

// SampleRater is implemented by connections that report the server sample rate
type SampleRater interface {
	SampleRate() uint32
}
