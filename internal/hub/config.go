package hub

import (
	"errors"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidListenAddress is returned when listen address is invalid
	ErrInvalidListenAddress = errors.New("listen address cannot be empty")
	// ErrInvalidWorkerCount is returned when the worker count is negative
	ErrInvalidWorkerCount = errors.New("worker count cannot be negative")
	// ErrInvalidMaxConnections is returned when the connection limit is negative
	ErrInvalidMaxConnections = errors.New("max connections cannot be negative")
)

// Config represents configuration for a hub Server
type Config struct {
	// ListenAddress is the TCP address clients connect to.
	// Format: "host:port" (e.g., "localhost:8081"); port 0 picks a free port.
	ListenAddress string

	// Workers is the number of event-loop workers. Zero means one per CPU.
	Workers int

	// MaxConnections caps concurrently admitted connections. Zero means unlimited.
	MaxConnections int

	// ReadBufferSize is the per-worker scratch buffer used for socket reads.
	ReadBufferSize int

	// MaxEvents is the number of ready descriptors each worker handles per wait.
	MaxEvents int

	// MaintenanceInterval bounds how long a worker waits without socket activity
	// before running periodic maintenance.
	MaintenanceInterval time.Duration

	// LazyPrune leaves empty topic nodes in place on unsubscribe and sweeps them
	// during maintenance instead.
	LazyPrune bool

	// Logger receives structured hub logs
	Logger zerolog.Logger
}

// NewConfig creates a new hub configuration with safe defaults
func NewConfig(listenAddress string) *Config {
	config := &Config{
		ListenAddress: listenAddress,
		Logger:        zerolog.Nop(),
	}
	config.SetDefaults()
	return config
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 * 1024
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = 256
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Second
	} else if c.MaintenanceInterval < time.Millisecond {
		// The poller waits in whole milliseconds.
		c.MaintenanceInterval = time.Millisecond
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrInvalidListenAddress
	}
	if c.Workers < 0 {
		return ErrInvalidWorkerCount
	}
	if c.MaxConnections < 0 {
		return ErrInvalidMaxConnections
	}
	return nil
}

// WithWorkers sets the number of workers
func (c *Config) WithWorkers(n int) *Config {
	c.Workers = n
	return c
}

// WithMaxConnections sets the admission limit
func (c *Config) WithMaxConnections(n int) *Config {
	c.MaxConnections = n
	return c
}

// WithReadBufferSize sets the per-worker read buffer size
func (c *Config) WithReadBufferSize(n int) *Config {
	c.ReadBufferSize = n
	return c
}

// WithMaintenanceInterval sets the maintenance tick
func (c *Config) WithMaintenanceInterval(d time.Duration) *Config {
	c.MaintenanceInterval = d
	return c
}

// WithLazyPrune switches the topic index to sweep-based pruning
func (c *Config) WithLazyPrune(lazy bool) *Config {
	c.LazyPrune = lazy
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(logger zerolog.Logger) *Config {
	c.Logger = logger
	return c
}
