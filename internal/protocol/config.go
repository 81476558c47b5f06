package protocol

import (
	"errors"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidHandshakeSize is returned when the handshake limit is negative
	ErrInvalidHandshakeSize = errors.New("max handshake size cannot be negative")
	// ErrInvalidMessageSize is returned when the message limit is negative
	ErrInvalidMessageSize = errors.New("max message size cannot be negative")
)

// Config represents configuration for the channel protocol handler
type Config struct {
	// MaxHandshakeSize bounds the upgrade request, headers included
	MaxHandshakeSize int

	// MaxMessageSize bounds a single message after fragment reassembly
	MaxMessageSize int

	// Path restricts upgrades to one request path. Empty accepts any path.
	Path string

	// Logger receives protocol logs
	Logger zerolog.Logger
}

// NewConfig creates a protocol configuration with safe defaults
func NewConfig() *Config {
	config := &Config{Logger: zerolog.Nop()}
	config.SetDefaults()
	return config
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.MaxHandshakeSize <= 0 {
		c.MaxHandshakeSize = 8 * 1024
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1024 * 1024 // 1MB
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.MaxHandshakeSize < 0 {
		return ErrInvalidHandshakeSize
	}
	if c.MaxMessageSize < 0 {
		return ErrInvalidMessageSize
	}
	return nil
}

// WithMaxHandshakeSize sets the handshake limit
func (c *Config) WithMaxHandshakeSize(n int) *Config {
	c.MaxHandshakeSize = n
	return c
}

// WithMaxMessageSize sets the message limit
func (c *Config) WithMaxMessageSize(n int) *Config {
	c.MaxMessageSize = n
	return c
}

// WithPath restricts upgrades to path
func (c *Config) WithPath(path string) *Config {
	c.Path = path
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(logger zerolog.Logger) *Config {
	c.Logger = logger
	return c
}
