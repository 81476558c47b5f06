// Package config loads eventhub settings from a YAML file, an optional .env
// file and EVENTHUB_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rmacdonaldsmith/eventhub-go/internal/hub"
	"github.com/rmacdonaldsmith/eventhub-go/internal/protocol"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "EVENTHUB_"

// HubConfig holds the socket and worker settings
type HubConfig struct {
	Listen              string        `yaml:"listen"`
	Workers             int           `yaml:"workers"`
	MaxConnections      int           `yaml:"maxConnections"`
	ReadBufferSize      int           `yaml:"readBufferSize"`
	MaintenanceInterval time.Duration `yaml:"maintenanceInterval"`
	LazyPrune           bool          `yaml:"lazyPrune"`
}

// ProtocolConfig holds channel limits
type ProtocolConfig struct {
	MaxHandshakeSize int    `yaml:"maxHandshakeSize"`
	MaxMessageSize   int    `yaml:"maxMessageSize"`
	Path             string `yaml:"path"`
}

// AdminConfig holds the admin HTTP API and gRPC health addresses. Empty disables a listener.
type AdminConfig struct {
	HTTPAddress string `yaml:"httpAddress"`
	GRPCAddress string `yaml:"grpcAddress"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete eventhub configuration
type Config struct {
	Hub      HubConfig      `yaml:"hub"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			Listen:              ":8081",
			ReadBufferSize:      64 * 1024,
			MaintenanceInterval: time.Second,
		},
		Protocol: ProtocolConfig{
			MaxHandshakeSize: 8 * 1024,
			MaxMessageSize:   1024 * 1024,
		},
		Admin: AdminConfig{
			HTTPAddress: ":8080",
			GRPCAddress: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a configuration from defaults, then the YAML file at path (if
// path is not empty), then environment overrides.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv applies EVENTHUB_* overrides using lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("LISTEN", &c.Hub.Listen)
	num("WORKERS", &c.Hub.Workers)
	num("MAX_CONNECTIONS", &c.Hub.MaxConnections)
	num("READ_BUFFER_SIZE", &c.Hub.ReadBufferSize)
	if v, ok := lookup(EnvPrefix + "MAINTENANCE_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAINTENANCE_INTERVAL: %w", EnvPrefix, err))
		} else {
			c.Hub.MaintenanceInterval = d
		}
	}
	if v, ok := lookup(EnvPrefix + "LAZY_PRUNE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLAZY_PRUNE: %w", EnvPrefix, err))
		} else {
			c.Hub.LazyPrune = b
		}
	}

	num("MAX_HANDSHAKE_SIZE", &c.Protocol.MaxHandshakeSize)
	num("MAX_MESSAGE_SIZE", &c.Protocol.MaxMessageSize)
	str("PATH", &c.Protocol.Path)

	str("HTTP_ADDRESS", &c.Admin.HTTPAddress)
	str("GRPC_ADDRESS", &c.Admin.GRPCAddress)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// HubConfig converts the settings into a hub.Config. Zero values are
// filled in by the hub when the server is created.
func (c *Config) HubConfig(logger zerolog.Logger) *hub.Config {
	return &hub.Config{
		ListenAddress:       c.Hub.Listen,
		Workers:             c.Hub.Workers,
		MaxConnections:      c.Hub.MaxConnections,
		ReadBufferSize:      c.Hub.ReadBufferSize,
		MaintenanceInterval: c.Hub.MaintenanceInterval,
		LazyPrune:           c.Hub.LazyPrune,
		Logger:              logger,
	}
}

// ProtocolConfig converts the settings into a protocol.Config
func (c *Config) ProtocolConfig(logger zerolog.Logger) *protocol.Config {
	return protocol.NewConfig().
		WithMaxHandshakeSize(c.Protocol.MaxHandshakeSize).
		WithMaxMessageSize(c.Protocol.MaxMessageSize).
		WithPath(c.Protocol.Path).
		WithLogger(logger)
}

// Validate checks the settings that the component configs do not
func (c *Config) Validate() error {
	if err := c.HubConfig(zerolog.Nop()).Validate(); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	if err := c.ProtocolConfig(zerolog.Nop()).Validate(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if c.Hub.MaintenanceInterval < 0 {
		return fmt.Errorf("hub: maintenance interval cannot be negative")
	}
	return nil
}
