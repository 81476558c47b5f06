package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rmacdonaldsmith/eventhub-go/internal/config"
	"github.com/rmacdonaldsmith/eventhub-go/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	// Application info
	appName    = "EventHub"
	appVersion = "0.1.0"

	shutdownTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFile string
		envFiles   []string
	)

	cmd := &cobra.Command{
		Use:     "eventhub",
		Short:   "Socket pub/sub hub with MQTT-style topic wildcards",
		Version: appVersion,
		Long: `eventhub accepts WebSocket clients on an epoll-driven worker pool and routes
JSON-RPC publishes to every connection whose topic filter matches.

Configuration is read from defaults, then the YAML file given by --config,
then .env files, then EVENTHUB_* environment variables, then flags.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd.Flags(), cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := logging.New(logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			logger.Info().Str("version", appVersion).Msgf("Starting %s", appName)

			return run(cmd.Context(), cfg, logger, nil)
		},
	}
	cmd.SetVersionTemplate(appName + " v{{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	flags.StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	flags.String("listen", "", "Listen address for hub clients")
	flags.Int("workers", 0, "Number of event-loop workers (default: number of CPUs)")
	flags.Int("max-connections", 0, "Maximum concurrent client connections (0 = unlimited)")
	flags.Duration("maintenance-interval", 0, "Worker maintenance tick")
	flags.Bool("lazy-prune", false, "Defer removal of empty topic nodes to maintenance sweeps")
	flags.Int("max-message-size", 0, "Maximum reassembled message size in bytes")
	flags.String("path", "", "Only accept upgrades on this request path")
	flags.String("http", "", "Admin HTTP API address (empty disables)")
	flags.String("grpc", "", "gRPC health address (empty disables)")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")

	return cmd
}

// applyFlags copies every flag the user set explicitly onto cfg
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "listen":
			cfg.Hub.Listen = f.Value.String()
		case "workers":
			cfg.Hub.Workers, err = flags.GetInt(f.Name)
		case "max-connections":
			cfg.Hub.MaxConnections, err = flags.GetInt(f.Name)
		case "maintenance-interval":
			cfg.Hub.MaintenanceInterval, err = flags.GetDuration(f.Name)
		case "lazy-prune":
			cfg.Hub.LazyPrune, err = flags.GetBool(f.Name)
		case "max-message-size":
			cfg.Protocol.MaxMessageSize, err = flags.GetInt(f.Name)
		case "path":
			cfg.Protocol.Path = f.Value.String()
		case "http":
			cfg.Admin.HTTPAddress = f.Value.String()
		case "grpc":
			cfg.Admin.GRPCAddress = f.Value.String()
		case "log-level":
			cfg.Log.Level = f.Value.String()
		case "log-format":
			cfg.Log.Format = f.Value.String()
		}
	})
	return err
}
