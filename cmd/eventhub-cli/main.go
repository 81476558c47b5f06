package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rmacdonaldsmith/eventhub-go/pkg/httpclient"
	"github.com/spf13/cobra"
)

// cli holds the global flags and the client built from them
type cli struct {
	serverURL string
	timeout   time.Duration
	client    *httpclient.Client
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "eventhub-cli",
		Short: "EventHub admin API command line interface",
		Long: `eventhub-cli talks to the EventHub admin HTTP API.
It can publish messages from outside the hub and inspect health,
statistics and the current subscriptions.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.initializeClient,
	}

	rootCmd.PersistentFlags().StringVar(&c.serverURL, "server", "http://localhost:8080", "EventHub admin API URL")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(c.newPublishCommand())
	rootCmd.AddCommand(c.newHealthCommand())
	rootCmd.AddCommand(c.newStatsCommand())
	rootCmd.AddCommand(c.newSubscriptionsCommand())

	return rootCmd
}

// initializeClient sets up the HTTP client with global configuration
func (c *cli) initializeClient(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	var err error
	c.client, err = httpclient.NewClient(httpclient.Config{
		ServerURL: c.serverURL,
		Timeout:   c.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}
