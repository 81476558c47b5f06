package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check hub health",
		Long:  "Check the health status of the EventHub server. Exits non-zero when unhealthy.",
		RunE:  c.runHealth,
	}
}

func (c *cli) runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	health, err := c.client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	out := cmd.OutOrStdout()
	if health.Healthy {
		fmt.Fprintln(out, "Hub is healthy")
	} else {
		fmt.Fprintln(out, "Hub is not healthy")
	}
	fmt.Fprintf(out, "Running: %t\n", health.Running)
	if health.Address != "" {
		fmt.Fprintf(out, "Address: %s\n", health.Address)
	}
	fmt.Fprintf(out, "Workers: %d\n", health.Workers)
	fmt.Fprintf(out, "Connections: %d\n", health.Connections)
	if health.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", health.Message)
	}

	if !health.Healthy {
		return fmt.Errorf("hub is unhealthy")
	}
	return nil
}
