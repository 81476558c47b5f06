package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show hub statistics",
		Long:  "Display connection, routing and process statistics of the EventHub server",
		RunE:  c.runStats,
	}
}

func (c *cli) runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	stats, err := c.client.GetStats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	h := stats.Hub
	fmt.Fprintln(out, "Hub:")
	fmt.Fprintf(out, "  Running: %t (uptime %s)\n", h.Running, h.Uptime.Round(time.Second))
	fmt.Fprintf(out, "  Connections: %d (accepted %d, rejected %d)\n", h.Connections, h.Accepted, h.Rejected)
	fmt.Fprintf(out, "  Publishes: %d\n", h.Publishes)
	fmt.Fprintf(out, "  Deliveries: %d\n", h.Deliveries)
	fmt.Fprintf(out, "  Filters: %d, subscribers: %d, nodes: %d\n", h.Topics, h.Subscribers, h.TopicNodes)
	fmt.Fprintf(out, "  GC: %d sweeps, %d nodes removed\n", h.GCSweeps, h.GCNodesRemoved)
	for _, w := range h.Workers {
		fmt.Fprintf(out, "  Worker %d: %d connections\n", w.ID, w.Connections)
	}

	if p := stats.Process; p != nil {
		fmt.Fprintln(out, "Process:")
		fmt.Fprintf(out, "  PID: %d\n", p.PID)
		fmt.Fprintf(out, "  RSS: %.1f MiB\n", float64(p.RSSBytes)/(1024*1024))
		fmt.Fprintf(out, "  CPU: %.1f%%\n", p.CPUPercent)
		fmt.Fprintf(out, "  Threads: %d, goroutines: %d\n", p.Threads, p.Goroutines)
	}
	return nil
}
