package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newSubscriptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "List all subscriptions",
		Long:    "List every topic filter held by a connected client",
		RunE:    c.runSubscriptions,
	}
}

func (c *cli) runSubscriptions(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	resp, err := c.client.ListSubscriptions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resp.Count == 0 {
		fmt.Fprintln(out, "No subscriptions")
		return nil
	}

	fmt.Fprintf(out, "%d subscription(s):\n", resp.Count)
	for _, sub := range resp.Subscriptions {
		fmt.Fprintf(out, "  %-40s %s\n", sub.Filter, sub.SubscriberID)
	}
	return nil
}
