package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newPublishCommand() *cobra.Command {
	var (
		topic   string
		message string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a message to a topic",
		Long: `Publish a message to a topic. The message must be valid JSON and is
delivered to every connection whose filter matches the topic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPublish(cmd, topic, message)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to publish to (required)")
	cmd.Flags().StringVar(&message, "message", "null", "Message body as JSON")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic as required: %v", err))
	}

	return cmd
}

func (c *cli) runPublish(cmd *cobra.Command, topic, message string) error {
	if !json.Valid([]byte(message)) {
		return fmt.Errorf("invalid JSON message: %s", message)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	resp, err := c.client.Publish(ctx, topic, json.RawMessage(message))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Published to '%s'\n", resp.Topic)
	fmt.Fprintf(out, "Message ID: %s\n", resp.ID)
	fmt.Fprintf(out, "Deliveries: %d\n", resp.Deliveries)
	return nil
}
