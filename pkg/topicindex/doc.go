// Package topicindex provides interfaces for topic-to-subscriber routing.
//
// This package defines the core abstractions for the EventHub topic index:
//   - Subscriber: Interface for entities that can receive published payloads (connections)
//   - Subscription: A (subscriber, filter) pair as reported by listings
//   - TopicIndex: Interface for managing filter-to-subscriber mappings
//
// Topics and filters are '/'-delimited paths. Filters may use two wildcards:
//   - "+" matches exactly one segment: "chat/+" matches "chat/room1" but not "chat/room1/extra"
//   - "#" matches zero or more trailing segments and is only valid as the last segment:
//     "chat/#" matches "chat", "chat/room1" and "chat/room1/extra"
//   - a bare "#" matches every topic, including the empty root topic
//
// Example usage:
//
//	// Subscribe a connection to every room
//	err := index.Subscribe(ctx, "chat/+", conn)
//	if err != nil {
//		return err
//	}
//
//	// Deliver a payload to all matching subscribers
//	n, err := index.Publish(ctx, "chat/room1", payload)
//	if err != nil {
//		return err
//	}
//
//	// Drop everything a connection subscribed to before closing it
//	_, err = index.UnsubscribeAll(ctx, conn)
//
// Delivery is at-most-once to subscribers that are registered at the time of the
// publish. A subscriber holding several filters that match the same topic receives
// exactly one copy.
package topicindex
