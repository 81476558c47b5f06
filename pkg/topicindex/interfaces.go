package topicindex

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInvalidFilter is returned when a subscription filter is malformed
	ErrInvalidFilter = errors.New("invalid topic filter")
	// ErrInvalidTopicName is returned when a publish topic is malformed or contains wildcards
	ErrInvalidTopicName = errors.New("invalid topic name")
	// ErrNilSubscriber is returned when a nil subscriber is passed to the index
	ErrNilSubscriber = errors.New("subscriber cannot be nil")
	// ErrNotSubscribed is returned when removing a subscription that does not exist
	ErrNotSubscribed = errors.New("subscription not found")
	// ErrIndexClosed is returned for any operation on a closed index
	ErrIndexClosed = errors.New("topic index is closed")
)

const (
	// Separator delimits topic segments
	Separator = "/"
	// WildcardSingle matches exactly one segment
	WildcardSingle = "+"
	// WildcardMulti matches zero or more trailing segments
	WildcardMulti = "#"
)

// Subscriber represents a receiver of published payloads, normally a client connection.
// The index holds non-owning references: a subscriber's lifetime is managed elsewhere
// and it must be removed with UnsubscribeAll before it is discarded.
type Subscriber interface {
	// ID returns unique identifier for this subscriber
	ID() string

	// Deliver appends the whole payload to the subscriber's outbound queue.
	// It reports wake=true when the queue went from empty to non-empty, in which
	// case the index calls Wake once its structural lock has been released.
	Deliver(payload []byte) (wake bool, err error)

	// Wake signals whoever drains the subscriber's queue that data is pending.
	Wake()
}

// Subscription represents a subscriber's interest in a topic filter
type Subscription struct {
	// Filter is the filter pattern (may include wildcards)
	Filter string `json:"filter"`

	// SubscriberID identifies the subscriber holding the filter
	SubscriberID string `json:"subscriberId"`
}

// TopicIndex manages filter-to-subscriber mappings for payload routing.
//
// All mutation and matching traversal happen under one structural lock. Publish
// never creates nodes, and nodes that no longer carry subscribers or children are
// pruned so memory stays bounded by active interest.
type TopicIndex interface {
	io.Closer

	// Subscribe adds a subscription for a filter to a subscriber.
	// Returns ErrInvalidFilter for malformed filters.
	Subscribe(ctx context.Context, filter string, subscriber Subscriber) error

	// Unsubscribe removes a subscription for a filter from a subscriber.
	Unsubscribe(ctx context.Context, filter string, subscriber Subscriber) error

	// UnsubscribeAll removes every subscription held by the subscriber and
	// returns how many were removed. Used on connection teardown.
	UnsubscribeAll(ctx context.Context, subscriber Subscriber) (int, error)

	// Publish delivers payload to every subscriber with a filter matching topic.
	// Returns the number of distinct subscribers the payload was delivered to.
	// Returns ErrInvalidTopicName if topic contains wildcard characters.
	Publish(ctx context.Context, topic string, payload []byte) (int, error)

	// GarbageCollect removes nodes that have neither subscribers nor children
	// and returns how many were removed.
	GarbageCollect() int

	// SubscriptionsOf returns the filters currently held by a subscriber.
	SubscriptionsOf(subscriber Subscriber) []string

	// GetAllSubscriptions returns all current subscriptions.
	GetAllSubscriptions(ctx context.Context) ([]Subscription, error)

	// GetTopicCount returns the number of distinct filters with at least one subscriber.
	GetTopicCount(ctx context.Context) (int, error)

	// GetSubscriberCount returns the number of distinct subscribers.
	GetSubscriberCount(ctx context.Context) (int, error)
}
