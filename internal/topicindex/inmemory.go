package topicindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
)

// Config holds options for the in-memory topic index
type Config struct {
	// LazyPrune leaves empty nodes in place on unsubscribe; they are removed by
	// the next GarbageCollect sweep instead.
	LazyPrune bool
}

// node is one segment of the topic tree.
type node struct {
	segment     string
	parent      *node
	children    map[string]*node
	subscribers map[topicindex.Subscriber]struct{}
}

func newNode(segment string, parent *node) *node {
	return &node{
		segment:     segment,
		parent:      parent,
		children:    make(map[string]*node),
		subscribers: make(map[topicindex.Subscriber]struct{}),
	}
}

// isEmpty returns true if the node has no children and no subscribers.
func (n *node) isEmpty() bool {
	return len(n.children) == 0 && len(n.subscribers) == 0
}

// InMemoryTopicIndex implements topicindex.TopicIndex with a segment tree.
//
// Subscriptions are recorded twice: forward, in the terminal node's subscriber
// set, and reverse, in a per-subscriber filter list so teardown costs
// O(filters) rather than a tree scan.
type InMemoryTopicIndex struct {
	mu      sync.RWMutex
	root    *node
	reverse map[topicindex.Subscriber][]string
	config  Config
	closed  bool
}

// NewInMemoryTopicIndex creates a topic index that prunes eagerly
func NewInMemoryTopicIndex() *InMemoryTopicIndex {
	return NewInMemoryTopicIndexWithConfig(Config{})
}

// NewInMemoryTopicIndexWithConfig creates a topic index with the given options
func NewInMemoryTopicIndexWithConfig(config Config) *InMemoryTopicIndex {
	return &InMemoryTopicIndex{
		root:    newNode("", nil),
		reverse: make(map[topicindex.Subscriber][]string),
		config:  config,
	}
}

// Subscribe adds a subscription for a filter to a subscriber.
// Subscribing twice with the same filter is a no-op.
func (t *InMemoryTopicIndex) Subscribe(ctx context.Context, filter string, subscriber topicindex.Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subscriber == nil {
		return topicindex.ErrNilSubscriber
	}
	if err := ValidateFilter(filter); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return topicindex.ErrIndexClosed
	}

	n := t.root
	for _, seg := range splitPath(filter) {
		child, ok := n.children[seg]
		if !ok {
			child = newNode(seg, n)
			n.children[seg] = child
		}
		n = child
	}

	if _, exists := n.subscribers[subscriber]; exists {
		return nil
	}
	n.subscribers[subscriber] = struct{}{}
	t.reverse[subscriber] = append(t.reverse[subscriber], filter)
	return nil
}

// Unsubscribe removes a subscription for a filter from a subscriber
func (t *InMemoryTopicIndex) Unsubscribe(ctx context.Context, filter string, subscriber topicindex.Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subscriber == nil {
		return topicindex.ErrNilSubscriber
	}
	if err := ValidateFilter(filter); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return topicindex.ErrIndexClosed
	}
	if !t.removeLocked(filter, subscriber) {
		return fmt.Errorf("%w: %s on %q", topicindex.ErrNotSubscribed, subscriber.ID(), filter)
	}
	return nil
}

// UnsubscribeAll removes every subscription held by the subscriber.
// It runs on connection teardown, so it ignores context cancellation.
func (t *InMemoryTopicIndex) UnsubscribeAll(_ context.Context, subscriber topicindex.Subscriber) (int, error) {
	if subscriber == nil {
		return 0, topicindex.ErrNilSubscriber
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, topicindex.ErrIndexClosed
	}

	filters := append([]string(nil), t.reverse[subscriber]...)
	removed := 0
	for _, filter := range filters {
		if t.removeLocked(filter, subscriber) {
			removed++
		}
	}
	delete(t.reverse, subscriber)
	return removed, nil
}

// removeLocked drops one forward and reverse entry and prunes upward.
// Caller must hold the write lock.
func (t *InMemoryTopicIndex) removeLocked(filter string, subscriber topicindex.Subscriber) bool {
	n := t.root
	for _, seg := range splitPath(filter) {
		child, ok := n.children[seg]
		if !ok {
			return false
		}
		n = child
	}

	if _, ok := n.subscribers[subscriber]; !ok {
		return false
	}
	delete(n.subscribers, subscriber)

	filters := t.reverse[subscriber]
	for i, f := range filters {
		if f == filter {
			filters = append(filters[:i], filters[i+1:]...)
			break
		}
	}
	if len(filters) == 0 {
		delete(t.reverse, subscriber)
	} else {
		t.reverse[subscriber] = filters
	}

	if !t.config.LazyPrune {
		prune(n)
	}
	return true
}

// prune walks upward from n removing empty nodes, stopping at the first
// non-empty ancestor or the root.
func prune(n *node) {
	for n.parent != nil && n.isEmpty() {
		delete(n.parent.children, n.segment)
		n = n.parent
	}
}

// Publish delivers payload to every subscriber whose filter matches topic.
//
// Matching and delivery run under the read lock; wake-ups are sent after the
// lock is released so a worker never waits on the index while holding its own state.
func (t *InMemoryTopicIndex) Publish(ctx context.Context, topic string, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidateTopicName(topic); err != nil {
		return 0, err
	}

	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return 0, topicindex.ErrIndexClosed
	}

	matched := t.matchLocked(splitPath(topic))

	delivered := 0
	var toWake []topicindex.Subscriber
	for _, sub := range matched {
		wake, err := sub.Deliver(payload)
		if err != nil {
			continue
		}
		delivered++
		if wake {
			toWake = append(toWake, sub)
		}
	}
	t.mu.RUnlock()

	for _, sub := range toWake {
		sub.Wake()
	}
	return delivered, nil
}

// matchLocked returns the deduplicated union of subscribers matching segments.
func (t *InMemoryTopicIndex) matchLocked(segments []string) []topicindex.Subscriber {
	seen := make(map[topicindex.Subscriber]struct{})
	var out []topicindex.Subscriber

	add := func(n *node) {
		for sub := range n.subscribers {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			out = append(out, sub)
		}
	}

	var walk func(n *node, depth int)
	walk = func(n *node, depth int) {
		if depth == len(segments) {
			add(n)
			// "#" also matches zero remaining segments
			if hash := n.children[topicindex.WildcardMulti]; hash != nil {
				add(hash)
			}
			return
		}

		if child := n.children[segments[depth]]; child != nil {
			walk(child, depth+1)
		}
		if plus := n.children[topicindex.WildcardSingle]; plus != nil {
			walk(plus, depth+1)
		}
		if hash := n.children[topicindex.WildcardMulti]; hash != nil {
			add(hash)
		}
	}
	walk(t.root, 0)

	return out
}

// GarbageCollect removes every empty non-root node and returns how many were removed
func (t *InMemoryTopicIndex) GarbageCollect() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sweep(t.root)
}

func sweep(n *node) int {
	removed := 0
	for seg, child := range n.children {
		removed += sweep(child)
		if child.isEmpty() {
			delete(n.children, seg)
			removed++
		}
	}
	return removed
}

// SubscriptionsOf returns the filters held by subscriber in subscription order
func (t *InMemoryTopicIndex) SubscriptionsOf(subscriber topicindex.Subscriber) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.reverse[subscriber]...)
}

// GetAllSubscriptions returns all current subscriptions sorted by subscriber then filter
func (t *InMemoryTopicIndex) GetAllSubscriptions(ctx context.Context) ([]topicindex.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var subs []topicindex.Subscription
	for sub, filters := range t.reverse {
		for _, f := range filters {
			subs = append(subs, topicindex.Subscription{Filter: f, SubscriberID: sub.ID()})
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].SubscriberID != subs[j].SubscriberID {
			return subs[i].SubscriberID < subs[j].SubscriberID
		}
		return subs[i].Filter < subs[j].Filter
	})
	return subs, nil
}

// GetTopicCount returns the number of distinct filters with at least one subscriber
func (t *InMemoryTopicIndex) GetTopicCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	var walk func(n *node)
	walk = func(n *node) {
		if len(n.subscribers) > 0 {
			count++
		}
		for _, child := range n.children {
			walk(child)
		}
	}
	walk(t.root)
	return count, nil
}

// GetSubscriberCount returns the number of distinct subscribers
func (t *InMemoryTopicIndex) GetSubscriberCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.reverse), nil
}

// NodeCount returns the number of nodes below the root.
// This is useful for memory analysis.
func (t *InMemoryTopicIndex) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var count func(n *node) int
	count = func(n *node) int {
		total := len(n.children)
		for _, child := range n.children {
			total += count(child)
		}
		return total
	}
	return count(t.root)
}

// HasNode reports whether a node exists for the exact path (wildcards are literal here)
func (t *InMemoryTopicIndex) HasNode(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for _, seg := range splitPath(path) {
		child, ok := n.children[seg]
		if !ok {
			return false
		}
		n = child
	}
	return true
}

// Close drops the whole tree. Further operations return ErrIndexClosed.
func (t *InMemoryTopicIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil // Already closed, safe to call multiple times
	}
	t.closed = true
	t.root = newNode("", nil)
	t.reverse = make(map[topicindex.Subscriber][]string)
	return nil
}

// Verify that InMemoryTopicIndex implements the TopicIndex interface at compile time
var _ topicindex.TopicIndex = (*InMemoryTopicIndex)(nil)
