package topicindex

import "sync"

// BufferSubscriber is an in-memory Subscriber that keeps every delivered payload.
// It is useful for internal consumers and for tests.
type BufferSubscriber struct {
	id string

	mu       sync.Mutex
	pending  []byte
	payloads [][]byte
	wakes    int
}

// NewBufferSubscriber creates a new buffer subscriber with the given ID
func NewBufferSubscriber(id string) *BufferSubscriber {
	return &BufferSubscriber{id: id}
}

// ID returns the unique identifier for this subscriber
func (s *BufferSubscriber) ID() string {
	return s.id
}

// Deliver records the payload
func (s *BufferSubscriber) Deliver(payload []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wake := len(s.pending) == 0
	s.pending = append(s.pending, payload...)
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return wake, nil
}

// Wake counts wake-up signals
func (s *BufferSubscriber) Wake() {
	s.mu.Lock()
	s.wakes++
	s.mu.Unlock()
}

// Payloads returns a copy of every payload delivered so far, in delivery order
func (s *BufferSubscriber) Payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.payloads...)
}

// Bytes returns the concatenation of all undrained payloads
func (s *BufferSubscriber) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.pending...)
}

// Drain empties the pending byte queue and returns its content
func (s *BufferSubscriber) Drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Wakes returns how many times Wake has been called
func (s *BufferSubscriber) Wakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wakes
}

// Verify that BufferSubscriber implements Subscriber at compile time
var _ Subscriber = (*BufferSubscriber)(nil)
