// Package netpoll wraps the kernel readiness multiplexer used by hub workers.
//
// A Poller watches a set of file descriptors and can be woken from any
// goroutine. Wait blocks until a descriptor is ready, the poller is woken, or
// the timeout expires.
package netpoll

import "errors"

// ErrPollerClosed is returned by operations on a closed poller
var ErrPollerClosed = errors.New("poller closed")

// Events is a set of readiness conditions.
type Events uint32

const (
	// Readable means the descriptor has data or a pending accept
	Readable Events = 1 << iota
	// Writable means the descriptor can take more output
	Writable
	// Hangup means the peer closed or the descriptor is in error
	Hangup
)

// Has reports whether all of flags are set in e.
func (e Events) Has(flags Events) bool {
	return e&flags == flags
}

// Event is one ready descriptor returned by Wait.
type Event struct {
	Fd     int
	Events Events
}
