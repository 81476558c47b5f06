package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned by any operation on a closed connection
	ErrConnectionClosed = errors.New("connection closed")
	// ErrInvalidTransition is returned when a state change skips or revisits a state
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrWouldBlock is returned by a non-blocking socket that cannot make progress right now
	ErrWouldBlock = errors.New("operation would block")
	// ErrInboundFull is returned by ReadAvailable when the unconsumed bytes already fill the read limit
	ErrInboundFull = errors.New("inbound buffer full")
)

// IOError is a fatal socket error. The owning worker tears the connection down when it sees one.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
