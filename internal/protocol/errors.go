package protocol

import (
	"errors"
	"fmt"

	"github.com/gobwas/ws"
)

// ErrClientClosed is the teardown cause when the client sent a close frame or asked to disconnect
var ErrClientClosed = errors.New("client closed the channel")

// ProtocolError is a fatal violation of the handshake or framing rules.
// The connection is closed with Status after the error is reported.
type ProtocolError struct {
	Reason string
	Status ws.StatusCode
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func protocolErrorf(status ws.StatusCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Status: status}
}
