package protocol

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/gobwas/ws"
)

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var headerTerminator = []byte("\r\n\r\n")

// AcceptKey derives the Sec-WebSocket-Accept value for a client's Sec-WebSocket-Key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// handshakeResult is what upgrade produced from one buffered request.
type handshakeResult struct {
	consumed int
	response []byte
	path     string
}

// upgrade runs the server side of the opening handshake over buffered bytes.
// It returns consumed == 0 while the request headers are still incomplete.
// On rejection the result still carries the HTTP error response to send.
func (h *Handler) upgrade(buf []byte) (handshakeResult, error) {
	end := bytes.Index(buf, headerTerminator)
	if end < 0 {
		if len(buf) > h.config.MaxHandshakeSize {
			return handshakeResult{}, protocolErrorf(ws.StatusProtocolError, "handshake exceeds %d bytes", h.config.MaxHandshakeSize)
		}
		return handshakeResult{}, nil
	}
	end += len(headerTerminator)
	if end > h.config.MaxHandshakeSize {
		return handshakeResult{}, protocolErrorf(ws.StatusProtocolError, "handshake exceeds %d bytes", h.config.MaxHandshakeSize)
	}

	result := handshakeResult{consumed: end}
	u := ws.Upgrader{
		OnRequest: func(uri []byte) error {
			path := string(uri)
			if i := bytes.IndexByte(uri, '?'); i >= 0 {
				path = string(uri[:i])
			}
			result.path = path
			if h.config.Path != "" && path != h.config.Path {
				return ws.RejectConnectionError(
					ws.RejectionStatus(http.StatusNotFound),
					ws.RejectionReason("unknown channel path"),
				)
			}
			return nil
		},
	}

	var out bytes.Buffer
	rw := struct {
		io.Reader
		io.Writer
	}{bytes.NewReader(buf[:end]), &out}

	_, err := u.Upgrade(rw)
	result.response = out.Bytes()
	if err != nil {
		return result, protocolErrorf(ws.StatusProtocolError, "handshake rejected: %v", err)
	}
	return result, nil
}
