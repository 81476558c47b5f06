package protocol

import (
	"bytes"
	"errors"
	"io"

	"github.com/gobwas/ws"
)

// parseFrame decodes one client frame from the front of buf.
// It returns n == 0 when buf does not yet hold a complete frame. The returned
// payload is unmasked and does not alias buf.
func parseFrame(buf []byte, maxPayload int) (ws.Header, []byte, int, error) {
	r := bytes.NewReader(buf)
	h, err := ws.ReadHeader(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return h, nil, 0, nil
		}
		return h, nil, 0, protocolErrorf(ws.StatusProtocolError, "bad frame header: %v", err)
	}

	if h.Length > int64(maxPayload) {
		return h, nil, 0, protocolErrorf(ws.StatusMessageTooBig, "frame of %d bytes exceeds limit %d", h.Length, maxPayload)
	}

	headerLen := len(buf) - r.Len()
	total := headerLen + int(h.Length)
	if len(buf) < total {
		return h, nil, 0, nil
	}

	payload := append([]byte(nil), buf[headerLen:total]...)
	if h.Masked {
		ws.Cipher(payload, h.Mask, 0)
	}
	return h, payload, total, nil
}

// validateHeader applies the rules every client frame must satisfy.
func validateHeader(h ws.Header) error {
	if !h.Masked {
		return protocolErrorf(ws.StatusProtocolError, "client frame is not masked")
	}
	if h.Rsv != 0 {
		return protocolErrorf(ws.StatusProtocolError, "reserved bits set without a negotiated extension")
	}
	if h.OpCode.IsControl() && (!h.Fin || h.Length > ws.MaxControlFramePayloadSize) {
		return protocolErrorf(ws.StatusProtocolError, "fragmented or oversized control frame")
	}
	return nil
}

// EncodeText frames payload as a single unmasked server text frame.
func EncodeText(payload []byte) ([]byte, error) {
	return ws.CompileFrame(ws.NewTextFrame(payload))
}

// EncodeClose frames a server close with status and reason.
func EncodeClose(status ws.StatusCode, reason string) []byte {
	frame, err := ws.CompileFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(status, reason)))
	if err != nil {
		return nil
	}
	return frame
}

func encodePong(payload []byte) []byte {
	frame, err := ws.CompileFrame(ws.NewPongFrame(payload))
	if err != nil {
		return nil
	}
	return frame
}
