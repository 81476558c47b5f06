package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskedFrame(t *testing.T, op ws.OpCode, fin bool, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ws.WriteFrame(&buf, ws.MaskFrameInPlace(ws.NewFrame(op, fin, append([]byte(nil), payload...)))))
	return buf.Bytes()
}

func TestParseFrame_Complete(t *testing.T) {
	raw := maskedFrame(t, ws.OpText, true, []byte("hello"))

	h, payload, n, err := parseFrame(raw, 1024)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, ws.OpText, h.OpCode)
	assert.True(t, h.Fin)
	assert.True(t, h.Masked)
	assert.Equal(t, "hello", string(payload))
}

func TestParseFrame_Incomplete(t *testing.T) {
	raw := maskedFrame(t, ws.OpText, true, []byte("hello world"))

	for cut := 0; cut < len(raw); cut++ {
		_, _, n, err := parseFrame(raw[:cut], 1024)
		require.NoError(t, err, "cut at %d", cut)
		assert.Equal(t, 0, n, "cut at %d", cut)
	}
}

func TestParseFrame_TwoFramesBackToBack(t *testing.T) {
	raw := append(maskedFrame(t, ws.OpText, true, []byte("one")), maskedFrame(t, ws.OpText, true, []byte("two"))...)

	_, first, n, err := parseFrame(raw, 1024)
	require.NoError(t, err)
	assert.Equal(t, "one", string(first))

	_, second, m, err := parseFrame(raw[n:], 1024)
	require.NoError(t, err)
	assert.Equal(t, "two", string(second))
	assert.Equal(t, len(raw), n+m)
}

func TestParseFrame_TooLarge(t *testing.T) {
	raw := maskedFrame(t, ws.OpBinary, true, make([]byte, 200))

	_, _, _, err := parseFrame(raw, 100)
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ws.StatusMessageTooBig, perr.Status)
}

func TestValidateHeader(t *testing.T) {
	assert.NoError(t, validateHeader(ws.Header{Fin: true, OpCode: ws.OpText, Masked: true}))

	tests := []struct {
		name   string
		header ws.Header
	}{
		{"unmasked", ws.Header{Fin: true, OpCode: ws.OpText}},
		{"reserved bits", ws.Header{Fin: true, OpCode: ws.OpText, Masked: true, Rsv: ws.Rsv(true, false, false)}},
		{"fragmented ping", ws.Header{Fin: false, OpCode: ws.OpPing, Masked: true}},
		{"oversized close", ws.Header{Fin: true, OpCode: ws.OpClose, Masked: true, Length: 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var perr *ProtocolError
			assert.True(t, errors.As(validateHeader(tt.header), &perr))
		})
	}
}

func TestEncodeText(t *testing.T) {
	raw, err := EncodeText([]byte(`{"ok":true}`))
	require.NoError(t, err)

	f, err := ws.ReadFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, ws.OpText, f.Header.OpCode)
	assert.False(t, f.Header.Masked)
	assert.Equal(t, `{"ok":true}`, string(f.Payload))
}

func TestEncodeClose(t *testing.T) {
	f, err := ws.ReadFrame(bytes.NewReader(EncodeClose(ws.StatusProtocolError, "bad")))
	require.NoError(t, err)
	assert.Equal(t, ws.OpClose, f.Header.OpCode)

	code, reason := ws.ParseCloseFrameData(f.Payload)
	assert.Equal(t, ws.StatusProtocolError, code)
	assert.Equal(t, "bad", reason)
}
