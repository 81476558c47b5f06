package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeURIComponent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain", "chat/room1", "chat/room1", nil},
		{"wildcards pass through", "chat/+/#", "chat/+/#", nil},
		{"unreserved punctuation", "a-b_c.d~e*f", "a-b_c.d~e*f", nil},
		{"encoded slash", "chat%2Froom1", "chat/room1", nil},
		{"lowercase hex", "chat%2froom1", "chat/room1", nil},
		{"encoded space", "hello%20world", "hello world", nil},
		{"escape at end", "topic%41", "topicA", nil},
		{"empty", "", "", nil},
		{"truncated escape", "topic%4", "", ErrMalformedEscape},
		{"lone percent", "%", "", ErrMalformedEscape},
		{"non hex escape", "topic%zz", "", ErrMalformedEscape},
		{"raw space", "hello world", "", ErrUnexpectedChar},
		{"raw question mark", "a?b", "", ErrUnexpectedChar},
		{"raw char after escape", "a%20b c", "", ErrUnexpectedChar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeURIComponent(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
