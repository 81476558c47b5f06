package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedEscape is returned when a '%' is not followed by two hex digits
	ErrMalformedEscape = errors.New("malformed percent escape")
	// ErrUnexpectedChar is returned for a raw character outside the allowed set
	ErrUnexpectedChar = errors.New("unexpected character")
)

// DecodeURIComponent resolves percent escapes in a topic or filter.
// Alphanumerics and "-_.~*/+#" pass through unchanged; every other byte must be escaped.
func DecodeURIComponent(s string) (string, error) {
	if strings.IndexByte(s, '%') < 0 {
		for i := 0; i < len(s); i++ {
			if !isUnreserved(s[i]) {
				return "", fmt.Errorf("%w %q at offset %d", ErrUnexpectedChar, s[i], i)
			}
		}
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c):
			b.WriteByte(c)
		case c == '%':
			if i+2 >= len(s) {
				return "", fmt.Errorf("%w at offset %d", ErrMalformedEscape, i)
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("%w at offset %d", ErrMalformedEscape, i)
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		default:
			return "", fmt.Errorf("%w %q at offset %d", ErrUnexpectedChar, c, i)
		}
	}
	return b.String(), nil
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '~', '*', '/', '+', '#':
		return true
	}
	return false
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
