package capability

import (
	"errors"
	"strings"

	"github.com/marklog/marklog/pkg/models"
)

// ErrInvalidEncoding reports a malformed percent-escape in a request
// path: a bad hex pair, a trailing "%", or an encoded NUL byte.
var ErrInvalidEncoding = errors.New("invalid URL encoding")

// DecodeResourcePath percent-decodes the resource portion of a capability
// URL and normalizes it. Each segment is decoded exactly once, so
// "%252e%252e" decodes to the literal "%2e%2e" and a traversal never
// materializes from double encoding.
//
// Returns ErrInvalidEncoding for malformed escapes and
// models.ErrInvalidPath for traversal attempts ("..", NUL bytes).
func DecodeResourcePath(raw string) (string, error) {
	segments := strings.Split(strings.Trim(raw, "/"), "/")
	decoded := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		d, err := decodeSegment(seg)
		if err != nil {
			return "", err
		}
		if d == ".." || d == "." || strings.ContainsRune(d, 0) {
			return "", models.ErrInvalidPath
		}
		decoded = append(decoded, d)
	}
	if len(decoded) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(decoded, "/"), nil
}

// decodeSegment applies one round of percent-decoding to a path segment.
func decodeSegment(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			// Trailing "%" or "%X"
			return "", ErrInvalidEncoding
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", ErrInvalidEncoding
		}
		v := hi<<4 | lo
		if v == 0 {
			// Embedded %00
			return "", ErrInvalidEncoding
		}
		b.WriteByte(v)
		i += 2
	}
	return b.String(), nil
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
