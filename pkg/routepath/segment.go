package routepath

import (
	"errors"
	"net/url"
	"strings"
)

// Segment decoding errors.
var (
	ErrInvalidPercentEscape  = errors.New("invalid percent escape sequence")
	ErrEncodedSlashInSegment = errors.New("encoded slash (%2F) in non-catch-all segment")
)

// Split splits a normalized path into its raw segments. The root has none.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// DecodeSegment decodes a single path segment.
// For non-catch-all params, a decoded "/" (from %2F) is rejected because
// it would let one parameter smuggle in extra path segments.
func DecodeSegment(segment string, isCatchAll bool) (string, error) {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return "", ErrInvalidPercentEscape
	}
	if !isCatchAll && strings.Contains(decoded, "/") {
		return "", ErrEncodedSlashInSegment
	}
	return decoded, nil
}
