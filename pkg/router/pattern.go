package router

import (
	"strings"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/routepath"
)

// segment is one compiled pattern segment.
type segment struct {
	// literal is the text a static segment must equal.
	literal string

	// isParam indicates a :name segment.
	isParam bool

	// isCatchAll indicates a final *name segment.
	isCatchAll bool

	// paramName is the parameter name (without : or *).
	paramName string

	// paramType is the optional constraint (int, uint, uuid).
	paramType string
}

// cleanPattern trims the trailing slash and ensures a leading one.
func cleanPattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	if len(pattern) > 1 {
		pattern = strings.TrimRight(pattern, "/")
		if pattern == "" {
			pattern = "/"
		}
	}
	return pattern
}

// compile turns a cleaned pattern into segments and ordered param names.
func compile(pattern string) ([]segment, []string, error) {
	parts := routepath.Split(pattern)
	segments := make([]segment, 0, len(parts))
	var names []string
	seen := map[string]bool{}

	for i, part := range parts {
		var seg segment
		switch {
		case part == "":
			return nil, nil, invalidPattern(pattern, "empty segment")

		case strings.HasPrefix(part, ":"):
			name, typ, _ := strings.Cut(part[1:], ":")
			if name == "" {
				return nil, nil, invalidPattern(pattern, "parameter without a name")
			}
			if typ != "" && !knownParamType(typ) {
				return nil, nil, invalidPattern(pattern, "unknown parameter type "+typ)
			}
			seg = segment{isParam: true, paramName: name, paramType: typ}

		case strings.HasPrefix(part, "*"):
			if i != len(parts)-1 {
				return nil, nil, invalidPattern(pattern, "catch-all must be the last segment")
			}
			name := part[1:]
			if name == "" {
				return nil, nil, invalidPattern(pattern, "catch-all without a name")
			}
			seg = segment{isCatchAll: true, paramName: name}

		default:
			seg = segment{literal: part}
		}

		if seg.paramName != "" {
			if seen[seg.paramName] {
				return nil, nil, invalidPattern(pattern, "duplicate parameter "+seg.paramName)
			}
			seen[seg.paramName] = true
			names = append(names, seg.paramName)
		}
		segments = append(segments, seg)
	}
	return segments, names, nil
}

func invalidPattern(pattern, reason string) error {
	return errors.New("E105").
		WithPath(pattern).
		WithDetail(reason).
		WithSuggestion("Use patterns like /services/:id or /docs/*rest")
}

// match runs the compiled segments against a normalized path.
func match(segments []segment, path string) (map[string]string, bool) {
	parts := routepath.Split(path)
	params := make(map[string]string)

	for i, seg := range segments {
		if seg.isCatchAll {
			rest := strings.Join(parts[min(i, len(parts)):], "/")
			params[seg.paramName] = decode(rest, true)
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		part := parts[i]
		if !seg.isParam {
			if part != seg.literal {
				return nil, false
			}
			continue
		}
		value := decode(part, false)
		if seg.paramType != "" && ValidateParam(value, seg.paramType) != nil {
			return nil, false
		}
		params[seg.paramName] = value
	}

	if len(parts) != len(segments) {
		return nil, false
	}
	return params, true
}

// decode percent-decodes a captured value, keeping the raw text when it
// does not decode cleanly.
func decode(raw string, catchAll bool) string {
	v, err := routepath.DecodeSegment(raw, catchAll)
	if err != nil {
		return raw
	}
	return v
}
