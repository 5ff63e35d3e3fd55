// Package routepath canonicalizes URLs and paths into the router's
// internal path form.
//
// A normalized path always starts with "/", never ends with "/" (except
// the root itself), carries no query string or fragment, has repeated
// slashes collapsed and "." / ".." segments resolved, and has the site's
// base prefix removed. Two paths name the same page iff their normalized
// forms are byte-equal.
package routepath

import (
	"net/url"
	"strings"
)

// Normalizer canonicalizes raw hrefs for one site. It is immutable and
// safe for concurrent use.
type Normalizer struct {
	// base is the cleaned base prefix ("" when the site lives at the root).
	base string

	// origin is the site's scheme and host, nil when unknown.
	origin *url.URL
}

// NewNormalizer creates a normalizer for a site mounted under base and
// served from origin (e.g. "https://architech.example"). Both may be empty.
func NewNormalizer(base, origin string) (*Normalizer, error) {
	n := &Normalizer{}
	if b := clean(base); b != "/" {
		n.base = b
	}
	if origin != "" {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, err
		}
		n.origin = &url.URL{Scheme: u.Scheme, Host: u.Host}
	}
	return n, nil
}

// Base returns the cleaned base prefix, "" for a root-mounted site.
func (n *Normalizer) Base() string { return n.base }

// Origin returns the configured origin, or nil.
func (n *Normalizer) Origin() *url.URL {
	if n.origin == nil {
		return nil
	}
	u := *n.origin
	return &u
}

// Normalize canonicalizes raw, which may be an absolute URL, a
// protocol-relative URL or a path, possibly with query and fragment.
// Empty input yields "/". Normalize is idempotent.
func (n *Normalizer) Normalize(raw string) string {
	p := clean(stripOrigin(strings.TrimSpace(raw)))
	return n.stripBase(p)
}

// stripBase removes every leading occurrence of the base prefix. Removing
// it repeatedly keeps Normalize idempotent for paths like /base/base/x.
func (n *Normalizer) stripBase(p string) string {
	if n.base == "" {
		return p
	}
	for {
		switch {
		case p == n.base:
			return "/"
		case strings.HasPrefix(p, n.base+"/"):
			p = p[len(n.base):]
		default:
			return p
		}
	}
}

// Href turns a normalized path back into the address-bar form by
// re-applying the base prefix.
func (n *Normalizer) Href(path string) string {
	if n.base == "" {
		return path
	}
	if path == "/" {
		return n.base + "/"
	}
	return n.base + path
}

// Resolve resolves href against the page currently shown at current (a
// normalized path) the way a browser resolves an anchor's href, and
// returns the normalized result.
func (n *Normalizer) Resolve(href, current string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return n.Normalize(href)
	}
	doc := &url.URL{Path: n.Href(current)}
	if n.origin != nil {
		doc.Scheme, doc.Host = n.origin.Scheme, n.origin.Host
	}
	return n.Normalize(doc.ResolveReference(ref).String())
}

// IsInternal reports whether href points at a page of this site that the
// router may handle: not a mailto:/tel:/javascript: link, not a bare
// fragment, and on the same host when a host is given.
func (n *Normalizer) IsInternal(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return true
	}
	if n.origin == nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), n.origin.Hostname())
}

// ParseQuery extracts the query parameters of raw. Only the first value
// of a repeated key is kept.
func ParseQuery(raw string) map[string]string {
	out := map[string]string{}
	_, query, ok := strings.Cut(raw, "?")
	if !ok {
		return out
	}
	query, _, _ = strings.Cut(query, "#")
	values, err := url.ParseQuery(query)
	if err != nil && len(values) == 0 {
		return out
	}
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// stripOrigin drops scheme, host, query and fragment, leaving the path.
func stripOrigin(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return raw
	}
	if strings.HasPrefix(raw, "//") || strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.EscapedPath()
		}
	}
	return raw
}

// clean collapses slashes, resolves dot segments (clamped at the root) and
// removes the trailing slash.
func clean(p string) string {
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/")
}
