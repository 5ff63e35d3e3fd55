package router

import (
	"context"
	"maps"

	"github.com/architech/spanav/pkg/page"
)

// Handler produces the payload for a route instead of fetching it over
// the network. A nil Handler means "fetch over the network".
type Handler func(ctx context.Context, nav *Context) (*page.Payload, error)

// Context describes one navigation attempt. It is created per attempt and
// discarded once the attempt settles.
type Context struct {
	// Path is the normalized target path.
	Path string

	// Route is the matched route.
	Route *Route

	// Params are the values captured by the route's parameters.
	Params map[string]string

	// Query holds the first value of each query parameter of the target.
	Query map[string]string

	// State is the caller's opaque history state.
	State any

	// HistoryReplay is set for back/forward navigations. It suppresses the
	// history write and restores ScrollY instead of scrolling to the top.
	HistoryReplay bool

	// ScrollY is the scroll offset saved in the replayed history entry.
	ScrollY float64

	// Force bypasses the page cache.
	Force bool
}

// Param returns the named parameter, or "".
func (c *Context) Param(name string) string {
	if c == nil {
		return ""
	}
	return c.Params[name]
}

// Clone returns a copy of the context with its own maps.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Params = maps.Clone(c.Params)
	cp.Query = maps.Clone(c.Query)
	return &cp
}

// Pattern returns the matched route's pattern, or "".
func (c *Context) Pattern() string {
	if c == nil || c.Route == nil {
		return ""
	}
	return c.Route.Pattern
}
