package router

import (
	"slices"
	"sync"
)

// Route is a compiled pattern and its optional handler. Routes are
// immutable after registration.
type Route struct {
	// Pattern is the cleaned pattern as registered.
	Pattern string

	// ParamNames lists the parameters in declaration order.
	ParamNames []string

	// Handler produces the page; nil means fetch over the network.
	Handler Handler

	segments []segment
}

// Match reports whether path is accepted by the route and returns the
// captured params.
func (r *Route) Match(path string) (map[string]string, bool) {
	return match(r.segments, path)
}

// Table is an insertion-ordered route table. It is safe for concurrent
// use; lookups run from preload goroutines while navigations register
// routes.
type Table struct {
	mu     sync.RWMutex
	routes []*Route
	index  map[string]int
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Register compiles pattern and appends it. Registering a pattern that is
// already present replaces its handler and keeps its position.
func (t *Table) Register(pattern string, handler Handler) (*Route, error) {
	pattern = cleanPattern(pattern)
	segments, names, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	route := &Route{
		Pattern:    pattern,
		ParamNames: names,
		Handler:    handler,
		segments:   segments,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.index[pattern]; ok {
		t.routes[i] = route
		return route, nil
	}
	t.index[pattern] = len(t.routes)
	t.routes = append(t.routes, route)
	return route, nil
}

// RegisterIfAbsent registers pattern with handler unless the pattern is
// already present. It reports whether a route was added.
func (t *Table) RegisterIfAbsent(pattern string, handler Handler) (bool, error) {
	if t.Has(pattern) {
		return false, nil
	}
	if _, err := t.Register(pattern, handler); err != nil {
		return false, err
	}
	return true, nil
}

// Find returns the first route, in registration order, that accepts path.
func (t *Table) Find(path string) (*Route, map[string]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, route := range t.routes {
		if params, ok := route.Match(path); ok {
			return route, params, true
		}
	}
	return nil, nil, false
}

// Has reports whether pattern is registered.
func (t *Table) Has(pattern string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[cleanPattern(pattern)]
	return ok
}

// Routes returns the routes in registration order.
func (t *Table) Routes() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.routes)
}

// Len returns the number of registered routes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
