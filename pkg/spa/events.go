package spa

import (
	"context"
	"encoding/json"
	"time"

	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/router"
)

// RouteChange is delivered to subscribers and dispatched as the
// routeChanged DOM event after every successful swap.
type RouteChange struct {
	Route         *router.Context
	PreviousRoute *router.Context

	// Container is the content container selector.
	Container string
}

// clone gives each subscriber its own contexts, params and query maps.
func (c RouteChange) clone() RouteChange {
	c.Route = c.Route.Clone()
	c.PreviousRoute = c.PreviousRoute.Clone()
	return c
}

// routeInfo is the JSON-safe view of a router.Context.
type routeInfo struct {
	Path          string            `json:"path"`
	Pattern       string            `json:"pattern"`
	Params        map[string]string `json:"params"`
	Query         map[string]string `json:"query"`
	HistoryReplay bool              `json:"isPopState"`
}

func infoOf(c *router.Context) *routeInfo {
	if c == nil {
		return nil
	}
	return &routeInfo{
		Path:          c.Path,
		Pattern:       c.Pattern(),
		Params:        c.Params,
		Query:         c.Query,
		HistoryReplay: c.HistoryReplay,
	}
}

// MarshalJSON encodes the change as the DOM event detail.
func (c RouteChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Route         *routeInfo `json:"route"`
		PreviousRoute *routeInfo `json:"previousRoute"`
		Container     string     `json:"container"`
	}{infoOf(c.Route), infoOf(c.PreviousRoute), c.Container})
}

// Observer is notified of every navigation attempt. NavigationStarted may
// return a derived context (e.g. carrying a trace span) used for the rest
// of the attempt.
type Observer interface {
	NavigationStarted(ctx context.Context, path string) context.Context
	NavigationFinished(ctx context.Context, path string, result Result, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) NavigationStarted(ctx context.Context, _ string) context.Context { return ctx }
func (nopObserver) NavigationFinished(context.Context, string, Result, error, time.Duration) {}

// Subscribe registers fn for route changes. Subscribers run on their own
// goroutine with their own copy of the change, so they may modify it; a
// panic is recovered and logged. The returned func
// unregisters fn.
func (r *Router) Subscribe(fn func(RouteChange)) (unsubscribe func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Router) emitRouteChanged(ctx context.Context, change RouteChange) {
	if err := r.page.Dispatch(ctx, dom.TargetWindow, dom.EventRouteChanged, change); err != nil {
		r.logger.Warn("routeChanged dispatch failed", "path", change.Route.Path, "error", err)
	}

	r.subsMu.Lock()
	fns := make([]func(RouteChange), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subsMu.Unlock()

	for _, fn := range fns {
		r.wg.Add(1)
		own := change.clone()
		go func() {
			defer r.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("route subscriber panicked", "path", own.Route.Path, "panic", rec)
				}
			}()
			fn(own)
		}()
	}
}
