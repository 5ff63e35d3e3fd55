package spa

import (
	"context"
	"fmt"
	"time"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/history"
	"github.com/architech/spanav/pkg/routepath"
	"github.com/architech/spanav/pkg/router"
)

// NavigateOptions configures a navigation.
type NavigateOptions struct {
	// State is the caller's opaque history state.
	State any

	// Replace rewrites the current history entry instead of pushing.
	Replace bool

	// Force navigates even to the current path and bypasses the cache.
	Force bool
}

// NavigateOption is a functional option for Navigate.
type NavigateOption func(*NavigateOptions)

// WithState attaches caller state to the history entry.
func WithState(state any) NavigateOption {
	return func(o *NavigateOptions) {
		o.State = state
	}
}

// WithReplace replaces the current history entry instead of pushing.
func WithReplace() NavigateOption {
	return func(o *NavigateOptions) {
		o.Replace = true
	}
}

// WithForce re-renders the target even if it is shown, bypassing the
// page cache.
func WithForce() NavigateOption {
	return func(o *NavigateOptions) {
		o.Force = true
	}
}

// request is one navigation attempt.
type request struct {
	raw     string
	state   any
	replace bool
	force   bool
	replay  bool
	scrollY float64
}

// Navigate performs a client-side navigation to raw (any href form).
func (r *Router) Navigate(ctx context.Context, raw string, opts ...NavigateOption) (Result, error) {
	var o NavigateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return r.navigate(ctx, request{raw: raw, state: o.State, replace: o.Replace, force: o.Force})
}

// Push navigates to raw and pushes a history entry.
func (r *Router) Push(ctx context.Context, raw string, state any) (Result, error) {
	return r.navigate(ctx, request{raw: raw, state: state})
}

// Replace navigates to raw and rewrites the current history entry.
func (r *Router) Replace(ctx context.Context, raw string, state any) (Result, error) {
	return r.navigate(ctx, request{raw: raw, state: state, replace: true})
}

// Refresh drops the current page from the cache and renders it again,
// replacing the current history entry.
func (r *Router) Refresh(ctx context.Context) (Result, error) {
	cur := r.CurrentRoute()
	if cur == nil {
		loc, err := r.page.Path(ctx)
		if err != nil {
			return ResultFallback, errors.New("E104").Wrap(err)
		}
		cur = &router.Context{Path: r.norm.Normalize(loc)}
	}
	r.fetcher.Invalidate(cur.Path)
	return r.navigate(ctx, request{raw: cur.Path, state: cur.State, replace: true, force: true})
}

// Back moves one history entry back. The resulting pop re-enters the
// router as a replay.
func (r *Router) Back() error {
	return r.history.Back()
}

// Forward moves one history entry forward.
func (r *Router) Forward() error {
	return r.history.Forward()
}

// handlePop replays a history entry. A pop that arrives while another
// navigation is in flight is kept (latest wins) and replayed once that
// navigation settles, so the page converges with the address bar.
func (r *Router) handlePop(e history.Entry) {
	res, err := r.replay(r.context(), e)
	if res != ResultBusy {
		if err != nil {
			r.logger.Debug("history replay ended", "url", e.URL, "result", res.String(), "error", err)
		}
		return
	}

	r.pendingMu.Lock()
	r.pending = &e
	r.pendingMu.Unlock()

	// The in-flight navigation may have settled before pending was set.
	if !r.navigating.Load() {
		r.drainPending()
	}
}

func (r *Router) replay(ctx context.Context, e history.Entry) (Result, error) {
	return r.navigate(ctx, request{
		raw:     e.URL,
		state:   e.State.Caller,
		replay:  true,
		scrollY: e.State.ScrollY,
	})
}

// drainPending runs the pending replay, if any, in the background.
func (r *Router) drainPending() {
	r.pendingMu.Lock()
	e := r.pending
	r.pending = nil
	r.pendingMu.Unlock()
	if e == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.handlePop(*e)
	}()
}

// navigate is the state machine. Every exit path clears the in-flight
// flag.
func (r *Router) navigate(ctx context.Context, req request) (res Result, err error) {
	target := r.norm.Normalize(req.raw)
	start := time.Now()
	ctx = r.observer.NavigationStarted(ctx, target)
	defer func() {
		r.observer.NavigationFinished(ctx, target, res, err, time.Since(start))
	}()

	if !r.navigating.CompareAndSwap(false, true) {
		return ResultBusy, nil
	}
	defer func() {
		r.navigating.Store(false)
		r.drainPending()
	}()

	if !req.force && !req.replay {
		if cur := r.CurrentRoute(); cur != nil && cur.Path == target {
			return ResultUnchanged, nil
		}
	}

	route, params, ok := r.table.Find(target)
	if !ok {
		return r.fallback(ctx, target, errors.New("E100").WithPath(target))
	}
	nav := &router.Context{
		Path:          target,
		Route:         route,
		Params:        params,
		Query:         routepath.ParseQuery(req.raw),
		State:         req.state,
		HistoryReplay: req.replay,
		ScrollY:       req.scrollY,
		Force:         req.force,
	}

	allowed, gerr := r.guards.Run(ctx, target, req.state, r.CurrentRoute())
	if gerr != nil {
		r.logger.Warn("guard failed", "path", target, "error", gerr)
		return ResultRejected, errors.New("E102").WithPath(target).Wrap(gerr)
	}
	if !allowed {
		r.logger.Debug("navigation rejected", "path", target)
		return ResultRejected, nil
	}

	if !req.replay {
		if err := r.writeHistory(ctx, req, target); err != nil {
			return r.fallback(ctx, target, errors.New("E104").WithPath(target).Wrap(err))
		}
	}

	return r.execute(ctx, nav)
}

// writeHistory saves the scroll offset into the entry being left, then
// pushes or replaces the target entry.
func (r *Router) writeHistory(ctx context.Context, req request, target string) error {
	if req.replace {
		return r.history.Replace(target, req.state)
	}
	if y, err := r.page.ScrollY(ctx); err == nil {
		if err := r.history.SaveScroll(y); err != nil {
			r.logger.Debug("saving scroll offset failed", "error", err)
		}
	}
	return r.history.Push(target, req.state)
}

// execute fetches and renders nav.
func (r *Router) execute(ctx context.Context, nav *router.Context) (Result, error) {
	r.setLoading(ctx, true)
	defer r.setLoading(context.WithoutCancel(ctx), false)

	payload, err := r.fetcher.Fetch(ctx, nav)
	if err != nil {
		return r.fallback(ctx, nav.Path, errors.FromError(err, "E101").WithPath(nav.Path))
	}

	prev := r.setCurrent(nav)
	if err := r.swap(ctx, nav, payload); err != nil {
		return r.fallback(ctx, nav.Path, errors.New("E104").WithPath(nav.Path).Wrap(err))
	}
	r.restoreScroll(ctx, nav)

	r.emitRouteChanged(ctx, RouteChange{
		Route:         nav.Clone(),
		PreviousRoute: prev.Clone(),
		Container:     r.cfg.ContainerSelector,
	})
	r.logger.Debug("navigated", "path", nav.Path, "pattern", nav.Pattern(), "replay", nav.HistoryReplay)
	return ResultNavigated, nil
}

// fallback abandons client-side rendering and sends the browser to path
// with a full page load. Every unrecoverable failure ends here.
func (r *Router) fallback(ctx context.Context, path string, cause error) (Result, error) {
	href := r.norm.Href(path)
	r.logger.Warn("falling back to full page load", "path", path, "error", cause)
	if err := r.page.Assign(context.WithoutCancel(ctx), href); err != nil {
		r.logger.Error("full page load failed", "href", href, "error", err)
		return ResultFallback, fmt.Errorf("%w (full page load: %v)", cause, err)
	}
	return ResultFallback, cause
}

func (r *Router) setLoading(ctx context.Context, on bool) {
	if err := r.page.SetLoading(ctx, on); err != nil {
		r.logger.Debug("toggling loading state failed", "error", err)
	}
}
