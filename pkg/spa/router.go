package spa

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/dom"
	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/history"
	"github.com/architech/spanav/pkg/pagecache"
	"github.com/architech/spanav/pkg/routepath"
	"github.com/architech/spanav/pkg/router"
)

// Router is the navigation controller for one page session. Create it
// with New; there is no package-level router.
type Router struct {
	cfg       *Config
	norm      *routepath.Normalizer
	table     *router.Table
	guards    router.Pipeline
	fetcher   *fetch.Fetcher
	history   *history.Bridge
	page      dom.Page
	preloader *Preloader
	observer  Observer
	logger    *slog.Logger

	// sleep waits between transition steps.
	sleep func(ctx context.Context, d time.Duration) error

	navigating atomic.Bool
	started    atomic.Bool

	mu       sync.RWMutex
	current  *router.Context
	previous *router.Context
	baseCtx  context.Context
	cancel   context.CancelFunc
	unsubPop func()

	// pending is the latest history pop rejected while busy.
	pendingMu sync.Mutex
	pending   *history.Entry

	subsMu  sync.Mutex
	subs    map[int]func(RouteChange)
	nextSub int

	wg sync.WaitGroup
}

// New creates a router rendering into p and writing history to stack.
// A nil cfg uses DefaultConfig.
func New(p dom.Page, stack history.Stack, cfg *Config) (*Router, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	cfg.applyDefaults()

	norm, err := routepath.NewNormalizer(cfg.Base, cfg.Origin)
	if err != nil {
		return nil, errors.New("E120").Wrap(err).WithDetail("invalid origin " + cfg.Origin)
	}

	var cache *pagecache.Cache
	if cfg.CachePages {
		cache = pagecache.New(pagecache.Options{
			Capacity: cfg.CacheSize,
			Policy:   cfg.CachePolicy,
			TTL:      cfg.CacheTTL,
		})
	}
	fetcher, err := fetch.New(fetch.Options{
		Transport:         cfg.Transport,
		Cache:             cache,
		ContainerSelector: cfg.ContainerSelector,
		Href:              norm.Href,
		OnFetch:           cfg.OnFetch,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		cfg:      cfg,
		norm:     norm,
		table:    router.NewTable(),
		fetcher:  fetcher,
		history:  history.NewBridge(stack, norm.Href),
		page:     p,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		sleep:    sleepContext,
		baseCtx:  ctx,
		cancel:   cancel,
		subs:     make(map[int]func(RouteChange)),
	}
	r.preloader = newPreloader(r, cfg.Preload)
	return r, nil
}

// Route registers pattern. A nil handler fetches the page over the
// network. The pattern is normalized like a path (base prefix stripped).
func (r *Router) Route(pattern string, handler router.Handler) error {
	_, err := r.table.Register(r.norm.Normalize(pattern), handler)
	return err
}

// HasRoute reports whether pattern is registered.
func (r *Router) HasRoute(pattern string) bool {
	return r.table.Has(r.norm.Normalize(pattern))
}

// Use appends navigation guards.
func (r *Router) Use(guards ...router.Guard) {
	r.guards.Use(guards...)
}

// Start wires the router to its page: it registers the current page and
// every internal link found in the document, seeds the current route from
// the address bar without re-rendering, and starts listening for history
// pops. ctx bounds background work (pop replays and preloads) until Close.
func (r *Router) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	prev := r.cancel
	r.baseCtx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()
	prev()

	loc, err := r.page.Path(ctx)
	if err != nil {
		return errors.New("E104").Wrap(err).WithDetail("reading the current location")
	}
	current := r.norm.Normalize(loc)

	// The landing page is a same-origin page too; history replays need it.
	if _, _, ok := r.table.Find(current); !ok {
		if _, err := r.table.RegisterIfAbsent(current, nil); err != nil {
			r.logger.Debug("skipping current page route", "path", current, "error", err)
		}
	}
	if err := r.registerLinks(ctx, current); err != nil {
		r.logger.Warn("link discovery failed", "error", err)
	}

	nav := &router.Context{Path: current, Query: routepath.ParseQuery(loc), Params: map[string]string{}}
	if route, params, ok := r.table.Find(current); ok {
		nav.Route, nav.Params = route, params
	}
	if e, ok := r.history.Current(); ok {
		nav.State = e.State.Caller
	}
	r.mu.Lock()
	r.current = nav
	r.mu.Unlock()

	r.unsubPop = r.history.OnPop(r.handlePop)
	r.logger.Info("router started", "path", current, "routes", r.table.Len())
	return nil
}

// registerLinks adds a network route for every internal anchor.
func (r *Router) registerLinks(ctx context.Context, current string) error {
	links, err := r.page.Links(ctx)
	if err != nil {
		return err
	}
	for _, l := range links {
		if l.External || !r.norm.IsInternal(l.Href) {
			continue
		}
		path := r.norm.Resolve(l.Href, current)
		if _, err := r.table.RegisterIfAbsent(path, nil); err != nil {
			r.logger.Debug("skipping link", "href", l.Href, "error", err)
		}
	}
	return nil
}

// Close stops listening for history pops and waits for background work.
func (r *Router) Close() {
	if r.unsubPop != nil {
		r.unsubPop()
	}
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()
	cancel()
	r.wg.Wait()
}

// Wait blocks until background work (subscribers, preloads, pop
// replays) has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// CurrentRoute returns a copy of the current navigation context, or nil.
func (r *Router) CurrentRoute() *router.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Clone()
}

// PreviousRoute returns a copy of the previous navigation context, or nil.
func (r *Router) PreviousRoute() *router.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.previous.Clone()
}

// CanGoBack reports whether the history has more than one entry.
func (r *Router) CanGoBack() bool {
	return r.history.CanGoBack()
}

// Navigating reports whether a navigation is in flight.
func (r *Router) Navigating() bool {
	return r.navigating.Load()
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*router.Route {
	return r.table.Routes()
}

// Normalizer returns the router's path normalizer.
func (r *Router) Normalizer() *routepath.Normalizer {
	return r.norm
}

// Cache returns the page cache, or nil when caching is disabled.
func (r *Router) Cache() *pagecache.Cache {
	return r.fetcher.Cache()
}

// ClearCache empties the page cache.
func (r *Router) ClearCache() {
	r.fetcher.Clear()
}

// Invalidate drops one page from the cache. raw may be any href.
func (r *Router) Invalidate(raw string) {
	r.fetcher.Invalidate(r.norm.Normalize(raw))
}

func (r *Router) context() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseCtx
}

func (r *Router) setCurrent(nav *router.Context) *router.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.current
	r.previous = prev
	r.current = nav
	return prev
}
