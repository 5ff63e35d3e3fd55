package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/page"
	"github.com/architech/spanav/pkg/pagecache"
	"github.com/architech/spanav/pkg/router"
)

// Source names where a payload came from.
type Source string

const (
	SourceHandler Source = "handler"
	SourceCache   Source = "cache"
	SourceShared  Source = "shared"
	SourceNetwork Source = "network"
)

// Event describes one settled Fetch or Warm call.
type Event struct {
	Path     string
	Source   Source
	Duration time.Duration
	Err      error
}

// Options configures a Fetcher.
type Options struct {
	// Transport issues network requests. Required unless every route has
	// a handler.
	Transport Transport

	// Cache stores network payloads. Nil disables caching.
	Cache *pagecache.Cache

	// ContainerSelector selects the content container in full HTML
	// responses. Default: "main"
	ContainerSelector string

	// Href maps a normalized path to the request path (base prefix
	// included). Default: identity.
	Href func(path string) string

	// OnFetch is called after every Fetch and Warm. It must not block.
	OnFetch func(Event)

	// Logger is the structured logger. Default: slog.Default()
	Logger *slog.Logger
}

// Fetcher resolves navigations to payloads. It is safe for concurrent use.
type Fetcher struct {
	transport Transport
	cache     *pagecache.Cache
	extractor *Extractor
	href      func(string) string
	onFetch   func(Event)
	logger    *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]int
}

// New creates a fetcher. It fails only on an invalid container selector.
func New(opts Options) (*Fetcher, error) {
	extractor, err := NewExtractor(opts.ContainerSelector)
	if err != nil {
		return nil, errors.New("E120").
			Wrap(err).
			WithDetail(fmt.Sprintf("invalid container selector %q", opts.ContainerSelector))
	}
	f := &Fetcher{
		transport: opts.Transport,
		cache:     opts.Cache,
		extractor: extractor,
		href:      opts.Href,
		onFetch:   opts.OnFetch,
		logger:    opts.Logger,
		inflight:  make(map[string]int),
	}
	if f.href == nil {
		f.href = func(p string) string { return p }
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f, nil
}

// Fetch returns the payload for a navigation.
func (f *Fetcher) Fetch(ctx context.Context, nav *router.Context) (*page.Payload, error) {
	start := time.Now()

	if nav.Route != nil && nav.Route.Handler != nil {
		p, err := f.fromHandler(ctx, nav)
		f.emit(nav.Path, SourceHandler, start, err)
		return p, err
	}

	if f.cache != nil && !nav.Force {
		if p, ok := f.cache.Get(nav.Path); ok {
			f.emit(nav.Path, SourceCache, start, nil)
			return p, nil
		}
	}

	p, shared, err := f.network(ctx, nav.Path)
	source := SourceNetwork
	if shared {
		source = SourceShared
	}
	f.emit(nav.Path, source, start, err)
	return p, err
}

// Warm loads path over the network into the cache, joining an identical
// request already in flight.
func (f *Fetcher) Warm(ctx context.Context, path string) error {
	start := time.Now()
	_, shared, err := f.network(ctx, path)
	source := SourceNetwork
	if shared {
		source = SourceShared
	}
	f.emit(path, source, start, err)
	return err
}

// InFlight reports whether a network request for path is pending.
func (f *Fetcher) InFlight(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight[path] > 0
}

// Cached reports whether path is in the cache.
func (f *Fetcher) Cached(path string) bool {
	return f.cache != nil && f.cache.Has(path)
}

// Invalidate drops path from the cache.
func (f *Fetcher) Invalidate(path string) {
	if f.cache != nil {
		f.cache.Delete(path)
	}
}

// Clear empties the cache.
func (f *Fetcher) Clear() {
	if f.cache != nil {
		f.cache.Clear()
	}
}

// Cache returns the page cache, or nil when caching is disabled.
func (f *Fetcher) Cache() *pagecache.Cache { return f.cache }

func (f *Fetcher) fromHandler(ctx context.Context, nav *router.Context) (*page.Payload, error) {
	p, err := nav.Route.Handler(ctx, nav)
	if err != nil {
		return nil, errors.FromError(err, "E101").WithPath(nav.Path)
	}
	if !p.Valid() {
		return nil, errors.New("E106").WithPath(nav.Path)
	}
	return p, nil
}

// network runs one de-duplicated transport request. The shared request
// is detached from the first caller's cancellation so a caller that gives
// up does not fail the others; each caller still stops waiting when its
// own ctx ends.
func (f *Fetcher) network(ctx context.Context, path string) (*page.Payload, bool, error) {
	if f.transport == nil {
		return nil, false, errors.New("E101").WithPath(path).WithDetail("no transport configured")
	}

	ch := f.group.DoChan(path, func() (any, error) {
		f.track(path, 1)
		defer f.track(path, -1)
		return f.load(context.WithoutCancel(ctx), path)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*page.Payload), res.Shared, nil
	case <-ctx.Done():
		return nil, false, errors.New("E101").WithPath(path).Wrap(ctx.Err())
	}
}

func (f *Fetcher) load(ctx context.Context, path string) (*page.Payload, error) {
	href := f.href(path)
	resp, err := f.transport.Get(ctx, href, PartialHeader())
	if err != nil {
		return nil, errors.New("E101").WithPath(path).Wrap(err)
	}
	if !resp.OK() {
		return nil, errors.New("E101").
			WithPath(path).
			WithDetail(fmt.Sprintf("server answered HTTP %d", resp.Status))
	}

	// An empty container is a valid page; scripts may fill it later.
	p, err := f.parse(resp, href)
	if err != nil {
		return nil, errors.New("E106").WithPath(path).Wrap(err)
	}

	if f.cache != nil {
		f.cache.Set(path, p)
	}
	f.logger.Debug("page fetched", "path", path, "bytes", len(resp.Body))
	return p, nil
}

func (f *Fetcher) parse(resp *Response, href string) (*page.Payload, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.ContentType)
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		return page.DecodeJSON(resp.Body)
	}
	return f.extractor.Extract(resp.Body, href)
}

func (f *Fetcher) track(path string, delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[path] += delta
	if f.inflight[path] <= 0 {
		delete(f.inflight, path)
	}
}

func (f *Fetcher) emit(path string, source Source, start time.Time, err error) {
	if f.onFetch == nil {
		return
	}
	f.onFetch(Event{Path: path, Source: source, Duration: time.Since(start), Err: err})
}
