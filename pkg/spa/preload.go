package spa

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// RateLimiter is a token bucket. Requests over the rate are dropped,
// not delayed.
type RateLimiter struct {
	mu            sync.Mutex
	ratePerSecond float64
	tokens        float64
	lastRefill    time.Time
	now           func() time.Time
}

// NewRateLimiter creates a limiter that starts with a full bucket.
func NewRateLimiter(ratePerSecond float64) *RateLimiter {
	return &RateLimiter{
		ratePerSecond: ratePerSecond,
		tokens:        ratePerSecond,
		lastRefill:    time.Now(),
		now:           time.Now,
	}
}

// Allow takes a token if one is available.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.ratePerSecond
	if l.tokens > l.ratePerSecond {
		l.tokens = l.ratePerSecond
	}
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}
	return false
}

// Preloader warms the page cache for links the user is likely to follow.
// Failures are logged at debug level and otherwise ignored.
type Preloader struct {
	r       *Router
	cfg     PreloadConfig
	limiter *RateLimiter
	sem     *semaphore.Weighted

	mu     sync.Mutex
	queued map[string]struct{}
}

func newPreloader(r *Router, cfg PreloadConfig) *Preloader {
	return &Preloader{
		r:       r,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit),
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		queued:  make(map[string]struct{}),
	}
}

// Preload starts warming path in the background. It reports whether a
// preload was started.
func (p *Preloader) Preload(path string) bool {
	path = p.r.norm.Normalize(path)
	if reason := p.skip(path); reason != "" {
		p.r.logger.Debug("preload skipped", "path", path, "reason", reason)
		return false
	}
	if !p.limiter.Allow() {
		p.r.logger.Debug("preload dropped", "path", path, "reason", "rate limited")
		return false
	}
	if !p.sem.TryAcquire(1) {
		p.r.logger.Debug("preload dropped", "path", path, "reason", "concurrency limit")
		return false
	}

	p.mu.Lock()
	if _, ok := p.queued[path]; ok {
		p.mu.Unlock()
		p.sem.Release(1)
		return false
	}
	p.queued[path] = struct{}{}
	p.mu.Unlock()

	p.r.wg.Add(1)
	go func() {
		defer p.r.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			p.mu.Lock()
			delete(p.queued, path)
			p.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(p.r.context(), p.cfg.Timeout)
		defer cancel()
		if err := p.r.fetcher.Warm(ctx, path); err != nil {
			p.r.logger.Debug("preload failed", "path", path, "error", err)
		}
	}()
	return true
}

// Queued reports whether a preload of path is running.
func (p *Preloader) Queued(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.queued[path]
	return ok
}

// skip returns why path should not be preloaded, or "".
func (p *Preloader) skip(path string) string {
	switch {
	case p.r.fetcher.Cache() == nil:
		return "cache disabled"
	case p.r.fetcher.Cached(path):
		return "cached"
	case p.r.fetcher.InFlight(path):
		return "in flight"
	case p.Queued(path):
		return "queued"
	}
	route, _, ok := p.r.table.Find(path)
	switch {
	case !ok:
		return "no route"
	case route.Handler != nil:
		return "custom handler"
	}
	return ""
}

// Preloader returns the router's preloader.
func (r *Router) Preloader() *Preloader {
	return r.preloader
}
