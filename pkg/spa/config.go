package spa

import (
	"log/slog"
	"time"

	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/pagecache"
)

// Config holds router configuration.
type Config struct {
	// Base is the prefix the site is mounted under (e.g. "/site").
	Base string

	// Origin is the site's scheme and host. Links to other hosts are
	// never handled. Empty means only host-less links are internal.
	Origin string

	// ContainerSelector selects the content container in fetched pages.
	// Default: "main".
	ContainerSelector string

	// TransitionDuration is the length of each fade step. Zero disables
	// the waits but still applies the transition styles.
	// Default: 300ms (set by DefaultConfig).
	TransitionDuration time.Duration

	// CachePages enables the page cache.
	// Default: true.
	CachePages bool

	// CacheSize is the page cache capacity.
	// Default: 10.
	CacheSize int

	// CachePolicy is the page cache eviction policy.
	// Default: pagecache.PolicyFIFO.
	CachePolicy pagecache.Policy

	// CacheTTL expires cached pages. Zero keeps them until evicted.
	CacheTTL time.Duration

	// EnablePreload enables hover and visibility preloading.
	// Default: true.
	EnablePreload bool

	// Preload tunes the preloader.
	Preload PreloadConfig

	// ScrollToTop scrolls to the top after forward navigations.
	// Default: true.
	ScrollToTop bool

	// UpdateTitle applies the fetched page's title.
	// Default: true.
	UpdateTitle bool

	// Transport fetches pages over the network.
	Transport fetch.Transport

	// OnFetch observes every fetch. It must not block.
	OnFetch func(fetch.Event)

	// Observer observes navigations. Default: no-op.
	Observer Observer

	// Logger is the structured logger.
	// Default: slog.Default().
	Logger *slog.Logger
}

// PreloadConfig tunes the preloader.
type PreloadConfig struct {
	// RateLimit is the maximum number of preloads started per second.
	// Excess requests are dropped.
	// Default: 5.
	RateLimit float64

	// Concurrency is the maximum number of preloads in flight.
	// Default: 2.
	Concurrency int

	// Timeout bounds a single preload.
	// Default: 10 seconds.
	Timeout time.Duration
}

// DefaultConfig returns a Config with the defaults above.
func DefaultConfig() *Config {
	return &Config{
		ContainerSelector:  "main",
		TransitionDuration: 300 * time.Millisecond,
		CachePages:         true,
		CacheSize:          pagecache.DefaultCapacity,
		CachePolicy:        pagecache.PolicyFIFO,
		EnablePreload:      true,
		Preload:            DefaultPreloadConfig(),
		ScrollToTop:        true,
		UpdateTitle:        true,
	}
}

// DefaultPreloadConfig returns the preloader defaults.
func DefaultPreloadConfig() PreloadConfig {
	return PreloadConfig{
		RateLimit:   5,
		Concurrency: 2,
		Timeout:     10 * time.Second,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// applyDefaults fills zero values that have no meaningful zero meaning.
func (c *Config) applyDefaults() {
	if c.ContainerSelector == "" {
		c.ContainerSelector = "main"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = pagecache.DefaultCapacity
	}
	if c.CachePolicy == "" {
		c.CachePolicy = pagecache.PolicyFIFO
	}
	if c.Preload.RateLimit <= 0 {
		c.Preload.RateLimit = 5
	}
	if c.Preload.Concurrency <= 0 {
		c.Preload.Concurrency = 2
	}
	if c.Preload.Timeout <= 0 {
		c.Preload.Timeout = 10 * time.Second
	}
	if c.TransitionDuration < 0 {
		c.TransitionDuration = 0
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
