// Package pagecache is the bounded in-memory store of fetched pages,
// keyed by normalized path.
//
// The default policy evicts the least-recently-inserted entry once the
// capacity is reached (FIFO). PolicyLRU evicts the least-recently-used
// entry instead.
package pagecache

import (
	"container/list"
	"sync"
	"time"

	"github.com/architech/spanav/pkg/page"
)

// DefaultCapacity is the capacity used when Options.Capacity is not set.
const DefaultCapacity = 10

// Policy selects the eviction order.
type Policy string

const (
	// PolicyFIFO evicts by insertion order. Reads never reorder.
	PolicyFIFO Policy = "fifo"

	// PolicyLRU evicts by access order. Get and Set move an entry to the
	// most-recent end.
	PolicyLRU Policy = "lru"
)

// Options configures a Cache.
type Options struct {
	// Capacity is the maximum number of entries.
	// Default: 10
	Capacity int

	// Policy is the eviction policy.
	// Default: PolicyFIFO
	Policy Policy

	// TTL expires entries after the given age. Zero keeps entries until
	// they are evicted or cleared.
	TTL time.Duration
}

// Entry is a cached page.
type Entry struct {
	Key        string
	Payload    *page.Payload
	InsertedAt time.Time
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*list.Element
	order   *list.List // front = next to evict
	bytes   int64
	stats   Stats
	now     func() time.Time
}

// New creates a cache.
func New(opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Policy != PolicyLRU {
		opts.Policy = PolicyFIFO
	}
	return &Cache{
		opts:    opts,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Capacity returns the configured capacity.
func (c *Cache) Capacity() int { return c.opts.Capacity }

// Policy returns the configured eviction policy.
func (c *Cache) Policy() Policy { return c.opts.Policy }

// Get returns the cached payload for path.
func (c *Cache) Get(path string) (*page.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.lookup(path)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	if c.opts.Policy == PolicyLRU {
		c.order.MoveToBack(elem)
	}
	return elem.Value.(*Entry).Payload, true
}

// Has reports whether path is cached. It does not count as an access.
func (c *Cache) Has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(path)
	return ok
}

// Set stores payload under path, evicting one entry if the cache is full.
// Replacing an existing key keeps its insertion position under FIFO.
func (c *Cache) Set(path string, payload *page.Payload) {
	if payload == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[path]; ok {
		entry := elem.Value.(*Entry)
		c.bytes += payload.Size() - entry.Payload.Size()
		entry.Payload = payload
		if c.opts.Policy == PolicyLRU {
			entry.InsertedAt = c.now()
			c.order.MoveToBack(elem)
		}
		return
	}

	for c.order.Len() >= c.opts.Capacity {
		c.removeElement(c.order.Front())
		c.stats.Evictions++
	}

	elem := c.order.PushBack(&Entry{Key: path, Payload: payload, InsertedAt: c.now()})
	c.entries[path] = elem
	c.bytes += payload.Size()
}

// Delete removes path. It reports whether an entry was removed.
func (c *Cache) Delete(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[path]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Clear removes all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order = list.New()
	c.bytes = 0
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached paths, next-to-evict first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*Entry).Key)
	}
	return keys
}

// Entries returns a snapshot of the entries, next-to-evict first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		out = append(out, *e.Value.(*Entry))
	}
	return out
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	s.Bytes = c.bytes
	return s
}

// lookup finds a live entry, dropping it if it expired. Caller holds mu.
func (c *Cache) lookup(path string) (*list.Element, bool) {
	elem, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if c.opts.TTL > 0 && c.now().Sub(elem.Value.(*Entry).InsertedAt) > c.opts.TTL {
		c.removeElement(elem)
		return nil, false
	}
	return elem, true
}

// removeElement unlinks elem. Caller holds mu.
func (c *Cache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	entry := elem.Value.(*Entry)
	c.bytes -= entry.Payload.Size()
	c.order.Remove(elem)
	delete(c.entries, entry.Key)
}
