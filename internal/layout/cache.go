package layout

import (
	"container/list"
	"sync"
)

// CacheConfig sizes a chunk cache.
type CacheConfig struct {
	Bytes int64 // total decoded bytes held
	Slots int   // maximum number of chunks held
	// Preemption is carried for reporting. Eviction is least recently used
	// regardless of it.
	Preemption float64
}

// DefaultCacheConfig matches the default chunk cache of the HDF5 library.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Bytes: 16 << 20, Slots: 4133, Preemption: 0.75}
}

// CacheStats counts cache lookups.
type CacheStats struct {
	Hits, Misses uint64
	Chunks       int
	Bytes        int64
}

// Cache holds decoded chunks keyed by file address. It is safe for
// concurrent use.
type Cache struct {
	cfg CacheConfig

	mu      sync.Mutex
	order   *list.List // front is most recent
	entries map[uint64]*list.Element
	bytes   int64
	hits    uint64
	misses  uint64
}

type cacheEntry struct {
	addr uint64
	data []byte
}

// NewCache returns an empty cache. A zero Bytes or Slots disables caching.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{cfg: cfg, order: list.New(), entries: make(map[uint64]*list.Element)}
}

// Config returns the configuration the cache was built with.
func (c *Cache) Config() CacheConfig { return c.cfg }

// Get returns the chunk stored at addr.
func (c *Cache) Get(addr uint64) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[addr]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

// Put stores a decoded chunk. Chunks larger than the byte budget are not kept.
func (c *Cache) Put(addr uint64, data []byte) {
	if c == nil || c.cfg.Slots <= 0 || int64(len(data)) > c.cfg.Bytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[addr]; ok {
		e := el.Value.(*cacheEntry)
		c.bytes += int64(len(data)) - int64(len(e.data))
		e.data = data
		c.order.MoveToFront(el)
	} else {
		c.entries[addr] = c.order.PushFront(&cacheEntry{addr: addr, data: data})
		c.bytes += int64(len(data))
	}
	for c.bytes > c.cfg.Bytes || c.order.Len() > c.cfg.Slots {
		c.evict()
	}
}

func (c *Cache) evict() {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := c.order.Remove(el).(*cacheEntry)
	delete(c.entries, e.addr)
	c.bytes -= int64(len(e.data))
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Chunks: c.order.Len(), Bytes: c.bytes}
}
