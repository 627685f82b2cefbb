// Package tilecache implements the bounded, reference-counted, pinning
// tile cache of spec.md §4.1: a process-wide pool of decoded tile buffers
// keyed by (level, col, row), shared across one or more Slides through a
// single binding.
package tilecache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Key addresses one cached tile.
type Key struct {
	Level, Col, Row int
}

// Token is the opaque pinned handle returned by Get and Put. Callers must
// pass it to Release exactly once when done reading the tile's data.
//
// Token carries the *entry it pinned, not just its Key: Release decrements
// that entry directly rather than looking the key back up in the LRU. A
// lookup-by-key would be wrong if a second Put for the same Key had since
// run (e.g. two goroutines racing to fill the same miss) and replaced the
// map's value — Release would then decrement the wrong entry's pin count.
type Token struct {
	key   Key
	entry *entry
	valid bool
}

type entry struct {
	data []byte
	size int64
	pins int
}

// hugeItemCap bounds golang-lru's own entry-count capacity far above
// anything this cache will ever hold — the cache's real capacity control
// is the byte budget tracked below, since golang-lru v1's built-in
// eviction is item-count based, not byte-size based.
const hugeItemCap = 1 << 20

// Cache is the bounded, reference-counted, pinning tile cache. It wraps
// github.com/hashicorp/golang-lru for MRU/LRU ordering — grounded on
// Echoflaresat-spacecam's texture/tiff/tiled.go, the pack's only exercised
// use of golang-lru, which caches decoded TIFF tile bytes keyed by tile
// index — and layers byte-size accounting plus pin-aware eviction on top.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache // Key -> *entry
	capacity int64
	used     int64
	disabled bool
}

// New returns a Cache with the given byte capacity.
func New(capacityBytes int64) *Cache {
	l, _ := lru.New(hugeItemCap)
	return &Cache{lru: l, capacity: capacityBytes}
}

// Get returns a pinned reference to the cached tile at (level, col, row),
// or a miss. A hit refreshes the entry's recency and increments its pin
// count; the caller must Release the returned token.
func (c *Cache) Get(level, col, row int) (data []byte, token Token, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return nil, Token{}, false
	}
	k := Key{level, col, row}
	v, found := c.lru.Get(k)
	if !found {
		return nil, Token{}, false
	}
	e := v.(*entry)
	e.pins++
	return e.data, Token{key: k, entry: e, valid: true}, true
}

// Put inserts data under (level, col, row), evicting unpinned entries to
// fit within the byte budget. The returned token is pre-pinned on behalf
// of the caller, who must Release it.
//
// Callers typically call Put only after a preceding Get reported a miss,
// decoding the tile without holding the cache's lock in between. Two
// goroutines can race to fill the same miss; if both called lru.Add for
// the same Key, the second would silently replace the first's *entry in
// the map, orphaning it mid-use (spec.md §5 requires this cache to be
// safe for concurrent reads). Put guards against that by checking for an
// entry already resident under Key and pinning that one instead of
// inserting a second.
func (c *Cache) Put(level, col, row int, data []byte, size int64) Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := Key{level, col, row}
	if c.disabled {
		return Token{key: k, valid: false}
	}
	if v, ok := c.lru.Peek(k); ok {
		e := v.(*entry)
		e.pins++
		return Token{key: k, entry: e, valid: true}
	}
	e := &entry{data: data, size: size, pins: 1}
	c.lru.Add(k, e)
	c.used += size
	c.evictToFit()
	return Token{key: k, entry: e, valid: true}
}

// Release decrements the pin count on the token's own entry. Operating on
// the entry pointer captured by Get/Put, rather than re-resolving Key
// through the LRU, means a stale token can never decrement some other
// entry that has since taken over its Key.
func (c *Cache) Release(t Token) {
	if !t.valid || t.entry == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.entry.pins > 0 {
		t.entry.pins--
	}
}

// SetCapacity changes the byte budget, evicting immediately if the cache
// is now over it.
func (c *Cache) SetCapacity(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = n
	c.evictToFit()
}

// Disable turns the cache into a null pool: Get always misses and Put
// never retains its data (spec.md §4.1's disable()).
func (c *Cache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
	c.lru.Purge()
	c.used = 0
}

// Disabled reports whether Disable has been called.
func (c *Cache) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// Len reports the number of entries currently resident, for diagnostics
// and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// evictToFit evicts least-recently-used, unpinned entries until the cache
// is back under its byte budget. Pinned entries are never chosen as a
// victim (spec.md §4.1's "pinned entries cannot be evicted"); ties among
// equally-LRU entries are broken by insertion order, which is exactly
// golang-lru's Keys() ordering (oldest first). If every resident entry is
// pinned, the budget stays exceeded until one is released.
func (c *Cache) evictToFit() {
	for c.used > c.capacity {
		keys := c.lru.Keys()
		victim := -1
		for i, k := range keys {
			v, ok := c.lru.Peek(k)
			if !ok {
				continue
			}
			if v.(*entry).pins == 0 {
				victim = i
				break
			}
		}
		if victim < 0 {
			return
		}
		k := keys[victim]
		v, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		c.used -= v.(*entry).size
		c.lru.Remove(k)
	}
}
