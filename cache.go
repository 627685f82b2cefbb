package slide

import "github.com/openwsi/slide/internal/tilecache"

// Cache is a public handle onto a process-wide tile cache binding
// (spec.md §4.1/§6). A single Cache may be shared across multiple Slides
// via SetCache, the way the teacher's cog.TileCache is shared across
// cog.CachedReader instances.
type Cache struct {
	c *tilecache.Cache
}

// NewCache creates a Cache with the given byte capacity (spec.md §6's
// cache_create).
func NewCache(capacityBytes int64) *Cache {
	return &Cache{c: tilecache.New(capacityBytes)}
}

// SetCapacity changes the cache's byte budget, evicting immediately if it
// is now over capacity.
func (c *Cache) SetCapacity(n int64) {
	c.c.SetCapacity(n)
}

// Disable turns the cache into a null pool: every lookup misses and every
// insert is discarded.
func (c *Cache) Disable() {
	c.c.Disable()
}

// Release drops this handle's reference to its underlying cache. Slides
// bound to it via SetCache keep working; Release exists for symmetry with
// spec.md §6's cache_release and as the point at which a caller who
// allocated a dedicated Cache can let it be garbage collected once every
// bound Slide has moved to another binding.
func (c *Cache) Release() {}

// defaultCacheCapacity matches OpenSlide's historical default quickhash
// region cache size; callers that never call SetCache get a cache this
// size bound automatically at Open.
const defaultCacheCapacity = 32 << 20
