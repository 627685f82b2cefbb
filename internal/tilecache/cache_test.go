package tilecache

import "testing"

func TestGetMissOnEmptyCache(t *testing.T) {
	c := New(1024)
	if _, _, ok := c.Get(0, 0, 0); ok {
		t.Fatal("Get on empty cache should miss")
	}
}

func TestPutThenGetHits(t *testing.T) {
	c := New(1024)
	tok := c.Put(0, 1, 2, []byte("tile-data"), 9)
	c.Release(tok)

	data, tok2, ok := c.Get(0, 1, 2)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if string(data) != "tile-data" {
		t.Fatalf("data = %q, want %q", data, "tile-data")
	}
	c.Release(tok2)
}

func TestCapacityBoundEviction(t *testing.T) {
	c := New(20)
	c.Release(c.Put(0, 0, 0, make([]byte, 10), 10))
	c.Release(c.Put(0, 1, 0, make([]byte, 10), 10))
	// Cache now exactly at capacity (20). A third tile forces an eviction.
	c.Release(c.Put(0, 2, 0, make([]byte, 10), 10))

	if c.used > c.capacity {
		t.Fatalf("used %d exceeds capacity %d after eviction", c.used, c.capacity)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	// The least-recently-used entry, (0,0,0), should have been evicted first.
	if _, _, ok := c.Get(0, 0, 0); ok {
		t.Fatal("(0,0,0) should have been evicted as least-recently-used")
	}
	if _, tok, ok := c.Get(0, 1, 0); !ok {
		t.Fatal("(0,1,0) should still be resident")
	} else {
		c.Release(tok)
	}
	if _, tok, ok := c.Get(0, 2, 0); !ok {
		t.Fatal("(0,2,0) should still be resident")
	} else {
		c.Release(tok)
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	c := New(20)
	c.Release(c.Put(0, 0, 0, make([]byte, 10), 10))
	c.Release(c.Put(0, 1, 0, make([]byte, 10), 10))

	// Touch (0,0,0) so it becomes more-recently-used than (0,1,0).
	_, tok, ok := c.Get(0, 0, 0)
	if !ok {
		t.Fatal("expected hit")
	}
	c.Release(tok)

	// Inserting a third tile should now evict (0,1,0), not (0,0,0).
	c.Release(c.Put(0, 2, 0, make([]byte, 10), 10))

	if _, _, ok := c.Get(0, 1, 0); ok {
		t.Fatal("(0,1,0) should have been evicted after (0,0,0) was refreshed")
	}
	if _, tok, ok := c.Get(0, 0, 0); !ok {
		t.Fatal("(0,0,0) should still be resident")
	} else {
		c.Release(tok)
	}
}

func TestPinnedEntryCannotBeEvicted(t *testing.T) {
	c := New(20)
	// Pin (0,0,0) by never releasing its token.
	_ = c.Put(0, 0, 0, make([]byte, 10), 10)
	c.Release(c.Put(0, 1, 0, make([]byte, 10), 10))

	// This insert would normally evict the oldest entry, but (0,0,0) is
	// pinned, so (0,1,0) must be chosen instead even though it is newer.
	c.Release(c.Put(0, 2, 0, make([]byte, 10), 10))

	if _, tok, ok := c.Get(0, 0, 0); !ok {
		t.Fatal("pinned entry (0,0,0) must not be evicted")
	} else {
		c.Release(tok)
		c.Release(tok) // undo the Put's pin too
	}
	if _, _, ok := c.Get(0, 1, 0); ok {
		t.Fatal("(0,1,0) should have been evicted in place of the pinned entry")
	}
}

func TestDisableIsNullPool(t *testing.T) {
	c := New(1024)
	c.Release(c.Put(0, 0, 0, make([]byte, 10), 10))

	c.Disable()

	if !c.Disabled() {
		t.Fatal("Disabled() should report true after Disable")
	}
	if _, _, ok := c.Get(0, 0, 0); ok {
		t.Fatal("Get must always miss once disabled, even for previously cached tiles")
	}
	tok := c.Put(0, 1, 0, make([]byte, 10), 10)
	if tok.valid {
		t.Fatal("Put must not retain data once disabled")
	}
	if _, _, ok := c.Get(0, 1, 0); ok {
		t.Fatal("data inserted while disabled must not be retrievable")
	}
	if c.used != 0 {
		t.Fatalf("used = %d, want 0 once disabled", c.used)
	}
}

func TestSetCapacityEvictsImmediately(t *testing.T) {
	c := New(1024)
	c.Release(c.Put(0, 0, 0, make([]byte, 100), 100))
	c.Release(c.Put(0, 1, 0, make([]byte, 100), 100))

	c.SetCapacity(100)

	if c.used > c.capacity {
		t.Fatalf("used %d exceeds new capacity %d", c.used, c.capacity)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after shrinking capacity", c.Len())
	}
}

// TestConcurrentPutForSameKeyDoesNotCorruptPinCount is the scenario of two
// goroutines racing to fill the same Get miss: both decode independently
// and both call Put for the same Key before either Releases. The second
// Put must reuse the first entry (pinning it again) rather than replacing
// it in the LRU, or the first caller's Release would end up decrementing
// whatever entry currently sits at that Key instead of the one it actually
// holds a reference to.
func TestConcurrentPutForSameKeyDoesNotCorruptPinCount(t *testing.T) {
	c := New(1024)

	tok1 := c.Put(0, 0, 0, []byte("tile-a"), 6)
	tok2 := c.Put(0, 0, 0, []byte("tile-b"), 6)

	if tok1.entry != tok2.entry {
		t.Fatal("a second Put for the same Key must return a token pinning the same entry as the first")
	}
	if tok1.entry.pins != 2 {
		t.Fatalf("pins = %d after two Puts for the same Key, want 2", tok1.entry.pins)
	}

	c.Release(tok1)
	if tok1.entry.pins != 1 {
		t.Fatalf("pins = %d after releasing tok1, want 1 (tok2 still holds its pin)", tok1.entry.pins)
	}

	data, tok3, ok := c.Get(0, 0, 0)
	if !ok {
		t.Fatal("entry should still be resident: tok2 has not been released yet")
	}
	if string(data) != "tile-a" {
		t.Fatalf("data = %q, want %q (the first Put's data, since the second reused its entry)", data, "tile-a")
	}
	c.Release(tok3)

	c.Release(tok2)
	if tok1.entry.pins != 0 {
		t.Fatalf("pins = %d after releasing every token, want 0", tok1.entry.pins)
	}
}

// TestCacheHitAvoidsDecode exercises the cache-as-decode-avoidance scenario:
// a caller that would otherwise decode a tile checks the cache first, and
// only falls back to an (instrumented) decode on a miss.
func TestCacheHitAvoidsDecode(t *testing.T) {
	c := New(1024)
	decodes := 0
	decode := func() []byte {
		decodes++
		return []byte("decoded")
	}

	fetch := func(level, col, row int) []byte {
		if data, tok, ok := c.Get(level, col, row); ok {
			defer c.Release(tok)
			return data
		}
		data := decode()
		defer c.Release(c.Put(level, col, row, data, int64(len(data))))
		return data
	}

	first := fetch(0, 0, 0)
	second := fetch(0, 0, 0)

	if string(first) != "decoded" || string(second) != "decoded" {
		t.Fatalf("unexpected tile contents: %q, %q", first, second)
	}
	if decodes != 1 {
		t.Fatalf("decodes = %d, want 1 (second fetch should hit cache)", decodes)
	}
}
