package fileio

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool is a per-slide bounded pool of read-only handles onto the same
// underlying path. Concurrent readers acquire a handle (opening a new OS
// file descriptor on demand up to the configured maximum), use it for a
// single ReadAt, and release it back to the pool.
//
// This matches spec.md's "bounded channel of reusable descriptors plus a
// lazy creation policy": handles are created lazily on first contention
// and reused afterward, rather than all being opened up front.
type Pool struct {
	path string
	max  int64

	sem *semaphore.Weighted

	mu    sync.Mutex
	free  []*Handle
	count int
}

// NewPool creates a handle pool for path that allows up to max concurrently
// acquired handles. max <= 0 means unbounded (a semaphore is not used).
func NewPool(path string, max int) *Pool {
	p := &Pool{path: path}
	if max > 0 {
		p.max = int64(max)
		p.sem = semaphore.NewWeighted(p.max)
	}
	return p
}

// Acquire returns a handle for exclusive use by the caller until Release is
// called. It blocks if the pool is at capacity and no free handle is
// available.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("fileio: acquiring handle for %s: %w", p.path, err)
		}
	}

	p.mu.Lock()
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	h, err := Open(p.path)
	if err != nil {
		if p.sem != nil {
			p.sem.Release(1)
		}
		return nil, err
	}
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return h, nil
}

// Release returns a handle to the pool for reuse.
func (p *Pool) Release(h *Handle) {
	p.mu.Lock()
	p.free = append(p.free, h)
	p.mu.Unlock()
	if p.sem != nil {
		p.sem.Release(1)
	}
}

// ReadAt implements io.ReaderAt by acquiring a handle, reading through it,
// and releasing it back to the pool. It lets callers that just want
// random-access reads (tifflike, decode) treat a Pool as a plain
// io.ReaderAt without managing acquire/release themselves.
func (p *Pool) ReadAt(b []byte, off int64) (int, error) {
	h, err := p.Acquire(context.Background())
	if err != nil {
		return 0, err
	}
	defer p.Release(h)
	return h.ReadAt(b, off)
}

// OpenCount returns the number of distinct OS handles this pool has ever
// created (for tests/diagnostics).
func (p *Pool) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Close closes every handle currently sitting idle in the pool. Handles
// that are checked out are not closed; callers must release them first.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, h := range p.free {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.free = nil
	return first
}
