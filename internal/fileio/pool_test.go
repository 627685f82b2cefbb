package fileio

import (
	"context"
	"os"
	"sync"
	"testing"
)

func tempFile(t *testing.T, data string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fileio-*.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(data); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestPoolAcquireRelease(t *testing.T) {
	path := tempFile(t, "hello world")
	p := NewPool(path, 2)
	defer p.Close()

	ctx := context.Background()
	h1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	if _, err := h1.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q", buf)
	}
	p.Release(h1)

	if got := p.OpenCount(); got != 1 {
		t.Fatalf("OpenCount() = %d, want 1", got)
	}

	// Reacquiring should reuse the released handle, not open a new one.
	h2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p.Release(h2)
	if got := p.OpenCount(); got != 1 {
		t.Fatalf("OpenCount() after reuse = %d, want 1", got)
	}
}

func TestPoolConcurrentAcquire(t *testing.T) {
	path := tempFile(t, "0123456789")
	p := NewPool(path, 4)
	defer p.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(context.Background())
			if err != nil {
				errs <- err
				return
			}
			defer p.Release(h)
			buf := make([]byte, 1)
			if _, err := h.ReadAt(buf, 0); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if p.OpenCount() > 4 {
		t.Fatalf("OpenCount() = %d, want <= 4", p.OpenCount())
	}
}
