// Package fileio provides the random-access file primitives shared by every
// vendor backend: an owned-handle abstraction over os.File with a cached
// size query, and a bounded pool of such handles for concurrent readers.
package fileio

import (
	"fmt"
	"os"
)

// Handle is an owned, read-only view of a file opened for random access.
// It wraps an *os.File and caches the file size so repeated Size() calls
// don't re-stat the file.
type Handle struct {
	f    *os.File
	path string
	size int64
}

// Open opens path for random-access reads and returns an owned Handle.
// The caller must call Close when done.
func Open(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileio: opening %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fileio: stat %s: %w", path, err)
	}
	return &Handle{f: f, path: path, size: fi.Size()}, nil
}

// ReadAt implements io.ReaderAt.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	return h.f.ReadAt(p, off)
}

// Size returns the file's byte length, as observed at Open time.
func (h *Handle) Size() int64 { return h.size }

// Path returns the path this handle was opened from.
func (h *Handle) Path() string { return h.path }

// Close releases the underlying OS file descriptor.
func (h *Handle) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	return err
}
