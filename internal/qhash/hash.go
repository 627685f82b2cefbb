// Package qhash implements the incremental "quickhash" digest used to give
// every Slide a stable identity (exposed as the openslide.quickhash-1
// property). It wraps a SHA-256-shaped incremental hash and adds a
// "disable" state: once disabled, further updates are no-ops and the final
// digest is reported as the empty string. Vendor backends disable the hash
// when a level's tile/strip byte count exceeds a safety cap, so a
// pathological slide never makes Open() pay for hashing gigabytes of data.
package qhash

import (
	"encoding/hex"
	"io"

	sha256simd "github.com/minio/sha256-simd"
)

// MaxHashBytes is the cumulative byte budget for region hashing (spec.md
// §4.2/§4.6). Once a backend's cumulative hashed length would exceed this,
// it should call Disable instead of continuing to feed bytes.
const MaxHashBytes = 5 * 1024 * 1024

// Hash is an incremental digest that can be permanently disabled.
// It is not safe for concurrent use; each Slide's Open path owns one.
type Hash struct {
	h        interface {
		io.Writer
		Sum([]byte) []byte
	}
	disabled bool
}

// New returns a fresh, enabled Hash.
func New() *Hash {
	return &Hash{h: sha256simd.New()}
}

// WriteString feeds a labeled property value into the digest. Callers pass
// the canonical property name and its value so that two slides with the
// same pixel data but different ancillary metadata hash differently, per
// spec.md §4.6 ("hash selected ASCII properties labeled by their canonical
// property name").
func (d *Hash) WriteString(label, value string) {
	if d.disabled {
		return
	}
	d.h.Write([]byte(label))
	d.h.Write([]byte{0})
	d.h.Write([]byte(value))
	d.h.Write([]byte{0})
}

// WriteBytes feeds raw bytes (e.g. a tile or strip's on-disk range) into the
// digest.
func (d *Hash) WriteBytes(b []byte) {
	if d.disabled {
		return
	}
	d.h.Write(b)
}

// WriteAt reads length bytes starting at offset from r and feeds them into
// the digest. It is the primitive backends use to hash
// "[offset, offset+length)" of the container file per spec.md §4.2.
func (d *Hash) WriteAt(r io.ReaderAt, offset, length int64) error {
	if d.disabled || length <= 0 {
		return nil
	}
	buf := make([]byte, length)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return err
	}
	d.h.Write(buf)
	return nil
}

// Disable permanently turns this Hash into a no-op sink. Sum thereafter
// always returns the empty string.
func (d *Hash) Disable() {
	d.disabled = true
}

// Disabled reports whether Disable has been called.
func (d *Hash) Disabled() bool {
	return d.disabled
}

// Sum returns the final digest as a lowercase hex string, or the empty
// string if the hash has been disabled.
func (d *Hash) Sum() string {
	if d.disabled {
		return ""
	}
	return hex.EncodeToString(d.h.Sum(nil))
}

// Budget tracks cumulative bytes against MaxHashBytes and reports whether
// the caller should stop feeding data and disable the hash instead.
// Backends use it while iterating a level's tile/strip byte-count array:
// they add each tile's length, and once the running total exceeds the
// cap, they disable the hash and stop — the level's pixels are not hashed,
// but Open still succeeds (spec.md §8 scenario S3).
type Budget struct {
	used int64
}

// Add adds n bytes to the running total and reports whether the budget is
// now exceeded.
func (b *Budget) Add(n int64) (exceeded bool) {
	b.used += n
	return b.used > MaxHashBytes
}
