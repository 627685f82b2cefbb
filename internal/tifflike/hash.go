package tifflike

import (
	"io"

	"github.com/openwsi/slide/internal/qhash"
)

// HashLevel feeds a directory's tile or strip data into h, in array order,
// using whichever offset/byte-count tag pair the directory actually carries
// (tiled vs stripped). It stops and disables h the moment the cumulative
// byte budget tracked by budget would be exceeded, so a single oversized
// level can't make Open() pay to hash gigabytes of pixel data (spec.md
// §4.2/§4.6, §8 scenario S3).
func HashLevel(dir *Directory, r io.ReaderAt, bo ByteOrder, h *qhash.Hash, budget *qhash.Budget) error {
	offsetsTag, countsTag := TagTileOffsets, TagTileByteCounts
	offItem, ok := dir.Get(offsetsTag)
	if !ok {
		offsetsTag, countsTag = TagStripOffsets, TagStripByteCounts
		offItem, ok = dir.Get(offsetsTag)
		if !ok {
			return nil
		}
	}
	countItem, ok := dir.Get(countsTag)
	if !ok {
		return nil
	}

	offsets, err := offItem.Uint64s(r, bo)
	if err != nil {
		return err
	}
	counts, err := countItem.Uint64s(r, bo)
	if err != nil {
		return err
	}

	n := len(offsets)
	if len(counts) < n {
		n = len(counts)
	}

	var total int64
	for i := 0; i < n; i++ {
		total += int64(counts[i])
	}

	// The whole level's tile/strip byte range is weighed against the
	// cumulative budget before any of it is hashed: a level that would push
	// the running total over the cap disables hashing outright rather than
	// hashing part of it (spec.md §4.2).
	if budget.Add(total) {
		h.Disable()
		return nil
	}
	if h.Disabled() {
		return nil
	}

	for i := 0; i < n; i++ {
		if err := h.WriteAt(r, int64(offsets[i]), int64(counts[i])); err != nil {
			return err
		}
	}
	return nil
}
