package tifflike

import (
	"bytes"
	"encoding/binary"
)

// classicFixture builds an in-memory classic (32-bit) little-endian TIFF
// byte stream with the given directories. Each directory is a list of
// (tag, type, count, value-bytes) entries; values longer than 4 bytes are
// written out-of-line after the directory table and the offset patched in.
// dirs[i] chains to dirs[i+1]; the last directory's next-offset is 0 unless
// loopTo is non-negative, in which case the last directory points back at
// dirs[loopTo]'s offset (for loop-detection tests).
type fixtureEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // raw bytes for the type, pre-byte-swapped by the caller
}

func buildClassicTIFF(dirEntries [][]fixtureEntry, loopTo int) []byte {
	bo := binary.LittleEndian
	buf := new(bytes.Buffer)

	buf.WriteString("II")
	binary.Write(buf, bo, uint16(42))
	binary.Write(buf, bo, uint32(8)) // first IFD offset, patched below if needed

	dirOffsets := make([]int, len(dirEntries))

	for i, entries := range dirEntries {
		// Out-of-line values are appended after this directory's fixed-size
		// table; we don't know the table size until entries are counted.
		dirOffsets[i] = buf.Len()
		binary.Write(buf, bo, uint16(len(entries)))

		tableStart := buf.Len()
		tableSize := len(entries) * 12
		extra := new(bytes.Buffer)
		extraBase := tableStart + tableSize + 4 // +4 for next-dir pointer

		for _, e := range entries {
			binary.Write(buf, bo, e.tag)
			binary.Write(buf, bo, e.typ)
			binary.Write(buf, bo, e.count)
			if len(e.value) <= 4 {
				var v [4]byte
				copy(v[:], e.value)
				buf.Write(v[:])
			} else {
				off := uint32(extraBase + extra.Len())
				binary.Write(buf, bo, off)
				extra.Write(e.value)
			}
		}

		// next-directory offset placeholder; patched in a second pass below
		nextPos := buf.Len()
		binary.Write(buf, bo, uint32(0))
		buf.Write(extra.Bytes())

		_ = nextPos
	}

	out := buf.Bytes()

	// Second pass: patch each directory's next-offset now that every
	// directory's start offset is known.
	for i := range dirEntries {
		tableSize := len(dirEntries[i]) * 12
		nextPos := dirOffsets[i] + 2 + tableSize
		var next uint32
		switch {
		case i+1 < len(dirEntries):
			next = uint32(dirOffsets[i+1])
		case loopTo >= 0:
			next = uint32(dirOffsets[loopTo])
		default:
			next = 0
		}
		bo.PutUint32(out[nextPos:nextPos+4], next)
	}

	return out
}

// bigFixtureEntry is the BigTIFF analogue of fixtureEntry: an 8-byte
// count field and an 8-byte value-or-offset field.
type bigFixtureEntry struct {
	tag   uint16
	typ   uint16
	count uint64
	value []byte
}

// buildBigTIFF builds a single-directory-chain BigTIFF byte stream (little
// endian, offset-size 8, pad 0).
func buildBigTIFF(dirEntries [][]bigFixtureEntry) []byte {
	bo := binary.LittleEndian
	buf := new(bytes.Buffer)

	buf.WriteString("II")
	binary.Write(buf, bo, uint16(43))
	binary.Write(buf, bo, uint16(8))  // offset size
	binary.Write(buf, bo, uint16(0))  // pad
	binary.Write(buf, bo, uint64(16)) // first IFD offset

	dirOffsets := make([]int, len(dirEntries))
	for i, entries := range dirEntries {
		dirOffsets[i] = buf.Len()
		binary.Write(buf, bo, uint64(len(entries)))

		tableStart := buf.Len()
		tableSize := len(entries) * 20
		extra := new(bytes.Buffer)
		extraBase := tableStart + tableSize + 8 // +8 for next-dir pointer

		for _, e := range entries {
			binary.Write(buf, bo, e.tag)
			binary.Write(buf, bo, e.typ)
			binary.Write(buf, bo, e.count)
			if len(e.value) <= 8 {
				var v [8]byte
				copy(v[:], e.value)
				buf.Write(v[:])
			} else {
				off := uint64(extraBase + extra.Len())
				binary.Write(buf, bo, off)
				extra.Write(e.value)
			}
		}

		binary.Write(buf, bo, uint64(0)) // next-dir pointer, patched below
		buf.Write(extra.Bytes())
	}

	out := buf.Bytes()
	for i := range dirEntries {
		tableSize := len(dirEntries[i]) * 20
		nextPos := dirOffsets[i] + 8 + tableSize
		var next uint64
		if i+1 < len(dirEntries) {
			next = uint64(dirOffsets[i+1])
		}
		bo.PutUint64(out[nextPos:nextPos+8], next)
	}
	return out
}

type sliceReaderAt []byte

func (s sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) > len(s) {
		return 0, bytes.ErrTooLarge
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, bytes.ErrTooLarge
	}
	return n, nil
}
