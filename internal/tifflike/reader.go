// Package tifflike implements the tolerant TIFF/BigTIFF/NDPI directory-chain
// parser that underpins every TIFF-family vendor backend (generic TIFF,
// Aperio SVS, Hamamatsu NDPI, Philips, OME-TIFF, Ventana BIF, Optra,
// Trestle, Leica SCN). It parses IFD chains into an in-memory
// directory -> tag map with lazy materialization of out-of-line values
// (see item.go), following the structure of the teacher's
// internal/cog/ifd.go generalized with NDPI's 64-bit offset extension and
// directory-chain loop detection (spec.md §4.2).
package tifflike

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	magicClassic = 42
	magicBig     = 43
)

// Reader holds a parsed directory chain plus enough state to lazily
// materialize item values on demand.
type Reader struct {
	r    io.ReaderAt
	bo   ByteOrder
	big  bool
	ndpi bool

	Directories []*Directory
}

// ByteOrder returns the file's declared byte order.
func (rd *Reader) ByteOrder() ByteOrder { return rd.bo }

// BigTIFF reports whether the file used the BigTIFF header layout.
func (rd *Reader) BigTIFF() bool { return rd.big }

// NDPI reports whether NDPI 64-bit-offset mode was detected (spec.md §4.2).
func (rd *Reader) NDPI() bool { return rd.ndpi }

// Open parses the directory chain of a TIFF/BigTIFF/NDPI container read
// through r.
func Open(r io.ReaderAt) (*Reader, error) {
	var header [4]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("tifflike: reading byte-order header: %w", err)
	}

	var bo ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("tifflike: not a TIFF file (bad byte-order marker %q)", header[0:2])
	}

	version := bo.Uint16(header[2:4])
	switch version {
	case magicClassic:
		return openClassicOrNDPI(r, bo)
	case magicBig:
		return openBig(r, bo)
	default:
		return nil, fmt.Errorf("tifflike: unrecognized version code %d", version)
	}
}

// openBig parses a BigTIFF header: offset-size=8, pad=0, then an 8-byte
// first-IFD offset.
func openBig(r io.ReaderAt, bo ByteOrder) (*Reader, error) {
	var bigHdr [8]byte
	if _, err := r.ReadAt(bigHdr[:], 4); err != nil {
		return nil, fmt.Errorf("tifflike: reading BigTIFF header: %w", err)
	}
	offsetSize := bo.Uint16(bigHdr[0:2])
	pad := bo.Uint16(bigHdr[2:4])
	if offsetSize != 8 || pad != 0 {
		return nil, fmt.Errorf("tifflike: invalid BigTIFF header (offset-size=%d pad=%d)", offsetSize, pad)
	}
	first := bo.Uint64(bigHdr[4:8])

	rd := &Reader{r: r, bo: bo, big: true}
	dirs, err := walkChain(r, bo, true, first)
	if err != nil {
		return nil, err
	}
	rd.Directories = dirs
	return rd, nil
}

// openClassicOrNDPI parses a classic (32-bit-offset) TIFF header, but first
// probes for the NDPI 64-bit-offset extension: it tentatively parses the
// first directory at the header's 32-bit offset with classic 12-byte
// entries (the probe does not read any offset as 64 bits); if that succeeds
// and the directory contains the NDPI marker tag, NDPI mode is adopted
// outright and that first directory is kept. Otherwise the tentative parse
// is discarded and the file is re-parsed with ordinary 32-bit (masked)
// offsets (spec.md §4.2).
func openClassicOrNDPI(r io.ReaderAt, bo ByteOrder) (*Reader, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("tifflike: reading classic header: %w", err)
	}
	firstOffset64 := uint64(bo.Uint32(hdr[4:8]))

	if dir, err := parseOneDirectory(r, bo, false, firstOffset64); err == nil {
		if _, ok := dir.dir.Get(TagNDPIMarker); ok {
			rd := &Reader{r: r, bo: bo, big: false, ndpi: true}
			dirs, err := continueChainNDPI(r, bo, dir)
			if err != nil {
				return nil, err
			}
			rd.Directories = dirs
			return rd, nil
		}
	}

	rd := &Reader{r: r, bo: bo, big: false}
	dirs, err := walkChain(r, bo, false, firstOffset64)
	if err != nil {
		return nil, err
	}
	rd.Directories = dirs
	return rd, nil
}

// parsedDirectory bundles a Directory with the raw next-offset pointer and
// the entries used for NDPI fix_offset comparisons.
type parsedDirectory struct {
	dir     *Directory
	next    uint64
	entries []rawEntry
}

type rawEntry struct {
	tag    uint16
	typ    uint16
	count  uint64
	inline bool
	raw    []byte
	offset int64
}

// walkChain follows the directory chain from first, applying loop
// detection over visited offsets (spec.md §4.2/§8 item 7).
func walkChain(r io.ReaderAt, bo ByteOrder, big bool, first uint64) ([]*Directory, error) {
	var dirs []*Directory
	visited := map[uint64]bool{}
	offset := first

	for offset != 0 {
		if visited[offset] {
			return nil, fmt.Errorf("tifflike: Loop detected")
		}
		visited[offset] = true

		pd, err := parseOneDirectory(r, bo, big, offset)
		if err != nil {
			return nil, fmt.Errorf("tifflike: parsing directory at offset %d: %w", offset, err)
		}
		dirs = append(dirs, pd.dir)
		offset = pd.next
	}
	return dirs, nil
}

// continueChainNDPI continues a chain that began with an already-parsed
// first directory (the NDPI probe, which read it with classic 32-bit
// offsets). The first directory's
// out-of-line offsets are taken as-is (its data fits under 4GB, or the probe
// would have found a directory that looked wrong rather than a marker tag).
// Every later directory's out-of-line offsets are compared tag-by-tag
// against the first directory's raw offsets: only when they differ is
// fix_offset applied, per spec.md §4.2.
func continueChainNDPI(r io.ReaderAt, bo ByteOrder, first *parsedDirectory) ([]*Directory, error) {
	firstRaw := make(map[uint16]int64, len(first.entries))
	for _, e := range first.entries {
		if !e.inline {
			firstRaw[e.tag] = e.offset
		}
	}

	dirs := []*Directory{first.dir}
	visited := map[uint64]bool{first.dir.Offset: true}
	offset := first.next

	for offset != 0 {
		if visited[offset] {
			return nil, fmt.Errorf("tifflike: Loop detected")
		}
		visited[offset] = true

		pd, err := parseOneDirectory(r, bo, false, offset)
		if err != nil {
			return nil, fmt.Errorf("tifflike: parsing NDPI directory at offset %d: %w", offset, err)
		}
		fixNDPIOffsets(pd.dir, offset, firstRaw)
		dirs = append(dirs, pd.dir)
		offset = pd.next
	}
	return dirs, nil
}

// parseOneDirectory reads one IFD's entry table (classic 12-byte or BigTIFF
// 20-byte entries) and returns the built Directory plus the raw
// next-directory offset. NDPI's fix_offset repair is applied by the caller,
// not here, since it depends on comparing against the chain's first
// directory (see fixNDPIOffsets).
func parseOneDirectory(r io.ReaderAt, bo ByteOrder, big bool, offset uint64) (*parsedDirectory, error) {
	entrySize := 12
	countFieldSize := 2
	valueFieldSize := 4
	nextFieldSize := 4
	if big {
		entrySize = 20
		countFieldSize = 8
		valueFieldSize = 8
		nextFieldSize = 8
	}

	countBuf := make([]byte, countFieldSize)
	if _, err := r.ReadAt(countBuf, int64(offset)); err != nil {
		return nil, fmt.Errorf("reading entry count: %w", err)
	}
	var numEntries uint64
	if big {
		numEntries = bo.Uint64(countBuf)
	} else {
		numEntries = uint64(bo.Uint16(countBuf))
	}

	entriesBuf := make([]byte, int(numEntries)*entrySize)
	if _, err := r.ReadAt(entriesBuf, int64(offset)+int64(countFieldSize)); err != nil {
		return nil, fmt.Errorf("reading %d entries: %w", numEntries, err)
	}

	nextBuf := make([]byte, nextFieldSize)
	nextOff := int64(offset) + int64(countFieldSize) + int64(len(entriesBuf))
	if _, err := r.ReadAt(nextBuf, nextOff); err != nil {
		return nil, fmt.Errorf("reading next-directory offset: %w", err)
	}
	var next uint64
	if big {
		next = bo.Uint64(nextBuf)
	} else {
		next = uint64(bo.Uint32(nextBuf))
	}

	items := make(map[uint16]*Item, numEntries)
	var entries []rawEntry
	for i := uint64(0); i < numEntries; i++ {
		e := entriesBuf[i*uint64(entrySize) : (i+1)*uint64(entrySize)]
		tag := bo.Uint16(e[0:2])
		typ := bo.Uint16(e[2:4])

		var count uint64
		var valField []byte
		if big {
			count = bo.Uint64(e[4:12])
			valField = e[12:20]
		} else {
			count = uint64(bo.Uint32(e[4:8]))
			valField = e[8:12]
		}

		sz := typeSize(typ)
		var totalSize uint64
		if sz != 0 {
			totalSize = count * uint64(sz)
			if totalSize/uint64(sz) != count {
				return nil, fmt.Errorf("tifflike: tag %d: count overflow", tag)
			}
		}

		it := &Item{Tag: tag, Type: typ, Count: count}

		inlineCap := uint64(valueFieldSize)
		if sz != 0 && totalSize <= inlineCap {
			it.inline = true
			it.raw = append([]byte(nil), valField[:totalSize]...)
			it.state = stateReady
			if err := it.decode(it.raw, bo); err != nil {
				return nil, err
			}
		} else {
			var off int64
			if big {
				off = int64(bo.Uint64(valField))
			} else {
				off = int64(bo.Uint32(valField))
			}
			if off <= 0 {
				return nil, fmt.Errorf("tifflike: tag %d: non-positive offset %d", tag, off)
			}
			it.offset = off
		}

		items[tag] = it
		entries = append(entries, rawEntry{tag: tag, typ: typ, count: count, inline: it.inline, raw: it.raw, offset: it.offset})
	}

	dir := &Directory{Offset: offset, items: items}

	return &parsedDirectory{dir: dir, next: next, entries: entries}, nil
}

// fixNDPIOffsets applies the NDPI 64-bit offset repair (spec.md §4.2) to
// every out-of-line item of dir whose raw 32-bit offset differs from the
// offset recorded for the same tag in firstRaw (the chain's first
// directory). Unmatched tags are treated as differing, since there is
// nothing to compare against. The repair borrows the high 32 bits of the
// directory's own offset and combines them with the stored 32-bit value; if
// the combined value is not smaller than the directory's own offset and is
// at least 2^32, the borrow overshot and UINT32_MAX+1 is subtracted back out.
func fixNDPIOffsets(dir *Directory, dirOffset uint64, firstRaw map[uint16]int64) {
	highBits := dirOffset &^ 0xFFFFFFFF
	for tag, it := range dir.items {
		if it.inline {
			continue
		}
		if prior, ok := firstRaw[tag]; ok && prior == it.offset {
			continue
		}
		candidate := highBits | uint64(it.offset&0xFFFFFFFF)
		if candidate >= dirOffset && candidate >= 0x100000000 {
			candidate -= 0x100000000
		}
		it.offset = int64(candidate)
	}
}
