package tifflike

import (
	"bytes"
	"testing"
)

func leShort(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func leLong(v uint32) []byte  { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

// TestOpenDetectsNDPIAndReadsTile is spec.md §8 scenario S2: a classic TIFF
// whose first directory carries the Hamamatsu NDPI marker tag (65420) makes
// Reader.Open adopt 64-bit-offset NDPI mode end to end, and a tile's raw
// bytes are still retrievable afterward through the ordinary Item API.
//
// Every entry here is small enough to stay inline in its 12-byte directory
// entry, so the fixture's total length is fixed at 98 bytes (8-byte header +
// 2-byte count + 7*12-byte table + 4-byte next-directory pointer); the tile
// payload is appended right after and TagTileOffsets points at that known
// offset.
func TestOpenDetectsNDPIAndReadsTile(t *testing.T) {
	tileBytes := []byte("stand-in bytes for one compressed tile")

	entries := []fixtureEntry{
		{tag: TagNDPIMarker, typ: TypeShort, count: 1, value: leShort(1)},
		{tag: TagImageWidth, typ: TypeShort, count: 1, value: leShort(512)},
		{tag: TagImageLength, typ: TypeShort, count: 1, value: leShort(512)},
		{tag: TagTileWidth, typ: TypeShort, count: 1, value: leShort(256)},
		{tag: TagTileLength, typ: TypeShort, count: 1, value: leShort(256)},
		{tag: TagTileOffsets, typ: TypeLong, count: 1, value: leLong(98)},
		{tag: TagTileByteCounts, typ: TypeLong, count: 1, value: leLong(uint32(len(tileBytes)))},
	}

	data := buildClassicTIFF([][]fixtureEntry{entries}, -1)
	if len(data) != 98 {
		t.Fatalf("fixture directory is %d bytes, want 98 (TileOffsets hardcodes this offset)", len(data))
	}
	data = append(data, tileBytes...)

	src := sliceReaderAt(data)
	rd, err := Open(src)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !rd.NDPI() {
		t.Fatal("NDPI() = false, want true for a directory carrying tag 65420")
	}
	if len(rd.Directories) != 1 {
		t.Fatalf("got %d directories, want 1", len(rd.Directories))
	}

	dir := rd.Directories[0]
	offItem, ok := dir.Get(TagTileOffsets)
	if !ok {
		t.Fatal("TagTileOffsets missing from parsed directory")
	}
	offsets, err := offItem.Uint64s(src, rd.ByteOrder())
	if err != nil {
		t.Fatalf("TileOffsets.Uint64s: %v", err)
	}
	if len(offsets) != 1 || offsets[0] != 98 {
		t.Fatalf("TileOffsets = %v, want [98]", offsets)
	}

	countItem, ok := dir.Get(TagTileByteCounts)
	if !ok {
		t.Fatal("TagTileByteCounts missing from parsed directory")
	}
	counts, err := countItem.Uint64s(src, rd.ByteOrder())
	if err != nil {
		t.Fatalf("TileByteCounts.Uint64s: %v", err)
	}
	if len(counts) != 1 || counts[0] != uint64(len(tileBytes)) {
		t.Fatalf("TileByteCounts = %v, want [%d]", counts, len(tileBytes))
	}

	got := make([]byte, counts[0])
	if _, err := src.ReadAt(got, int64(offsets[0])); err != nil {
		t.Fatalf("reading tile at offset %d: %v", offsets[0], err)
	}
	if !bytes.Equal(got, tileBytes) {
		t.Fatalf("tile bytes = %q, want %q", got, tileBytes)
	}
}

// TestOpenWithoutNDPIMarkerStaysClassic confirms an ordinary classic TIFF
// lacking tag 65420 is never misdetected as NDPI.
func TestOpenWithoutNDPIMarkerStaysClassic(t *testing.T) {
	entries := []fixtureEntry{
		{tag: TagImageWidth, typ: TypeShort, count: 1, value: leShort(64)},
		{tag: TagImageLength, typ: TypeShort, count: 1, value: leShort(64)},
	}
	data := buildClassicTIFF([][]fixtureEntry{entries}, -1)
	rd, err := Open(sliceReaderAt(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if rd.NDPI() {
		t.Fatal("NDPI() = true, want false without tag 65420")
	}
}
