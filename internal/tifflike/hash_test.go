package tifflike

import (
	"testing"

	"github.com/openwsi/slide/internal/qhash"
)

func readyUintsItem(tag uint16, vals ...uint64) *Item {
	return &Item{Tag: tag, state: stateReady, uints: vals}
}

func TestHashLevelTiled(t *testing.T) {
	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i)
	}

	dir := &Directory{
		items: map[uint16]*Item{
			TagTileOffsets:    readyUintsItem(TagTileOffsets, 10, 100),
			TagTileByteCounts: readyUintsItem(TagTileByteCounts, 20, 30),
		},
	}

	h := qhash.New()
	var budget qhash.Budget
	if err := HashLevel(dir, sliceReaderAt(data), nil, h, &budget); err != nil {
		t.Fatalf("HashLevel: %v", err)
	}

	want := qhash.New()
	want.WriteBytes(data[10:30])
	want.WriteBytes(data[100:130])

	if h.Sum() != want.Sum() {
		t.Fatalf("hash mismatch: got %q want %q", h.Sum(), want.Sum())
	}
}

func TestHashLevelPrefersStripsWhenNoTiles(t *testing.T) {
	data := make([]byte, 64)
	dir := &Directory{
		items: map[uint16]*Item{
			TagStripOffsets:    readyUintsItem(TagStripOffsets, 0),
			TagStripByteCounts: readyUintsItem(TagStripByteCounts, 16),
		},
	}

	h := qhash.New()
	var budget qhash.Budget
	if err := HashLevel(dir, sliceReaderAt(data), nil, h, &budget); err != nil {
		t.Fatalf("HashLevel: %v", err)
	}
	if h.Disabled() {
		t.Fatal("did not expect the hash to be disabled")
	}
}

func TestHashLevelDisablesOverBudget(t *testing.T) {
	data := make([]byte, 64)
	dir := &Directory{
		items: map[uint16]*Item{
			TagStripOffsets:    readyUintsItem(TagStripOffsets, 0, 0),
			TagStripByteCounts: readyUintsItem(TagStripByteCounts, qhash.MaxHashBytes+1, 16),
		},
	}

	h := qhash.New()
	var budget qhash.Budget
	if err := HashLevel(dir, sliceReaderAt(data), nil, h, &budget); err != nil {
		t.Fatalf("HashLevel: %v", err)
	}
	if !h.Disabled() {
		t.Fatal("expected hash to be disabled once the budget was exceeded")
	}
	if h.Sum() != "" {
		t.Fatalf("Sum() after disable = %q, want empty", h.Sum())
	}
}

func TestHashLevelNoOffsetTags(t *testing.T) {
	dir := &Directory{items: map[uint16]*Item{}}
	h := qhash.New()
	var budget qhash.Budget
	if err := HashLevel(dir, sliceReaderAt(nil), nil, h, &budget); err != nil {
		t.Fatalf("HashLevel: %v", err)
	}
	if h.Disabled() {
		t.Fatal("absence of tile/strip tags should not disable the hash")
	}
}
