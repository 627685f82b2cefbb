package slide

import (
	"errors"
	"testing"
)

// TestOpenSyntheticEndToEnd exercises an S1-style scenario (spec.md §8)
// through the public façade: Open dispatches to the Synthetic backend, levels
// report the expected geometry, and ReadRegion actually decodes pixels
// rather than just returning metadata.
func TestOpenSyntheticEndToEnd(t *testing.T) {
	s, err := Open("synthetic:1024x512:3:256")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if msg := s.GetError(); msg != "" {
		t.Fatalf("unexpected sticky error: %s", msg)
	}
	if got := s.LevelCount(); got != 3 {
		t.Fatalf("LevelCount = %d, want 3", got)
	}

	w, h, err := s.LevelDimensions(0)
	if err != nil {
		t.Fatalf("LevelDimensions(0): %v", err)
	}
	if w != 1024 || h != 512 {
		t.Fatalf("LevelDimensions(0) = %dx%d, want 1024x512", w, h)
	}

	ds, err := s.LevelDownsample(2)
	if err != nil {
		t.Fatalf("LevelDownsample(2): %v", err)
	}
	if ds != 4.0 {
		t.Fatalf("LevelDownsample(2) = %v, want 4.0", ds)
	}

	if best := s.BestLevelForDownsample(3.9); best != 1 {
		t.Fatalf("BestLevelForDownsample(3.9) = %d, want 1", best)
	}

	dest := make([]byte, 16*16*4)
	if err := s.ReadRegion(dest, 0, 0, 0, 16, 16); err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	allZero := true
	for _, b := range dest {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatal("ReadRegion produced an all-zero canvas for an opaque synthetic tile")
	}

	if v, ok := s.PropertyValue("openslide.vendor"); !ok || v != "synthetic" {
		t.Fatalf("PropertyValue(openslide.vendor) = (%q,%v), want (synthetic,true)", v, ok)
	}
}

func TestOpenUnrecognizedFormat(t *testing.T) {
	_, err := Open("/nonexistent/path/not-a-slide.xyz")
	if !errors.Is(err, ErrNotASlide) {
		t.Fatalf("Open of an unrecognized path: err = %v, want ErrNotASlide", err)
	}
}

func TestReadRegionRejectsNegativeSize(t *testing.T) {
	s, err := Open("synthetic:256x256:1:128")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	dest := make([]byte, 4)
	if err := s.ReadRegion(dest, 0, 0, 0, -1, 1); err == nil {
		t.Fatal("expected an error for a negative region width")
	}
}

func TestReadRegionOutOfRangeLevel(t *testing.T) {
	s, err := Open("synthetic:256x256:1:128")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	dest := make([]byte, 4)
	if err := s.ReadRegion(dest, 0, 0, 5, 1, 1); err == nil {
		t.Fatal("expected an error for an out-of-range level")
	}
}

func TestDetectVendorSynthetic(t *testing.T) {
	name, ok := DetectVendor("synthetic:128x128:1:64")
	if !ok || name != "synthetic" {
		t.Fatalf("DetectVendor = (%q,%v), want (synthetic,true)", name, ok)
	}
}

func TestSetCacheRebinds(t *testing.T) {
	s, err := Open("synthetic:256x256:1:128", WithCacheCapacity(1<<20))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	c := NewCache(4 << 20)
	s.SetCache(c)
	dest := make([]byte, 16*16*4)
	if err := s.ReadRegion(dest, 0, 0, 0, 16, 16); err != nil {
		t.Fatalf("ReadRegion after SetCache: %v", err)
	}
}
