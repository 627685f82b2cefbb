package grid

import (
	"testing"

	"github.com/openwsi/slide/internal/compositor"
)

func TestSimpleGridIntersectingTiles(t *testing.T) {
	var visited [][2]int
	g := &SimpleGrid{
		TilesAcross: 4, TilesDown: 4,
		TileWidth: 256, TileHeight: 256,
		ReadTile: func(canvas *compositor.Canvas, level, col, row int, userArg interface{}) error {
			visited = append(visited, [2]int{col, row})
			return nil
		},
	}

	canvas := compositor.NewCanvas(300, 300, 200, 200)
	if err := g.PaintRegion(canvas, nil, 200, 200, 0, 300, 300); err != nil {
		t.Fatalf("PaintRegion: %v", err)
	}

	// Region [200,500)x[200,500) over a 256px grid touches col/row 0 and 1.
	want := map[[2]int]bool{{0, 0}: true, {1, 0}: true, {0, 1}: true, {1, 1}: true}
	if len(visited) != len(want) {
		t.Fatalf("visited %d tiles, want %d: %v", len(visited), len(want), visited)
	}
	for _, v := range visited {
		if !want[v] {
			t.Fatalf("unexpected tile visited: %v", v)
		}
	}
}

func TestSimpleGridClampsToGridBounds(t *testing.T) {
	var visited []([2]int)
	g := &SimpleGrid{
		TilesAcross: 2, TilesDown: 2,
		TileWidth: 100, TileHeight: 100,
		ReadTile: func(canvas *compositor.Canvas, level, col, row int, userArg interface{}) error {
			visited = append(visited, [2]int{col, row})
			return nil
		},
	}

	canvas := compositor.NewCanvas(1000, 1000, -500, -500)
	// A huge request straddling the whole grid and beyond must only visit
	// tiles that actually exist.
	if err := g.PaintRegion(canvas, nil, -500, -500, 0, 1000, 1000); err != nil {
		t.Fatalf("PaintRegion: %v", err)
	}
	if len(visited) != 4 {
		t.Fatalf("visited %d tiles, want 4 (the full 2x2 grid)", len(visited))
	}
}

func TestSimpleGridTranslatesCanvasPerTile(t *testing.T) {
	g := &SimpleGrid{
		TilesAcross: 1, TilesDown: 1,
		TileWidth: 16, TileHeight: 16,
		ReadTile: func(canvas *compositor.Canvas, level, col, row int, userArg interface{}) error {
			canvas.SetPixel(0, 0, [4]byte{7, 7, 7, 0xFF}) // tile-local origin
			return nil
		},
	}

	canvas := compositor.NewCanvas(16, 16, 0, 0)
	if err := g.PaintRegion(canvas, nil, 0, 0, 0, 16, 16); err != nil {
		t.Fatalf("PaintRegion: %v", err)
	}
	if canvas.Pix[3] == 0 {
		t.Fatal("tile-local (0,0) should have landed at canvas (0,0)")
	}
}
