package grid

import (
	"sort"

	"github.com/openwsi/slide/internal/compositor"
)

type rangeTile struct {
	x0, y0, x1, y1 int
	col, row       int
	opaque         interface{}
}

// RangeGrid enumerates tiles addressed by arbitrary pixel position rather
// than a fixed (col, row) grid — e.g. DICOM frames, or any backend whose
// tile placement isn't a simple multiply — by interval overlap against the
// requested rectangle (spec.md §4.3: "enumerates tiles by interval trees
// keyed on level coordinates"). Tiles are kept sorted by their starting X
// coordinate; PaintRegion binary-searches to the last tile that could
// possibly intersect and scans from the start, the single-axis reduction
// an interval tree gives over a full scan.
type RangeGrid struct {
	ReadTile ReadTileFunc

	tiles  []rangeTile
	sorted bool
}

// Insert records a tile whose level-space rectangle is
// [x0, x0+w) x [y0, y0+h).
func (g *RangeGrid) Insert(col, row, x0, y0, w, h int, opaque interface{}) {
	g.tiles = append(g.tiles, rangeTile{x0: x0, y0: y0, x1: x0 + w, y1: y0 + h, col: col, row: row, opaque: opaque})
	g.sorted = false
}

func (g *RangeGrid) ensureSorted() {
	if g.sorted {
		return
	}
	sort.Slice(g.tiles, func(i, j int) bool { return g.tiles[i].x0 < g.tiles[j].x0 })
	g.sorted = true
}

// PaintRegion visits every inserted tile whose rectangle intersects the
// requested one.
func (g *RangeGrid) PaintRegion(canvas *compositor.Canvas, userArg interface{}, x, y, level, w, h int) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	g.ensureSorted()
	x0, y0, x1, y1 := x, y, x+w, y+h

	// Tiles are sorted by x0; once a tile's x0 >= x1, it and every tile
	// after it start to the right of the request and cannot intersect.
	limit := sort.Search(len(g.tiles), func(i int) bool { return g.tiles[i].x0 >= x1 })

	for i := 0; i < limit; i++ {
		t := g.tiles[i]
		if t.x1 <= x0 || t.y1 <= y0 || t.y0 >= y1 {
			continue
		}
		tc := canvas.Translated(t.x0, t.y0)
		if err := g.ReadTile(tc, level, t.col, t.row, t.opaque); err != nil {
			return err
		}
	}
	return nil
}
