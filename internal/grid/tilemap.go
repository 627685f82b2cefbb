package grid

import "github.com/openwsi/slide/internal/compositor"

// tileKey is the sparse (col, row) address of a TilemapGrid cell.
type tileKey struct{ col, row int }

type tilemapEntry struct {
	dx, dy, w, h int
	opaque       interface{}
}

// TilemapGrid is a sparse mapping from (col, row) to a per-tile record
// holding a fractional offset (dx, dy) and explicit tile size, so tiles
// need not all share one uniform cell size (spec.md §4.3; used by the
// Ventana BIF backend's join-graph overlaps and other vendors whose tiles
// are not laid out on an exact col*tw grid).
type TilemapGrid struct {
	TileWidth, TileHeight int
	ReadTile              ReadTileFunc

	entries map[tileKey]tilemapEntry
}

// NewTilemapGrid returns an empty TilemapGrid ready for Insert calls.
func NewTilemapGrid(tileWidth, tileHeight int, readTile ReadTileFunc) *TilemapGrid {
	return &TilemapGrid{
		TileWidth:  tileWidth,
		TileHeight: tileHeight,
		ReadTile:   readTile,
		entries:    make(map[tileKey]tilemapEntry),
	}
}

// Insert records a tile at (col, row), whose level-space origin is
// (col*TileWidth+dx, row*TileHeight+dy) and whose pixel rectangle is
// w x h. opaque is carried through to ReadTile unchanged.
func (g *TilemapGrid) Insert(col, row, dx, dy, w, h int, opaque interface{}) {
	g.entries[tileKey{col, row}] = tilemapEntry{dx: dx, dy: dy, w: w, h: h, opaque: opaque}
}

// Bounds returns the union of every inserted tile's level-space rectangle,
// used by backends whose level size equals the total covered area rather
// than a separately declared width/height (spec.md §4.3).
func (g *TilemapGrid) Bounds() (x, y, w, h int) {
	first := true
	var minX, minY, maxX, maxY int
	for k, e := range g.entries {
		ox := k.col*g.TileWidth + e.dx
		oy := k.row*g.TileHeight + e.dy
		ex, ey := ox+e.w, oy+e.h
		if first {
			minX, minY, maxX, maxY = ox, oy, ex, ey
			first = false
			continue
		}
		if ox < minX {
			minX = ox
		}
		if oy < minY {
			minY = oy
		}
		if ex > maxX {
			maxX = ex
		}
		if ey > maxY {
			maxY = ey
		}
	}
	if first {
		return 0, 0, 0, 0
	}
	return minX, minY, maxX - minX, maxY - minY
}

// PaintRegion visits every inserted tile intersecting the request
// rectangle; cells with no entry are skipped, leaving the canvas
// transparent there (spec.md §4.3 "missing cells are skipped").
func (g *TilemapGrid) PaintRegion(canvas *compositor.Canvas, userArg interface{}, x, y, level, w, h int) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	reqX0, reqY0, reqX1, reqY1 := x, y, x+w, y+h

	for k, e := range g.entries {
		ox := k.col*g.TileWidth + e.dx
		oy := k.row*g.TileHeight + e.dy
		if ox >= reqX1 || oy >= reqY1 || ox+e.w <= reqX0 || oy+e.h <= reqY0 {
			continue
		}
		tc := canvas.Translated(ox, oy)
		if err := g.ReadTile(tc, level, k.col, k.row, e.opaque); err != nil {
			return err
		}
	}
	return nil
}
