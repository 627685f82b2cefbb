package grid

import "github.com/openwsi/slide/internal/compositor"

// SimpleGrid is a uniform grid of TileWidth x TileHeight tiles, TilesAcross
// by TilesDown of them, addressed by (col, row) (spec.md §4.3).
type SimpleGrid struct {
	TilesAcross, TilesDown int
	TileWidth, TileHeight  int
	ReadTile               ReadTileFunc
}

// PaintRegion computes the axis-aligned rectangle of tiles intersecting
// the request, and for each invokes ReadTile with the canvas translated
// to that tile's level-space origin.
func (g *SimpleGrid) PaintRegion(canvas *compositor.Canvas, userArg interface{}, x, y, level, w, h int) error {
	if g.TileWidth <= 0 || g.TileHeight <= 0 || w <= 0 || h <= 0 {
		return nil
	}

	startCol := floorDiv(x, g.TileWidth)
	endCol := floorDiv(x+w-1, g.TileWidth)
	startRow := floorDiv(y, g.TileHeight)
	endRow := floorDiv(y+h-1, g.TileHeight)

	if startCol < 0 {
		startCol = 0
	}
	if startRow < 0 {
		startRow = 0
	}
	if endCol > g.TilesAcross-1 {
		endCol = g.TilesAcross - 1
	}
	if endRow > g.TilesDown-1 {
		endRow = g.TilesDown - 1
	}

	for row := startRow; row <= endRow; row++ {
		for col := startCol; col <= endCol; col++ {
			tileOriginX := col * g.TileWidth
			tileOriginY := row * g.TileHeight
			tc := canvas.Translated(tileOriginX, tileOriginY)
			if err := g.ReadTile(tc, level, col, row, userArg); err != nil {
				return err
			}
		}
	}
	return nil
}
