// Package grid implements the three grid variants that convert a
// level-space rectangle into an ordered set of tile-paint operations
// (spec.md §4.3), generalizing the teacher's rectangle-of-child-tiles
// traversal in internal/tile/downsample.go from "downsample four children
// into a parent" to "paint arbitrary tiles onto an arbitrary sub-rectangle
// of a caller canvas".
package grid

import "github.com/openwsi/slide/internal/compositor"

// ReadTileFunc decodes and composites one tile. canvas has already been
// translated to the tile's level-space origin (spec.md §4.3): the
// implementation composites using tile-local coordinates
// 0..tileWidth, 0..tileHeight.
type ReadTileFunc func(canvas *compositor.Canvas, level, col, row int, userArg interface{}) error

// Grid converts the level-space rectangle [x, x+w) x [y, y+h) into a
// sequence of ReadTileFunc invocations, one per intersecting tile.
type Grid interface {
	PaintRegion(canvas *compositor.Canvas, userArg interface{}, x, y, level, w, h int) error
}

// floorDiv divides a by b, rounding toward negative infinity (unlike Go's
// native truncating division), so tile indices for negative level-space
// coordinates come out correct.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
