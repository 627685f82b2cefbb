// Package compositor implements the saturating BGRA tile compositor that
// every grid variant paints onto: a fixed-size pixel buffer mapped onto a
// rectangle of level-space coordinates, with a translate operation that
// lets a tile decoder address its own pixels tile-locally while they land
// at the right place in the parent buffer (spec.md §4.3/§4.5).
package compositor

// Canvas is a BGRA (premultiplied, little-endian, alpha in the high byte)
// pixel buffer. OriginX and OriginY are the level-space coordinates of
// Pix's (0,0) pixel, so SetPixel/Blit callers address pixels in level
// space and the canvas does the translation internally.
type Canvas struct {
	Width, Height   int
	Pix             []byte // len == Width*Height*4
	OriginX, OriginY int
}

// NewCanvas allocates a zeroed (fully transparent) canvas covering the
// level-space rectangle [originX, originX+width) x [originY, originY+height).
func NewCanvas(width, height, originX, originY int) *Canvas {
	return &Canvas{
		Width:   width,
		Height:  height,
		Pix:     make([]byte, width*height*4),
		OriginX: originX,
		OriginY: originY,
	}
}

// Translated returns a view sharing the same backing buffer, with its
// origin shifted by (dx, dy). A tile decoder that writes through the
// returned view using tile-local coordinates (0..tileW, 0..tileH) lands
// each pixel at (dx+localX, dy+localY) in the parent canvas's level space
// — this is the "translate the canvas to the tile's level-space origin"
// step grid implementations perform before invoking a read-tile callback
// (spec.md §4.3).
func (c *Canvas) Translated(dx, dy int) *Canvas {
	return &Canvas{
		Width:   c.Width,
		Height:  c.Height,
		Pix:     c.Pix,
		OriginX: c.OriginX - dx,
		OriginY: c.OriginY - dy,
	}
}

// SetPixel composites one BGRA pixel at level-space (x, y) using the
// saturating, touched-once seam policy: a pixel already written by an
// earlier tile draw is left alone instead of blended again, so
// overlapping or subtile-fragmented tiles never darken a seam (spec.md
// §4.3). Coordinates outside the canvas are silently dropped.
func (c *Canvas) SetPixel(x, y int, px [4]byte) {
	lx, ly := x-c.OriginX, y-c.OriginY
	if lx < 0 || ly < 0 || lx >= c.Width || ly >= c.Height {
		return
	}
	off := (ly*c.Width + lx) * 4
	if c.Pix[off+3] != 0 {
		return
	}
	copy(c.Pix[off:off+4], px[:])
}

// Blit composites a decoded tile's pixel rectangle onto the canvas at
// level-space (originX, originY), stopping at clipW/clipH — the portion
// of the tile that actually lies inside the level, for tiles that overlap
// the level's right/bottom edge (spec.md §4.5). src holds BGRA rows of
// srcStride bytes each.
func (c *Canvas) Blit(originX, originY, clipW, clipH int, src []byte, srcStride int) {
	for y := 0; y < clipH; y++ {
		rowStart := y * srcStride
		row := src[rowStart : rowStart+clipW*4]
		for x := 0; x < clipW; x++ {
			var px [4]byte
			copy(px[:], row[x*4:x*4+4])
			c.SetPixel(originX+x, originY+y, px)
		}
	}
}
