// Package decode wraps the buffer-in/pixels-out tile codecs: JPEG, JPEG
// 2000, raw packed RGB/BGR, and an injectable HEVC seam. Every decoder in
// this package returns premultiplied, little-endian BGRA bytes ready to
// hand to a compositor.Canvas, never an image.Image, so callers never pay
// for a second conversion pass.
package decode

import (
	"image"
)

// ToBGRA converts a decoded image.Image to premultiplied, little-endian
// BGRA bytes with the given row stride. It is the landing point for every
// stdlib or third-party codec in this package, all of which hand back an
// image.Image.
func ToBGRA(img image.Image) (pix []byte, width, height, stride int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	stride = width * 4
	pix = make([]byte, stride*height)

	// NRGBA and RGBA are common enough outputs from image/jpeg and the
	// JPEG2000 decoder to warrant a fast path that skips the generic
	// color.Color conversion machinery.
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			srcRow := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride:]
			dstRow := pix[y*stride:]
			for x := 0; x < width; x++ {
				so := (x+b.Min.X-src.Rect.Min.X) * 4
				r, g, bl, a := srcRow[so], srcRow[so+1], srcRow[so+2], srcRow[so+3]
				writePremultiplied(dstRow[x*4:x*4+4], r, g, bl, a)
			}
		}
		return pix, width, height, stride
	case *image.RGBA:
		for y := 0; y < height; y++ {
			srcRow := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride:]
			dstRow := pix[y*stride:]
			for x := 0; x < width; x++ {
				so := (x+b.Min.X-src.Rect.Min.X) * 4
				r, g, bl, a := srcRow[so], srcRow[so+1], srcRow[so+2], srcRow[so+3]
				dstRow[x*4+0] = bl
				dstRow[x*4+1] = g
				dstRow[x*4+2] = r
				dstRow[x*4+3] = a
			}
		}
		return pix, width, height, stride
	}

	for y := 0; y < height; y++ {
		dstRow := pix[y*stride:]
		for x := 0; x < width; x++ {
			r16, g16, b16, a16 := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			a8 := uint8(a16 >> 8)
			// color.Color.RGBA() already returns alpha-premultiplied
			// 16-bit components; truncate to 8 bits per channel.
			dstRow[x*4+0] = uint8(b16 >> 8)
			dstRow[x*4+1] = uint8(g16 >> 8)
			dstRow[x*4+2] = uint8(r16 >> 8)
			dstRow[x*4+3] = a8
		}
	}
	return pix, width, height, stride
}

// writePremultiplied converts one straight-alpha RGBA pixel to
// premultiplied little-endian BGRA in dst[0:4].
func writePremultiplied(dst []byte, r, g, b, a uint8) {
	if a == 0xFF || a == 0 {
		dst[0], dst[1], dst[2], dst[3] = b, g, r, a
		return
	}
	af := uint32(a)
	dst[0] = uint8(uint32(b) * af / 255)
	dst[1] = uint8(uint32(g) * af / 255)
	dst[2] = uint8(uint32(r) * af / 255)
	dst[3] = a
}
