package decode

// SampleOrder describes how an uncompressed sample stream packs its color
// channels, for vendor formats that store raw tile pixels directly (most
// generic-TIFF and scanner-proprietary raw tiles use RGB or BGR).
type SampleOrder int

const (
	OrderRGB SampleOrder = iota
	OrderBGR
)

// Raw converts a packed, uncompressed sample stream (1, 2, 3, or 4 samples
// per pixel, one byte per sample) to premultiplied little-endian BGRA
// bytes. One- and two-sample-per-pixel data is treated as grayscale
// (with the second sample, when present, as alpha); three- and
// four-sample data is treated as color per order, with a fourth sample
// as alpha when present.
//
// Grounded on internal/cog/reader.go's decodeRawTile, generalized from a
// fixed RGB/RGBA assumption to an explicit OrderRGB/OrderBGR distinction
// (several proprietary whole-slide tile formats pack BGR, not RGB) and
// expressed as a plain per-pixel loop that switches on samplesPerPixel for
// every pixel; it is not unrolled and uses no SIMD, since no portable SIMD
// intrinsic library exists anywhere in the retrieved pack.
func Raw(data []byte, width, height, samplesPerPixel int, order SampleOrder) (pix []byte, stride int) {
	stride = width * 4
	pix = make([]byte, stride*height)
	spp := samplesPerPixel

	for y := 0; y < height; y++ {
		srcRow := data[y*width*spp:]
		dstRow := pix[y*stride:]
		for x := 0; x < width; x++ {
			so := x * spp
			if so+spp > len(srcRow) {
				break
			}
			do := x * 4
			switch spp {
			case 1:
				v := srcRow[so]
				dstRow[do], dstRow[do+1], dstRow[do+2], dstRow[do+3] = v, v, v, 0xFF
			case 2:
				v, a := srcRow[so], srcRow[so+1]
				if a == 0xFF || a == 0 {
					dstRow[do], dstRow[do+1], dstRow[do+2], dstRow[do+3] = v, v, v, a
				} else {
					writePremultiplied(dstRow[do:do+4], v, v, v, a)
				}
			case 3:
				writeRGBTriplet(dstRow[do:do+4], srcRow[so], srcRow[so+1], srcRow[so+2], order)
			default: // 4 or more: fourth sample is alpha, rest ignored
				r, g, b, a := srcRow[so], srcRow[so+1], srcRow[so+2], srcRow[so+3]
				if order == OrderBGR {
					r, b = b, r
				}
				if a == 0xFF || a == 0 {
					dstRow[do+0], dstRow[do+1], dstRow[do+2], dstRow[do+3] = b, g, r, a
				} else {
					writePremultiplied(dstRow[do:do+4], r, g, b, a)
				}
			}
		}
	}
	return pix, stride
}

func writeRGBTriplet(dst []byte, s0, s1, s2 byte, order SampleOrder) {
	r, g, b := s0, s1, s2
	if order == OrderBGR {
		r, b = b, r
	}
	dst[0], dst[1], dst[2], dst[3] = b, g, r, 0xFF
}
