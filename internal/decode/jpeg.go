package decode

import (
	"bytes"
	"fmt"
	"image/jpeg"
)

// JPEG decodes a JPEG-compressed tile to premultiplied BGRA bytes.
// tables, when non-empty, holds an abbreviated JPEG stream's shared
// quantization/Huffman tables (TIFF's JPEGTables tag); they are spliced in
// front of data the same way internal/cog's tile reader does for
// tile-shared JPEG headers.
//
// Grounded on internal/encode/decode.go's DecodeImage, which wraps
// image/jpeg directly rather than a third-party JPEG codec — the stdlib
// decoder is the teacher's own choice here, so no ecosystem substitute is
// adopted.
func JPEG(data, tables []byte) (pix []byte, width, height, stride int, err error) {
	full := data
	if len(tables) > 0 {
		t := tables
		if len(t) >= 2 && t[len(t)-2] == 0xFF && t[len(t)-1] == 0xD9 {
			t = t[:len(t)-2]
		}
		body := data
		if len(body) >= 2 && body[0] == 0xFF && body[1] == 0xD8 {
			body = body[2:]
		}
		full = make([]byte, len(t)+len(body))
		copy(full, t)
		copy(full[len(t):], body)
	}

	img, err := jpeg.Decode(bytes.NewReader(full))
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("decode: jpeg: %w", err)
	}
	pix, width, height, stride = ToBGRA(img)
	return pix, width, height, stride, nil
}
