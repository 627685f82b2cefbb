package decode

import (
	"bytes"
	"fmt"

	jpeg2000 "github.com/mrjoshuak/go-jpeg2000"
)

// JPEG2000 decodes a JP2/J2K/JPX-compressed tile to premultiplied BGRA
// bytes. Used by backends whose native tile codec is JPEG 2000 (Philips
// iSyntax-derived tiles, some DICOM transfer syntaxes).
//
// Grounded on the pack's retrieved mrjoshuak/go-jpeg2000 manifest, the
// only pure-Go JPEG 2000 decoder present anywhere in the corpus.
func JPEG2000(data []byte) (pix []byte, width, height, stride int, err error) {
	img, err := jpeg2000.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("decode: jpeg2000: %w", err)
	}
	pix, width, height, stride = ToBGRA(img)
	return pix, width, height, stride, nil
}
