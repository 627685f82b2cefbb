package decode

import "fmt"

// HEVCDecoder is the injectable seam for HEVC/H.265-compressed tiles
// (used by some Philips iSyntax and Ventana BIF variants). No codec for
// this format exists anywhere in the retrieved pack or has a corresponding
// pure-Go ecosystem module to adopt, so this package defines the
// collaborator interface only; callers that need HEVC support supply an
// implementation (e.g. a cgo binding to libde265) at startup.
type HEVCDecoder interface {
	// DecodeHEVC decodes one HEVC-compressed access unit to premultiplied
	// BGRA bytes with the given row stride.
	DecodeHEVC(data []byte) (pix []byte, width, height, stride int, err error)
}

// ErrNoHEVCDecoder is returned by HEVC when no decoder has been configured.
var ErrNoHEVCDecoder = fmt.Errorf("decode: no HEVC decoder configured")

// HEVC decodes an HEVC-compressed tile using dec, or reports
// ErrNoHEVCDecoder if dec is nil.
func HEVC(dec HEVCDecoder, data []byte) (pix []byte, width, height, stride int, err error) {
	if dec == nil {
		return nil, 0, 0, 0, ErrNoHEVCDecoder
	}
	return dec.DecodeHEVC(data)
}
