package decode

import (
	"image"
	"image/color"
	"testing"
)

func TestToBGRAFromRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 1, G: 2, B: 3, A: 0})

	pix, w, h, stride := ToBGRA(img)
	if w != 2 || h != 2 || stride != 8 {
		t.Fatalf("dims = %d,%d,%d want 2,2,8", w, h, stride)
	}
	px0 := pix[0:4]
	if px0[0] != 30 || px0[1] != 20 || px0[2] != 10 || px0[3] != 255 {
		t.Fatalf("pixel(0,0) = %v, want BGRA(30,20,10,255)", px0)
	}
}

func TestToBGRAFromNRGBAPremultiplies(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	pix, _, _, _ := ToBGRA(img)
	// Premultiplied at alpha=128 (~0.5), channel values roughly halve.
	if pix[2] == 200 {
		t.Fatal("red channel should have been premultiplied by alpha, not left straight")
	}
	if pix[3] != 128 {
		t.Fatalf("alpha = %d, want 128", pix[3])
	}
}

func TestToBGRAFromNRGBAFullyOpaqueIsUnchanged(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	pix, _, _, _ := ToBGRA(img)
	if pix[0] != 50 || pix[1] != 100 || pix[2] != 200 || pix[3] != 255 {
		t.Fatalf("opaque pixel = %v, want BGRA(50,100,200,255) unscaled", pix[:4])
	}
}

func TestToBGRAGenericPath(t *testing.T) {
	// image.Gray isn't given a fast path, exercising the generic
	// color.Color.RGBA() fallback.
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: 128})

	pix, _, _, _ := ToBGRA(img)
	if pix[0] != 128 || pix[1] != 128 || pix[2] != 128 || pix[3] != 255 {
		t.Fatalf("gray pixel = %v, want BGRA(128,128,128,255)", pix[:4])
	}
}

func TestToBGRARespectsSubImageOffsets(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 4, 4))
	base.SetRGBA(2, 2, color.RGBA{R: 9, G: 8, B: 7, A: 255})
	sub := base.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)

	pix, w, h, _ := ToBGRA(sub)
	if w != 2 || h != 2 {
		t.Fatalf("dims = %d,%d want 2,2", w, h)
	}
	if pix[0] != 7 || pix[1] != 8 || pix[2] != 9 {
		t.Fatalf("sub-image origin pixel = %v, want BGRA(7,8,9,255)", pix[:4])
	}
}
