package decode

import "testing"

func TestRawGrayscaleOneSample(t *testing.T) {
	data := []byte{10, 20, 30, 40} // 2x2, spp=1
	pix, stride := Raw(data, 2, 2, 1, OrderRGB)
	if stride != 8 {
		t.Fatalf("stride = %d, want 8", stride)
	}
	if pix[0] != 10 || pix[1] != 10 || pix[2] != 10 || pix[3] != 0xFF {
		t.Fatalf("pixel(0,0) = %v, want BGRA(10,10,10,255)", pix[0:4])
	}
	if pix[4] != 20 || pix[7] != 0xFF {
		t.Fatalf("pixel(1,0) = %v, want gray 20 opaque", pix[4:8])
	}
}

func TestRawRGBTriplet(t *testing.T) {
	data := []byte{255, 128, 0} // 1x1, spp=3, R=255 G=128 B=0
	pix, _ := Raw(data, 1, 1, 3, OrderRGB)
	if pix[0] != 0 || pix[1] != 128 || pix[2] != 255 || pix[3] != 0xFF {
		t.Fatalf("pixel = %v, want BGRA(0,128,255,255)", pix[:4])
	}
}

func TestRawBGRTripletSwapsChannels(t *testing.T) {
	data := []byte{255, 128, 0} // stored as B=255 G=128 R=0
	pix, _ := Raw(data, 1, 1, 3, OrderBGR)
	if pix[0] != 255 || pix[1] != 128 || pix[2] != 0 || pix[3] != 0xFF {
		t.Fatalf("pixel = %v, want BGRA(255,128,0,255)", pix[:4])
	}
}

func TestRawRGBAFourSamples(t *testing.T) {
	data := []byte{100, 150, 200, 64} // R=100 G=150 B=200 A=64
	pix, _ := Raw(data, 1, 1, 4, OrderRGB)
	if pix[3] != 64 {
		t.Fatalf("alpha = %d, want 64", pix[3])
	}
	// Alpha < 255 and > 0 must have been premultiplied, so the blue
	// channel (200 straight) should no longer equal 200.
	if pix[0] == 200 {
		t.Fatal("expected premultiplication to scale the blue channel")
	}
}

func TestRawTwoSampleGrayAlpha(t *testing.T) {
	data := []byte{77, 0xFF} // gray=77, alpha=255 (opaque, no scaling)
	pix, _ := Raw(data, 1, 1, 2, OrderRGB)
	if pix[0] != 77 || pix[1] != 77 || pix[2] != 77 || pix[3] != 0xFF {
		t.Fatalf("pixel = %v, want BGRA(77,77,77,255)", pix[:4])
	}
}

func TestRawTruncatedRowStopsGracefully(t *testing.T) {
	// Only 2 bytes of data for a row that needs 3 samples per pixel * 2 px.
	data := []byte{1, 2}
	pix, stride := Raw(data, 2, 1, 3, OrderRGB)
	if len(pix) != stride {
		t.Fatalf("len(pix) = %d, want %d", len(pix), stride)
	}
	// Both pixels should remain zeroed (transparent) since no full pixel
	// fit in the truncated row.
	for _, b := range pix {
		if b != 0 {
			t.Fatal("truncated row should leave pixels fully zeroed")
		}
	}
}
