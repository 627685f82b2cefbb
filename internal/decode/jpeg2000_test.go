package decode

import "testing"

func TestJPEG2000RejectsGarbage(t *testing.T) {
	if _, _, _, _, err := JPEG2000([]byte("not a jp2 stream")); err == nil {
		t.Fatal("expected an error decoding non-JPEG2000 bytes")
	}
}
