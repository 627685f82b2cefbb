package tifflike

import "testing"

func TestDirectoryGetHasTags(t *testing.T) {
	d := &Directory{
		Offset: 8,
		items: map[uint16]*Item{
			TagImageWidth:  {Tag: TagImageWidth},
			TagImageLength: {Tag: TagImageLength},
		},
	}

	if !d.Has(TagImageWidth) {
		t.Fatal("expected TagImageWidth present")
	}
	if d.Has(TagTileWidth) {
		t.Fatal("did not expect TagTileWidth present")
	}
	if _, ok := d.Get(TagTileWidth); ok {
		t.Fatal("Get should report ok=false for a missing tag")
	}
	if len(d.Tags()) != 2 {
		t.Fatalf("len(Tags()) = %d, want 2", len(d.Tags()))
	}
}
