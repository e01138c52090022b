package layout

import "testing"

func TestAlignPage(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0},
		{1, 4096},
		{4095, 4096},
		{4096, 4096},
		{4097, 8192},
	}
	for _, c := range cases {
		if got := AlignPage(c.in); got != c.want {
			t.Errorf("AlignPage(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestPageCount(t *testing.T) {
	cases := []struct{ in, want uint32 }{
		{0, 0},
		{1, 1},
		{4096, 1},
		{4097, 2},
		{2 * 4096, 2},
	}
	for _, c := range cases {
		if got := PageCount(c.in); got != c.want {
			t.Errorf("PageCount(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestMetaFrameCount(t *testing.T) {
	cases := []struct{ in, want uint32 }{
		{0, 0},
		{1, 1},
		{FramesPerMetaFrame, 1},
		{FramesPerMetaFrame + 1, 2},
		{512, 1},  // 512 frames need 128 bitmap bytes
		{8192, 1}, // 8192 frames need 2048 bitmap bytes
	}
	for _, c := range cases {
		if got := MetaFrameCount(c.in); got != c.want {
			t.Errorf("MetaFrameCount(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestImageSize(t *testing.T) {
	if got := ImageSize(0); got != HeaderSize {
		t.Fatalf("ImageSize(0) = %d", got)
	}
	if got := ImageSize(1024); got != HeaderSize+1024*PageSize {
		t.Fatalf("ImageSize(1024) = %d", got)
	}
}

func TestEncodingRoundTrip(t *testing.T) {
	b := make([]byte, 16)
	PutU32(b, 4, 0xDEAD4001)
	if got := ReadU32(b, 4); got != 0xDEAD4001 {
		t.Fatalf("ReadU32 = %#x", got)
	}
	if b[4] != 0x01 {
		t.Fatalf("expected little-endian low byte first, got %#x", b[4])
	}
	PutU16(b, 0, 0xBEEF)
	if got := ReadU16(b, 0); got != 0xBEEF {
		t.Fatalf("ReadU16 = %#x", got)
	}
	PutU64(b, 8, 0x1122334455667788)
	if got := ReadU64(b, 8); got != 0x1122334455667788 {
		t.Fatalf("ReadU64 = %#x", got)
	}
}
