package mem

import (
	"testing"

	"github.com/joshuapare/memkit/internal/layout"
)

func makeHeaderBytes(t *testing.T, frames uint32, mutate func(h []byte)) []byte {
	t.Helper()
	h := make([]byte, layout.HeaderSize)
	if err := WriteHeader(h, frames); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if mutate != nil {
		mutate(h)
	}
	return h
}

func TestParseHeader(t *testing.T) {
	h := makeHeaderBytes(t, 1024, nil)
	hdr, err := ParseHeader(h)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got := hdr.Version(); got != layout.ImageVersion {
		t.Errorf("Version = %d", got)
	}
	if got := hdr.PageSize(); got != layout.PageSize {
		t.Errorf("PageSize = %d", got)
	}
	if got := hdr.FrameCount(); got != 1024 {
		t.Errorf("FrameCount = %d", got)
	}
	if hdr.Dirty() {
		t.Error("fresh header reports dirty")
	}
	if !hdr.ChecksumOK() {
		t.Error("fresh header fails checksum")
	}
}

func TestParseHeaderRejectsBadSignature(t *testing.T) {
	h := makeHeaderBytes(t, 16, func(b []byte) { b[0] = 'X' })
	if _, err := ParseHeader(h); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 64)); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestValidateCatchesCorruption(t *testing.T) {
	size := layout.ImageSize(16)

	cases := []struct {
		name   string
		mutate func(h []byte)
	}{
		{"flipped version", func(b []byte) { layout.PutU32(b, layout.ImgVersionOffset, 9) }},
		{"odd page size", func(b []byte) { layout.PutU32(b, layout.ImgPageSizeOffset, 512) }},
		{"zero frames", func(b []byte) { layout.PutU32(b, layout.ImgFrameCountOffset, 0) }},
		{"frame count past file", func(b []byte) { layout.PutU32(b, layout.ImgFrameCountOffset, 17) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := makeHeaderBytes(t, 16, c.mutate)
			hdr, err := ParseHeader(h)
			if err != nil {
				t.Fatalf("ParseHeader: %v", err)
			}
			if err := hdr.Validate(size); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateCatchesStaleChecksum(t *testing.T) {
	// Field rewritten without UpdateChecksum must fail validation.
	h := makeHeaderBytes(t, 16, func(b []byte) { layout.PutU32(b, layout.ImgFlagsOffset, 0x80) })
	hdr, err := ParseHeader(h)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if err := hdr.Validate(layout.ImageSize(16)); err == nil {
		t.Fatal("expected checksum error")
	}
	hdr.UpdateChecksum()
	if err := hdr.Validate(layout.ImageSize(16)); err != nil {
		t.Fatalf("Validate after UpdateChecksum: %v", err)
	}
}

func TestSetDirtyKeepsChecksumValid(t *testing.T) {
	h := makeHeaderBytes(t, 16, nil)
	hdr, err := ParseHeader(h)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	hdr.SetDirty(true)
	if !hdr.Dirty() {
		t.Error("dirty flag not set")
	}
	if !hdr.ChecksumOK() {
		t.Error("checksum stale after SetDirty(true)")
	}
	hdr.SetDirty(false)
	if hdr.Dirty() {
		t.Error("dirty flag not cleared")
	}
	if !hdr.ChecksumOK() {
		t.Error("checksum stale after SetDirty(false)")
	}
}

func TestChecksumRemapsDegenerateValues(t *testing.T) {
	// All-zero input XORs to 0, which must remap to 1.
	if got := imgChecksum(make([]byte, layout.ImgChecksumOffset)); got != imgChecksumAllZerosReplacement {
		t.Fatalf("all-zeros checksum = %#x", got)
	}
	ones := make([]byte, layout.ImgChecksumOffset)
	layout.PutU32(ones, 0, 0xFFFFFFFF)
	if got := imgChecksum(ones); got != imgChecksumAllOnesReplacement {
		t.Fatalf("all-ones checksum = %#x", got)
	}
}
