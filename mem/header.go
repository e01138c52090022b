package mem

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/joshuapare/memkit/internal/layout"
)

const (
	// dwordBitShift is the bit shift to convert index to byte offset for DWORD arrays (i << 2 == i * 4).
	dwordBitShift = 2

	// imgChecksumAllOnes is the special checksum value when XOR results in all 1s.
	imgChecksumAllOnes = 0xFFFFFFFF

	// imgChecksumAllOnesReplacement is the replacement value for all-ones checksum.
	imgChecksumAllOnesReplacement = 0xFFFFFFFE

	// imgChecksumAllZeros is the special checksum value when XOR results in all 0s.
	imgChecksumAllZeros = 0x00000000

	// imgChecksumAllZerosReplacement is the replacement value for all-zeros checksum.
	imgChecksumAllZerosReplacement = 0x00000001

	// imgChecksumDwords is the number of DWORDs the checksum covers
	// (every fixed header word before the checksum field).
	imgChecksumDwords = layout.ImgChecksumOffset / 4
)

// Header represents the 4KiB PMIG header at the start of the image.
// Zero-copy: all accessors read directly from h.raw.
type Header struct {
	raw []byte // len >= 4096
}

// isPMIG is a fast, zero-alloc check for the PMIG signature.
func isPMIG(b []byte) bool {
	const off = layout.ImgSignatureOffset
	const n = layout.ImgSignatureSize
	if len(b) < off+n {
		return false
	}
	return bytes.Equal(b[off:off+n], layout.ImgSignature)
}

// ParseHeader validates the signature and returns a header view.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < layout.HeaderSize {
		return nil, fmt.Errorf("mem: file too small for PMIG header (%d)", len(b))
	}
	if !isPMIG(b) {
		return nil, errors.New("mem: bad PMIG signature")
	}
	return &Header{raw: b[:layout.HeaderSize]}, nil
}

// ---- Primitive field readers (no alloc) ----

// Raw returns the raw bytes of the header.
func (h *Header) Raw() []byte { return h.raw }

// Signature returns the "PMIG" signature bytes.
func (h *Header) Signature() []byte {
	return h.raw[layout.ImgSignatureOffset : layout.ImgSignatureOffset+layout.ImgSignatureSize]
}

// Version returns the image format version.
func (h *Header) Version() uint32 { return layout.ReadU32(h.raw, layout.ImgVersionOffset) }

// PageSize returns the frame size recorded in the header.
func (h *Header) PageSize() uint32 { return layout.ReadU32(h.raw, layout.ImgPageSizeOffset) }

// FrameCount returns the number of frames the image holds.
func (h *Header) FrameCount() uint32 { return layout.ReadU32(h.raw, layout.ImgFrameCountOffset) }

// Flags returns the image flag bits.
func (h *Header) Flags() uint32 { return layout.ReadU32(h.raw, layout.ImgFlagsOffset) }

// Dirty reports whether the image carries unflushed modifications.
func (h *Header) Dirty() bool { return h.Flags()&layout.ImgFlagDirty != 0 }

// StoredChecksum returns the checksum value stored in the header.
func (h *Header) StoredChecksum() uint32 {
	return layout.ReadU32(h.raw, layout.ImgChecksumOffset)
}

// ChecksumOK computes the XOR checksum over the fixed header words and
// compares it to the stored value, including the 0/-1 remapping.
func (h *Header) ChecksumOK() bool {
	return imgChecksum(h.raw[:layout.ImgChecksumOffset]) == h.StoredChecksum()
}

// UpdateChecksum recomputes the checksum and stores it.
func (h *Header) UpdateChecksum() {
	layout.PutU32(h.raw, layout.ImgChecksumOffset, imgChecksum(h.raw[:layout.ImgChecksumOffset]))
}

// SetDirty sets or clears the dirty flag and refreshes the checksum.
func (h *Header) SetDirty(dirty bool) {
	flags := h.Flags()
	if dirty {
		flags |= layout.ImgFlagDirty
	} else {
		flags &^= layout.ImgFlagDirty
	}
	layout.PutU32(h.raw, layout.ImgFlagsOffset, flags)
	h.UpdateChecksum()
}

// Validate performs a thorough header validation with descriptive errors.
// It checks only the 4KiB header against a provided fileSize (the entire
// image file length).
//
// Policy choices:
//   - Signature must be "PMIG"
//   - Checksum must match (XOR of the fixed header words w/ remapping)
//   - Version must be ImageVersion
//   - PageSize must be layout.PageSize; other sizes are never written
//   - FrameCount must be non-zero and fit inside fileSize
//   - The dirty flag is not an error; available via Dirty().
func (h *Header) Validate(fileSize int64) error {
	if len(h.raw) < layout.HeaderSize {
		return fmt.Errorf("%w: header have=%d need=%d", layout.ErrTruncated, len(h.raw), layout.HeaderSize)
	}
	if !isPMIG(h.raw) {
		return layout.ErrSignatureMismatch
	}
	if !h.ChecksumOK() {
		return fmt.Errorf("%w: stored=0x%08X computed=0x%08X",
			layout.ErrChecksum, h.StoredChecksum(), imgChecksum(h.raw[:layout.ImgChecksumOffset]))
	}
	if v := h.Version(); v != layout.ImageVersion {
		return fmt.Errorf("%w: %d", layout.ErrVersion, v)
	}
	if ps := h.PageSize(); ps != layout.PageSize {
		return fmt.Errorf("%w: page size 0x%X", layout.ErrGeometry, ps)
	}
	frames := h.FrameCount()
	if frames == 0 {
		return fmt.Errorf("%w: zero frames", layout.ErrGeometry)
	}
	if want := layout.ImageSize(frames); want > fileSize {
		return fmt.Errorf("%w: %d frames need %d bytes, file has %d",
			layout.ErrGeometry, frames, want, fileSize)
	}
	return nil
}

// WriteHeader formats a fresh version-1 header for an image of frames
// frames into b, which must hold at least HeaderSize bytes.
func WriteHeader(b []byte, frames uint32) error {
	if len(b) < layout.HeaderSize {
		return fmt.Errorf("%w: header buffer %d", layout.ErrTruncated, len(b))
	}
	copy(b[layout.ImgSignatureOffset:], layout.ImgSignature)
	layout.PutU32(b, layout.ImgVersionOffset, layout.ImageVersion)
	layout.PutU32(b, layout.ImgPageSizeOffset, layout.PageSize)
	layout.PutU32(b, layout.ImgFrameCountOffset, frames)
	layout.PutU32(b, layout.ImgFlagsOffset, 0)
	layout.PutU32(b, layout.ImgChecksumOffset, imgChecksum(b[:layout.ImgChecksumOffset]))
	return nil
}

// ---- internals ----

// imgChecksum XORs the fixed header DWORDs. Then:
//
//	if xor==0xFFFFFFFF -> 0xFFFFFFFE
//	if xor==0x00000000 -> 0x00000001
func imgChecksum(head []byte) uint32 {
	var xor uint32
	for i := 0; i < imgChecksumDwords; i++ {
		xor ^= layout.ReadU32(head, i<<dwordBitShift)
	}
	switch xor {
	case imgChecksumAllOnes:
		return imgChecksumAllOnesReplacement
	case imgChecksumAllZeros:
		return imgChecksumAllZerosReplacement
	default:
		return xor
	}
}
