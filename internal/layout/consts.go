// Package layout defines the on-image format for PMIG memory images:
// sizes, header field offsets, frame-state bitmap packing, and page
// table entry bits. All multi-byte fields are little-endian.
package layout

// Image geometry.
const (
	// PageSize is the size of one frame / one page in bytes.
	PageSize = 4096

	// PageShift converts between byte addresses and frame numbers (addr >> PageShift).
	PageShift = 12

	// PageMask extracts the intra-page offset from a byte address.
	PageMask = PageSize - 1

	// HeaderSize is the size of the PMIG base header that precedes frame 0.
	HeaderSize = 4096
)

// PMIG header field offsets. The header occupies the first HeaderSize
// bytes of the image file; frame 0 begins immediately after it.
const (
	// ImgSignatureOffset is the offset of the "PMIG" signature.
	ImgSignatureOffset = 0x00

	// ImgSignatureSize is the length of the signature in bytes.
	ImgSignatureSize = 4

	// ImgVersionOffset is the offset of the format version (u32).
	ImgVersionOffset = 0x04

	// ImgPageSizeOffset is the offset of the page size field (u32).
	ImgPageSizeOffset = 0x08

	// ImgFrameCountOffset is the offset of the frame count field (u32).
	ImgFrameCountOffset = 0x0C

	// ImgFlagsOffset is the offset of the image flags field (u32).
	ImgFlagsOffset = 0x10

	// ImgChecksumOffset is the offset of the header XOR checksum (u32).
	// The checksum covers all header words before this offset.
	ImgChecksumOffset = 0x14

	// ImgMinHeader is the smallest byte count that can hold every fixed header field.
	ImgMinHeader = ImgChecksumOffset + 4
)

// ImgSignature is the magic at the start of every image file.
var ImgSignature = []byte{'P', 'M', 'I', 'G'}

// ImageVersion is the only format version this package reads and writes.
const ImageVersion = 1

// Image flag bits.
const (
	// ImgFlagDirty marks an image with unflushed modifications.
	ImgFlagDirty = 0x1
)

// Frame-state bitmap packing. Each frame consumes two bits:
// the low bit marks the frame allocated, the high bit marks it the
// head of a contiguous allocated run. A head frame carries both bits.
const (
	// StateBits is the number of bitmap bits per frame.
	StateBits = 2

	// StatesPerByte is the number of frame states packed into one bitmap byte.
	StatesPerByte = 8 / StateBits

	// StateMask extracts one frame state after shifting.
	StateMask = 0x3

	// StateAllocatedBit is the low bit of a frame state.
	StateAllocatedBit = 0x1

	// StateHeadBit is the high bit of a frame state.
	StateHeadBit = 0x2

	// FramesPerMetaFrame is the number of frame states one metadata frame describes.
	FramesPerMetaFrame = PageSize * StatesPerByte
)

// Page table geometry. Translation is two-level: a directory frame of
// EntriesPerTable entries, each naming a table frame of EntriesPerTable
// entries, each naming a data frame. One table therefore spans TableSpan
// bytes of address space.
const (
	// EntrySize is the size of one directory or table entry in bytes.
	EntrySize = 4

	// EntriesPerTable is the number of entries in one directory or table frame.
	EntriesPerTable = PageSize / EntrySize

	// TableShift converts between byte addresses and directory slots (addr >> TableShift).
	TableShift = 22

	// TableSpan is the bytes of address space one table frame maps.
	TableSpan = 1 << TableShift

	// TableIndexMask extracts a table index from addr >> PageShift.
	TableIndexMask = EntriesPerTable - 1
)

// Directory and table entry bits. The upper 20 bits of an entry hold a
// frame number shifted by PageShift; the low 12 hold flags.
const (
	// EntryPresent marks an entry as backed by a frame.
	EntryPresent = 0x1

	// EntryWritable marks the mapped page writable.
	EntryWritable = 0x2

	// EntryUser marks the mapped page reachable from user level.
	EntryUser = 0x4

	// EntryFlagsMask extracts the flag bits of an entry.
	EntryFlagsMask = PageSize - 1

	// EntryAddrMask extracts the frame byte-address bits of an entry.
	EntryAddrMask = ^uint32(EntryFlagsMask)
)

// Fault code bits, reported alongside a faulting address.
const (
	// FaultPresent is set when the fault hit a present page (a protection
	// violation) rather than an absent one.
	FaultPresent = 0x1

	// FaultWrite is set when the faulting access was a write.
	FaultWrite = 0x2

	// FaultUser is set when the faulting access came from user level.
	FaultUser = 0x4
)

// Alignment masks used by the Align* helpers.
const (
	// EntryAlignmentMask aligns to entry (4-byte) boundaries.
	EntryAlignmentMask = EntrySize - 1

	// PageAlignmentMask aligns to page (4096-byte) boundaries.
	PageAlignmentMask = PageSize - 1
)
