package layout

// Alignment and size arithmetic for image geometry.
// Frame numbers, window bases, and region sizes all round in units of
// pages; entries round in units of 4 bytes.

// AlignPage returns n aligned up to the next page (4096-byte) boundary.
//
// Example:
//
//	AlignPage(1)    = 4096
//	AlignPage(4096) = 4096
//	AlignPage(4097) = 8192
func AlignPage(n int) int {
	return (n + PageAlignmentMask) & ^PageAlignmentMask
}

// AlignEntry returns n aligned up to the next 4-byte entry boundary.
func AlignEntry(n int) int {
	return (n + EntryAlignmentMask) & ^EntryAlignmentMask
}

// PageCount returns the number of whole pages needed to hold n bytes.
//
// Example:
//
//	PageCount(0)    = 0
//	PageCount(1)    = 1
//	PageCount(4096) = 1
//	PageCount(4097) = 2
func PageCount(n uint32) uint32 {
	return (n + PageMask) / PageSize
}

// MetaFrameCount returns the number of whole frames needed to hold the
// two-bit states of frames frames.
func MetaFrameCount(frames uint32) uint32 {
	return (frames + FramesPerMetaFrame - 1) / FramesPerMetaFrame
}

// ImageSize returns the byte size of an image file holding frames frames.
func ImageSize(frames uint32) int64 {
	return HeaderSize + int64(frames)*PageSize
}
