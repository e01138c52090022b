package layout

import "errors"

var (
	// ErrSignatureMismatch indicates the image header had an unexpected magic.
	ErrSignatureMismatch = errors.New("layout: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("layout: truncated buffer")
	// ErrVersion indicates an image format version this package does not read.
	ErrVersion = errors.New("layout: unsupported image version")
	// ErrChecksum indicates the header checksum did not match its contents.
	ErrChecksum = errors.New("layout: header checksum mismatch")
	// ErrGeometry indicates header geometry fields that contradict the file.
	ErrGeometry = errors.New("layout: bad image geometry")
)
