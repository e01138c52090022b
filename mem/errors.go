package mem

import "errors"

var (
	// ErrReadOnly indicates a mutation was attempted on a read-only image.
	ErrReadOnly = errors.New("mem: image is read-only")
	// ErrClosed indicates the image was already closed.
	ErrClosed = errors.New("mem: image is closed")
)
