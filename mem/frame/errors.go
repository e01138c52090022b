package frame

import "errors"

var (
	// ErrExhausted indicates the pool has fewer free frames than requested.
	ErrExhausted = errors.New("frame: not enough free frames")

	// ErrNoRun indicates enough frames are free but no contiguous run fits the request.
	ErrNoRun = errors.New("frame: no contiguous run large enough")

	// ErrBadRequest indicates a zero-length allocation or reservation.
	ErrBadRequest = errors.New("frame: zero-frame request")

	// ErrNotHead indicates a release naming a frame that is not the head of a sequence.
	ErrNotHead = errors.New("frame: frame is not a head of sequence")

	// ErrOutOfRange indicates a frame or range outside the pool.
	ErrOutOfRange = errors.New("frame: frame outside pool range")

	// ErrNotOwned indicates no registered pool contains the frame.
	ErrNotOwned = errors.New("frame: no pool owns frame")

	// ErrBadGeometry indicates pool geometry that cannot work, such as a
	// bitmap range overlapping the frames it describes.
	ErrBadGeometry = errors.New("frame: bad pool geometry")
)
