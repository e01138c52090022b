package region

import "errors"

var (
	// ErrWindowTooSmall indicates a window that cannot hold metadata plus data.
	ErrWindowTooSmall = errors.New("region: window must exceed two pages")

	// ErrUnaligned indicates a window base or size that is not page-aligned.
	ErrUnaligned = errors.New("region: window not page-aligned")

	// ErrBadSize indicates a zero-byte request or one larger than the usable window.
	ErrBadSize = errors.New("region: invalid allocation size")

	// ErrNoRegion indicates no free region was large enough for the request.
	ErrNoRegion = errors.New("region: no free region large enough")

	// ErrNoSuchRegion indicates a release address matching no allocated region.
	ErrNoSuchRegion = errors.New("region: no allocated region at address")

	// ErrRegionsFull indicates a descriptor array with no open slot left.
	ErrRegionsFull = errors.New("region: descriptor array full")

	// ErrOutOfWindow indicates an address outside the pool's window.
	ErrOutOfWindow = errors.New("region: address outside window")

	// ErrDestroyed indicates use of a pool after Destroy.
	ErrDestroyed = errors.New("region: pool destroyed")
)
