package paging

import "errors"

var (
	// ErrBadConfig indicates a System configuration that cannot work.
	ErrBadConfig = errors.New("paging: bad configuration")

	// ErrNotMapped indicates a translation of an address with no present mapping.
	ErrNotMapped = errors.New("paging: address not mapped")

	// ErrNotClaimed indicates a fault on an address no registered pool claims.
	ErrNotClaimed = errors.New("paging: address not claimed by any pool")

	// ErrProtection indicates a fault on a present page, which demand
	// paging never repairs.
	ErrProtection = errors.New("paging: protection violation")

	// ErrKernelSpace indicates an operation forbidden on the kernel space.
	ErrKernelSpace = errors.New("paging: operation not allowed on kernel space")

	// ErrDestroyed indicates use of an address space after Destroy.
	ErrDestroyed = errors.New("paging: address space destroyed")

	// ErrNoActive indicates an operation that needs a loaded address space.
	ErrNoActive = errors.New("paging: no address space loaded")
)
