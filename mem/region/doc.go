// Package region provides byte-granular allocation inside virtual
// address windows.
//
// # Overview
//
// A Pool carves regions out of one contiguous window of a space's
// virtual address range. Its bookkeeping is self-hosted: the window's
// first two pages hold fixed-capacity descriptor arrays (allocated
// regions in page 0, free regions in page 1), written through the
// owning address space like any other memory. Writing them is what
// demand-maps them, so a pool bootstraps itself through its own fault
// path.
//
// Allocation is first-fit over the free-region array and rounds sizes
// up to whole pages. Release returns a region's pages to the frame
// layer one by one. Freed regions are recorded as-is; adjacent free
// regions are never merged, so a pool's free list fragments over time
// and long-lived pools should expect ErrRegionsFull once 512 free
// entries exist.
//
// Pools implement paging.Claimant: a faulting address is legitimate if
// it falls in the metadata pages or any allocated region, and faults in
// a pool's window draw data frames from the pool's backing frame pool.
//
// # Usage Example
//
//	pool, err := region.New(space, 512<<20, 256<<20, processFrames)
//	...
//	addr, err := pool.Allocate(7000) // two pages
//	...
//	err = pool.Release(addr)
//
// # Thread Safety
//
// Pool instances are not thread-safe. Callers must synchronize access
// externally.
package region
