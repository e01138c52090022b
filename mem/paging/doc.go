// Package paging provides two-level address translation and demand
// paging over a memory image.
//
// # Overview
//
// A System owns the translation machinery for one image: which frame
// pools supply page directories, page tables, and demand-faulted data
// frames, how much of the low address space belongs to the kernel, and
// which address space is currently loaded. Each AddressSpace is one
// page directory frame plus the claimants registered against it.
//
// Directories and tables are 1024-entry arrays of 32-bit words living
// in image frames, so a translated image carries its complete mapping
// state on disk.
//
// # Address Layout
//
//	slot  = addr >> 22    directory slot (4MB per slot)
//	index = addr >> 12 & 0x3FF    table index
//	off   = addr & 0xFFF          intra-page offset
//
// The first address space built becomes the kernel space: its kernel
// prefix receives one pre-built table per slot, the shared span is
// identity-mapped, and the last kernel slot maps the directory onto
// itself (the recursive window). Later spaces share the kernel tables
// by copying the prefix slots and install their own recursive entry.
//
// # Demand Paging
//
// Touching an unmapped address through ReadAt/WriteAt raises a fault
// handled by the system: the faulting address is checked against the
// registered claimants (kernel-wide list first, then the space's own),
// a table frame is installed if the directory slot was absent, and a
// data frame is installed from the claimant's backing pool. Unclaimed
// addresses and protection faults return errors instead of mapping
// anything.
//
// # Usage Example
//
//	sys, err := paging.NewSystem(img, paging.Config{
//	    Directories: kernelPool,
//	    Pages:       processPool,
//	    Registry:    reg,
//	})
//	...
//	kernel, err := sys.NewAddressSpace() // first space = kernel space
//	err = kernel.Load()
//	err = sys.Enable()
//
// # Thread Safety
//
// System and AddressSpace instances are not thread-safe. Callers must
// synchronize access externally.
//
// # Related Packages
//
//   - github.com/joshuapare/memkit/mem/frame: the pools entries point into
//   - github.com/joshuapare/memkit/mem/region: claimants carving windows
//     out of the virtual address space
package paging
