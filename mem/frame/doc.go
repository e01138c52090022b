// Package frame provides contiguous frame allocation over bitmap metadata.
//
// # Overview
//
// This package implements physical frame management for memory images.
// Each pool owns a contiguous range of frames and records their states
// in a packed two-bit bitmap that itself lives inside image frames, so
// allocator state survives a close/reopen of the image with no side
// metadata.
//
// # Bitmap Encoding
//
// Every frame consumes two bits:
//
//	00  free
//	01  allocated (continuation of a sequence)
//	11  head of sequence (first frame of an allocation)
//
// The head marking is what lets Release work from a bare frame number:
// the pool frees the head, then walks forward over continuation frames
// until it meets the next head, a free frame, or the end of the pool.
//
// # Metadata Placement
//
// A pool's bitmap lives either inside the pool itself or in frames
// borrowed from another pool:
//
//	// Bitmap occupies the pool's own first frames, pre-allocated as a
//	// head-of-sequence run.
//	kernel, err := frame.NewSelfHosted(img, reg, "kernel", 512, 512)
//
//	// Bitmap placed in frames the kernel pool handed out.
//	meta, err := kernel.Allocate(frame.MetadataFrames(7168))
//	process, err := frame.New(img, reg, "process", 1024, 7168, meta)
//
// # Allocation
//
// Allocate is first-fit: the scan walks the bitmap from the pool base
// and takes the first run of free frames long enough for the request.
// Frame numbers returned are absolute image frame numbers.
//
//	head, err := process.Allocate(3)
//	...
//	err = process.Release(head)
//
// # Registry
//
// A Registry tracks every constructed pool, newest first, and routes a
// release to whichever pool contains the frame:
//
//	reg := frame.NewRegistry()
//	...
//	err := reg.Release(fno) // finds the owning pool, then Release
//
// # Thread Safety
//
// Pool and Registry instances are not thread-safe. Callers must
// synchronize access externally.
//
// # Related Packages
//
//   - github.com/joshuapare/memkit/mem: the image frames live in
//   - github.com/joshuapare/memkit/mem/paging: consumes pools for page
//     directories, tables, and demand-faulted data frames
//   - github.com/joshuapare/memkit/mem/verify: structural bitmap checks
package frame
