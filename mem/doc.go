// Package mem provides low-level access to PMIG paged memory images.
//
// # Overview
//
// This package implements zero-copy access to paged memory image files
// (PMIG format). An image models a span of physical memory as an array
// of 4KiB frames behind a 4KiB header. Everything that manages the
// memory — frame-state bitmaps, page directories, page tables, region
// descriptor arrays — lives inside the frames themselves, so an image
// file is a complete, self-describing snapshot of a machine's memory.
//
// # Key Types
//
//   - Image: an opened memory image, backed by mmap (unix/darwin) or a
//     byte slice (others)
//   - Header: the 4KiB PMIG header containing image geometry
//
// The managing layers live in subpackages:
//
//   - mem/frame: contiguous frame allocation over bitmap metadata
//   - mem/paging: two-level address translation and demand paging
//   - mem/region: byte-granular allocation inside virtual windows
//   - mem/dirty: modified-frame tracking and durable flushing
//   - mem/verify: structural validation of bitmaps and mappings
//
// # File Structure
//
// A memory image file consists of:
//
//	[PMIG Header - 4KB] [Frame 0] [Frame 1] ... [Frame N-1]
//
// Frame f begins at byte HeaderSize + f*PageSize. Frame numbers are
// absolute: every pool, table, and descriptor in the image names frames
// by their position in this array.
//
// # Opening an Image
//
//	img, err := mem.Open("/path/to/machine.pmem")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer img.Close()
//
// Open maps the file read-write and mutates it in place. Use
// OpenReadOnly for inspection tools and NewAnonymous for images that
// never touch disk.
package mem
