//go:build darwin

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges flushes dirty ranges to disk.
//
// On macOS, msync() requires the address to match the original mmap()
// address. We cannot pass sub-slices because their base pointer differs
// from the mmap address. Solution: flush the entire mapped region. The
// kernel only writes dirty pages anyway.
func (t *Tracker) flushRanges(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return unix.Msync(data, unix.MS_SYNC)
}

// flushHeader flushes the header page to disk.
//
// The header slice starts at the mmap base, so Darwin's address
// restriction is satisfied.
func (t *Tracker) flushHeader(header []byte) error {
	return unix.Msync(header, unix.MS_SYNC)
}

// syncFile performs a file descriptor sync.
//
// If fullfsync is true, use F_FULLFSYNC for maximum durability.
// F_FULLFSYNC ensures data is written to the physical disk, not just
// the drive cache. Otherwise, use regular fsync (macOS has no
// fdatasync).
func (t *Tracker) syncFile(fullfsync bool) error {
	if fullfsync {
		_, err := unix.FcntlInt(uintptr(t.img.FD()), unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(t.img.FD())
}
