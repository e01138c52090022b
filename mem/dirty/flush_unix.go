//go:build linux

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges flushes individual dirty ranges to disk.
//
// On Linux and other Unix systems, msync() can handle sub-slices
// correctly as long as they start on a page boundary — and every range
// coalesce produces is frame-aligned.
func (t *Tracker) flushRanges(ctx context.Context, data []byte) error {
	coalesced := t.coalesce()

	for _, r := range coalesced {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Bounds check
		start := int(r.Off)
		end := int(r.Off + r.Len)
		if end > len(data) {
			continue
		}

		if err := unix.Msync(data[start:end], unix.MS_SYNC); err != nil {
			return err
		}
	}

	return nil
}

// flushHeader flushes the header page to disk.
func (t *Tracker) flushHeader(header []byte) error {
	return unix.Msync(header, unix.MS_SYNC)
}

// syncFile performs a file descriptor sync.
//
// On Linux/FreeBSD, fdatasync() provides sufficient guarantees. The
// fullfsync parameter is ignored.
func (t *Tracker) syncFile(_ bool) error {
	return unix.Fdatasync(t.img.FD())
}
