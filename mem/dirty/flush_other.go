//go:build !linux && !darwin

package dirty

import (
	"context"
	"fmt"
)

// flushRanges writes dirty ranges back through the file.
//
// On platforms without a shared mapping the image lives in a plain
// buffer, so flushing means writing the touched ranges back at their
// offsets.
func (t *Tracker) flushRanges(ctx context.Context, data []byte) error {
	f := t.img.File()
	if f == nil {
		return nil
	}

	coalesced := t.coalesce()

	for _, r := range coalesced {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := r.Off
		end := r.Off + r.Len
		if end > int64(len(data)) {
			continue
		}

		if _, err := f.WriteAt(data[start:end], start); err != nil {
			return fmt.Errorf("dirty: write-back at 0x%X: %w", start, err)
		}
	}

	return nil
}

// flushHeader writes the header page back through the file.
func (t *Tracker) flushHeader(header []byte) error {
	f := t.img.File()
	if f == nil {
		return nil
	}
	if _, err := f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("dirty: header write-back: %w", err)
	}
	return nil
}

// syncFile performs a file sync. The fullfsync parameter has no
// portable equivalent here and is ignored.
func (t *Tracker) syncFile(_ bool) error {
	f := t.img.File()
	if f == nil {
		return nil
	}
	return f.Sync()
}
