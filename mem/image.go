package mem

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
)

// Tracker receives frame numbers as they are modified. mem/dirty
// implements it; a nil tracker turns the hook into a no-op.
type Tracker interface {
	MarkFrame(fno uint32)
}

// Image is the opened memory image, backed by mmap (unix/darwin) or a
// byte slice (others). All frame content and all management metadata
// live in data; Image itself holds only the view.
type Image struct {
	f        *os.File
	data     []byte
	size     int64
	frames   uint32
	readonly bool
	mapped   bool
	hdr      *Header
	tracker  Tracker
}

// Bytes returns the raw image bytes, header included.
func (img *Image) Bytes() []byte { return img.data }

// Size returns the image size in bytes.
func (img *Image) Size() int64 { return img.size }

// Frames returns the number of frames in the image.
func (img *Image) Frames() uint32 { return img.frames }

// ReadOnly reports whether the image rejects modification.
func (img *Image) ReadOnly() bool { return img.readonly }

// Header returns the parsed PMIG header view.
func (img *Image) Header() *Header { return img.hdr }

// Path returns the backing file path, or "" for anonymous images.
func (img *Image) Path() string {
	if img == nil || img.f == nil {
		return ""
	}
	return img.f.Name()
}

// FD returns the backing file descriptor, or -1 for anonymous images.
func (img *Image) FD() int {
	if img == nil || img.f == nil {
		return -1
	}
	return int(img.f.Fd())
}

// File returns the backing file, or nil for anonymous images.
func (img *Image) File() *os.File {
	if img == nil {
		return nil
	}
	return img.f
}

// Mapped reports whether the image bytes are a memory mapping of the
// backing file. When false, mutations live only in the buffer until
// written back.
func (img *Image) Mapped() bool { return img.mapped }

// SetTracker installs a modified-frame tracker. Passing nil detaches
// the current one.
func (img *Image) SetTracker(t Tracker) { img.tracker = t }

// MarkFrame records fno as modified with the installed tracker, if any.
func (img *Image) MarkFrame(fno uint32) {
	if img.tracker != nil {
		img.tracker.MarkFrame(fno)
	}
}

// Frame returns the PageSize bytes of frame fno as a view into the
// image. Writes through the view must be followed by MarkFrame.
func (img *Image) Frame(fno uint32) ([]byte, error) {
	if fno >= img.frames {
		return nil, fmt.Errorf("mem: frame %d beyond image (%d frames)", fno, img.frames)
	}
	off := layout.HeaderSize + int64(fno)*layout.PageSize
	return img.data[off : off+layout.PageSize : off+layout.PageSize], nil
}

// FrameRange returns the contiguous bytes of frames [base, base+n) as a
// single view. Pool bitmaps and other multi-frame structures use it to
// avoid a per-frame slice dance.
func (img *Image) FrameRange(base, n uint32) ([]byte, error) {
	if err := img.CheckRange(base, n); err != nil {
		return nil, err
	}
	off := layout.HeaderSize + int64(base)*layout.PageSize
	end := off + int64(n)*layout.PageSize
	return img.data[off:end:end], nil
}

// CheckRange verifies that frames [base, base+n) all lie inside the image.
func (img *Image) CheckRange(base, n uint32) error {
	if n == 0 {
		return nil
	}
	end := uint64(base) + uint64(n)
	if end > uint64(img.frames) {
		return fmt.Errorf("mem: frames [%d,%d) beyond image (%d frames)", base, end, img.frames)
	}
	return nil
}

// Word reads the little-endian uint32 at byte offset off of frame fno.
// Directory and table entries are read through this.
func (img *Image) Word(fno uint32, off uint32) (uint32, error) {
	b, err := img.Frame(fno)
	if err != nil {
		return 0, err
	}
	if off > layout.PageSize-layout.EntrySize {
		return 0, fmt.Errorf("mem: word offset 0x%X outside frame", off)
	}
	return layout.ReadU32(b, int(off)), nil
}

// SetWord writes the little-endian uint32 at byte offset off of frame
// fno and marks the frame modified.
func (img *Image) SetWord(fno uint32, off uint32, v uint32) error {
	if img.readonly {
		return ErrReadOnly
	}
	b, err := img.Frame(fno)
	if err != nil {
		return err
	}
	if off > layout.PageSize-layout.EntrySize {
		return fmt.Errorf("mem: word offset 0x%X outside frame", off)
	}
	layout.PutU32(b, int(off), v)
	img.MarkFrame(fno)
	return nil
}

// ZeroFrame clears every byte of frame fno and marks it modified.
func (img *Image) ZeroFrame(fno uint32) error {
	if img.readonly {
		return ErrReadOnly
	}
	b, err := img.Frame(fno)
	if err != nil {
		return err
	}
	clear(b)
	img.MarkFrame(fno)
	return nil
}
