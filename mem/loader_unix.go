//go:build linux || darwin

package mem

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/joshuapare/memkit/internal/layout"
)

// Open mmaps the image RW so we can mutate frames in place.
func Open(path string) (*Image, error) {
	return openMapped(path, false)
}

// OpenReadOnly mmaps the image for inspection. Every mutating method
// returns ErrReadOnly.
func OpenReadOnly(path string) (*Image, error) {
	return openMapped(path, true)
}

func openMapped(path string, readonly bool) (*Image, error) {
	mode := os.O_RDWR
	prot := syscall.PROT_READ | syscall.PROT_WRITE
	if readonly {
		mode = os.O_RDONLY
		prot = syscall.PROT_READ
	}

	f, err := os.OpenFile(path, mode, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("empty image file: %s", path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(sz), prot, syscall.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		_ = syscall.Munmap(data)
		_ = f.Close()
		return nil, err
	}
	if validateErr := hdr.Validate(sz); validateErr != nil {
		_ = syscall.Munmap(data)
		_ = f.Close()
		return nil, validateErr
	}

	img := &Image{
		f:        f,
		data:     data,
		size:     sz,
		frames:   hdr.FrameCount(),
		readonly: readonly,
		mapped:   true,
		hdr:      hdr,
	}

	// Drop any trailing slack beyond the last frame the header names.
	// This must happen BEFORE any code stores references into the data.
	logicalEnd := layout.ImageSize(img.frames)
	if !readonly && sz > logicalEnd {
		if truncateErr := img.truncate(logicalEnd); truncateErr != nil {
			_ = img.Close()
			return nil, fmt.Errorf("truncate trailing slack: %w", truncateErr)
		}
	}

	return img, nil
}

func (img *Image) Close() error {
	var err error
	if img.f != nil && img.data != nil {
		_ = syscall.Munmap(img.data)
	}
	img.data = nil
	if img.f != nil {
		err = img.f.Close()
		img.f = nil
	}
	img.hdr = nil
	return err
}

// Grow appends n zero frames to the image and remaps the memory
// mapping. The header frame count and checksum are rewritten.
func (img *Image) Grow(n uint32) error {
	if img == nil || img.data == nil {
		return ErrClosed
	}
	if img.readonly {
		return ErrReadOnly
	}
	if n == 0 {
		return nil
	}
	if img.f == nil {
		return img.growAnonymous(n)
	}

	newFrames := img.frames + n
	newSize := layout.ImageSize(newFrames)

	// Unmap the current mapping
	if err := syscall.Munmap(img.data); err != nil {
		return fmt.Errorf("mem: failed to unmap before grow: %w", err)
	}
	img.data = nil

	// Truncate file to new size (extends with zeros)
	if err := img.f.Truncate(newSize); err != nil {
		// Try to remap old size to recover
		data, _ := syscall.Mmap(
			int(img.f.Fd()),
			0,
			int(img.size),
			syscall.PROT_READ|syscall.PROT_WRITE,
			syscall.MAP_SHARED,
		)
		img.data = data
		return fmt.Errorf("mem: failed to truncate file: %w", err)
	}

	// Remap the entire file at the new size
	data, err := syscall.Mmap(
		int(img.f.Fd()),
		0,
		int(newSize),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED,
	)
	if err != nil {
		oldData, _ := syscall.Mmap(
			int(img.f.Fd()),
			0,
			int(img.size),
			syscall.PROT_READ|syscall.PROT_WRITE,
			syscall.MAP_SHARED,
		)
		img.data = oldData
		return fmt.Errorf("mem: failed to remap after grow: %w", err)
	}

	img.data = data
	img.size = newSize
	return img.finishGrow(newFrames)
}

// truncate shrinks the image file and remaps the memory mapping.
// Used at open time to drop slack past the last frame.
func (img *Image) truncate(newSize int64) error {
	if img == nil || img.f == nil {
		return errors.New("mem: cannot truncate nil or closed image")
	}
	if newSize < layout.HeaderSize {
		return fmt.Errorf("mem: truncate size %d too small (minimum %d)", newSize, layout.HeaderSize)
	}
	if newSize > img.size {
		return fmt.Errorf("mem: truncate cannot grow (current: %d, requested: %d)", img.size, newSize)
	}
	if newSize == img.size {
		return nil // No-op
	}

	if img.data != nil {
		if err := syscall.Munmap(img.data); err != nil {
			return fmt.Errorf("mem: failed to unmap before truncate: %w", err)
		}
		img.data = nil
	}

	if err := img.f.Truncate(newSize); err != nil {
		data, _ := syscall.Mmap(
			int(img.f.Fd()),
			0,
			int(img.size),
			syscall.PROT_READ|syscall.PROT_WRITE,
			syscall.MAP_SHARED,
		)
		img.data = data
		return fmt.Errorf("mem: failed to truncate file: %w", err)
	}

	data, err := syscall.Mmap(
		int(img.f.Fd()),
		0,
		int(newSize),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED,
	)
	if err != nil {
		return fmt.Errorf("mem: failed to remap after truncate: %w", err)
	}

	img.data = data
	img.size = newSize

	// Re-parse the header since img.data changed. The old view wraps a
	// slice into the unmapped region.
	hdr, err := ParseHeader(img.data)
	if err != nil {
		return fmt.Errorf("mem: failed to re-parse header after truncate: %w", err)
	}
	img.hdr = hdr
	return nil
}
