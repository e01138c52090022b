package mem

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
)

// Create writes a fresh zero-filled image of frames frames at path and
// opens it read-write. The file must not already exist.
func Create(path string, frames uint32) (*Image, error) {
	if frames == 0 {
		return nil, fmt.Errorf("%w: zero frames", layout.ErrGeometry)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	hdr := make([]byte, layout.HeaderSize)
	if err := WriteHeader(hdr, frames); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if _, err := f.WriteAt(hdr, 0); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("mem: write header: %w", err)
	}
	// Extend to full size; the frame area reads back as zeros.
	if err := f.Truncate(layout.ImageSize(frames)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("mem: extend image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	return Open(path)
}

// NewAnonymous builds an image of frames frames entirely in memory.
// It never touches disk; Close releases the buffer.
func NewAnonymous(frames uint32) (*Image, error) {
	if frames == 0 {
		return nil, fmt.Errorf("%w: zero frames", layout.ErrGeometry)
	}

	sz := layout.ImageSize(frames)
	data := make([]byte, sz)
	if err := WriteHeader(data, frames); err != nil {
		return nil, err
	}
	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	return &Image{
		data:   data,
		size:   sz,
		frames: frames,
		hdr:    hdr,
	}, nil
}
