//go:build !linux && !darwin

package mem

import (
	"fmt"
	"io"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
)

// Open loads the image into memory on non-unix platforms. Mutations stay
// in the buffer; a dirty flush or Close writes them back through the file.
func Open(path string) (*Image, error) {
	return openBuffered(path, false)
}

// OpenReadOnly loads the image into memory for inspection.
func OpenReadOnly(path string) (*Image, error) {
	return openBuffered(path, true)
}

func openBuffered(path string, readonly bool) (*Image, error) {
	mode := os.O_RDWR
	if readonly {
		mode = os.O_RDONLY
	}

	f, err := os.OpenFile(path, mode, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		f.Close()
		return nil, fmt.Errorf("empty image file: %s", path)
	}

	buf := make([]byte, sz)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, err
	}

	hdr, err := ParseHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := hdr.Validate(sz); err != nil {
		f.Close()
		return nil, err
	}

	frames := hdr.FrameCount()

	// Drop any trailing slack beyond the last frame the header names.
	if logicalEnd := layout.ImageSize(frames); !readonly && sz > logicalEnd {
		if err := f.Truncate(logicalEnd); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate trailing slack: %w", err)
		}
		buf = buf[:logicalEnd:logicalEnd]
		sz = logicalEnd
	}

	return &Image{
		f:        f,
		data:     buf,
		size:     sz,
		frames:   frames,
		readonly: readonly,
		hdr:      hdr,
	}, nil
}

func (img *Image) Close() error {
	var err error
	if img.f != nil {
		// The buffer is the only copy of any unflushed mutations, so
		// write it back before closing.
		if !img.readonly && img.data != nil {
			if _, werr := img.f.WriteAt(img.data, 0); werr != nil {
				err = werr
			} else if serr := img.f.Sync(); serr != nil {
				err = serr
			}
		}
		if cerr := img.f.Close(); err == nil {
			err = cerr
		}
		img.f = nil
	}
	img.data = nil
	img.hdr = nil
	return err
}

// Grow appends n zero frames to the image buffer and extends the backing
// file. The header frame count and checksum are rewritten.
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

	// Grow the byte slice (zeros are automatically added)
	newData := make([]byte, newSize)
	copy(newData, img.data)

	// Extend the file to match
	if err := img.f.Truncate(newSize); err != nil {
		return fmt.Errorf("mem: failed to extend file: %w", err)
	}

	img.data = newData
	img.size = newSize
	return img.finishGrow(newFrames)
}
