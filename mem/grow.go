package mem

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/layout"
)

// finishGrow re-parses the header after the data view moved and records
// the new frame count in it.
func (img *Image) finishGrow(newFrames uint32) error {
	hdr, err := ParseHeader(img.data)
	if err != nil {
		return fmt.Errorf("mem: failed to re-parse header after grow: %w", err)
	}
	img.hdr = hdr
	img.frames = newFrames
	layout.PutU32(img.data, layout.ImgFrameCountOffset, newFrames)
	img.hdr.UpdateChecksum()
	return nil
}

// growAnonymous extends a file-less image in place.
func (img *Image) growAnonymous(n uint32) error {
	newFrames := img.frames + n
	newSize := layout.ImageSize(newFrames)

	newData := make([]byte, newSize)
	copy(newData, img.data)
	img.data = newData
	img.size = newSize
	return img.finishGrow(newFrames)
}
