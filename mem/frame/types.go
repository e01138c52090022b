package frame

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/layout"
)

// State is the two-bit bitmap state of a single frame.
type State uint8

const (
	// Free marks a frame available for allocation.
	Free State = 0x0

	// Allocated marks a frame used as the continuation of a sequence.
	Allocated State = layout.StateAllocatedBit

	// Head marks the first frame of an allocated sequence. A head frame
	// carries the allocated bit too.
	Head State = layout.StateHeadBit | layout.StateAllocatedBit
)

// Used reports whether the state is any allocated variant.
func (s State) Used() bool { return s&Allocated != 0 }

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Allocated:
		return "allocated"
	case Head:
		return "head"
	default:
		return fmt.Sprintf("invalid(0x%X)", uint8(s))
	}
}

// MetadataFrames returns the number of whole frames a bitmap describing
// frames frames occupies. Each metadata frame holds the states of
// PageSize*4 frames.
func MetadataFrames(frames uint32) uint32 {
	return layout.MetaFrameCount(frames)
}
