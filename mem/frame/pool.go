package frame

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
)

// Debug flag - set to true to enable verbose logging (compile-time toggle).
const debugFrame = false

// Runtime debug flag for allocation logging - controlled by MEMKIT_LOG_FRAME env var.
var logFrame = os.Getenv("MEMKIT_LOG_FRAME") != ""

// Pool manages a contiguous range of image frames through a two-bit
// state bitmap. The bitmap lives in image frames itself, either inside
// the managed range (self-hosted) or in frames borrowed from another
// pool.
type Pool struct {
	img  *mem.Image
	name string

	base   uint32 // absolute first frame of the managed range
	frames uint32 // frames in the managed range
	free   uint32 // currently free frames

	metaBase   uint32 // absolute first frame of the bitmap
	metaFrames uint32 // frames the bitmap occupies
	selfHosted bool

	bits []byte // bitmap view into the image

	stats PoolStats
}

// PoolStats carries allocator counters for instrumentation.
type PoolStats struct {
	Allocs    uint64 // successful Allocate calls
	Releases  uint64 // successful Release calls
	Reserved  uint64 // frames taken by MarkReserved
	ScanSteps uint64 // bitmap positions visited by first-fit scans
}

// New constructs a pool over frames [base, base+frames) whose bitmap is
// placed in borrowed frames starting at metaBase. The bitmap range must
// lie inside the image and must not overlap the managed range. Every
// frame starts out free.
//
// When reg is non-nil the pool registers itself, so releases routed
// through the registry can find it.
func New(img *mem.Image, reg *Registry, name string, base, frames, metaBase uint32) (*Pool, error) {
	p, err := newPool(img, name, base, frames, metaBase, false)
	if err != nil {
		return nil, err
	}
	p.reset()
	if reg != nil {
		reg.Add(p)
	}
	return p, nil
}

// NewSelfHosted constructs a pool whose bitmap occupies the pool's own
// first frames. Those frames are pre-allocated as a head-of-sequence
// run, so they are accounted like any other allocation and can be found
// by State and the verifier.
func NewSelfHosted(img *mem.Image, reg *Registry, name string, base, frames uint32) (*Pool, error) {
	p, err := newPool(img, name, base, frames, base, true)
	if err != nil {
		return nil, err
	}
	p.reset()

	// Claim the bitmap frames inside the pool itself.
	p.setState(0, Head)
	for i := uint32(1); i < p.metaFrames; i++ {
		p.setState(i, Allocated)
	}
	p.free -= p.metaFrames

	if reg != nil {
		reg.Add(p)
	}
	return p, nil
}

// Attach reconstructs a pool over an existing bitmap without resetting
// it, recovering the free count by scanning. This is how tools reopen a
// persisted image: the bitmap bytes are already authoritative.
func Attach(img *mem.Image, reg *Registry, name string, base, frames, metaBase uint32) (*Pool, error) {
	selfHosted := metaBase >= base && metaBase < base+frames
	p, err := newPool(img, name, base, frames, metaBase, selfHosted)
	if err != nil {
		return nil, err
	}

	p.free = 0
	for i := uint32(0); i < p.frames; i++ {
		if p.state(i) == Free {
			p.free++
		}
	}

	if reg != nil {
		reg.Add(p)
	}
	return p, nil
}

func newPool(img *mem.Image, name string, base, frames, metaBase uint32, selfHosted bool) (*Pool, error) {
	if frames == 0 {
		return nil, fmt.Errorf("%w: pool %q has zero frames", ErrBadGeometry, name)
	}
	if err := img.CheckRange(base, frames); err != nil {
		return nil, fmt.Errorf("pool %q: %w", name, err)
	}

	meta := MetadataFrames(frames)
	if err := img.CheckRange(metaBase, meta); err != nil {
		return nil, fmt.Errorf("pool %q bitmap: %w", name, err)
	}
	if selfHosted {
		if meta >= frames {
			return nil, fmt.Errorf("%w: pool %q too small to host its own bitmap (%d frames, %d metadata)",
				ErrBadGeometry, name, frames, meta)
		}
	} else if metaBase < base+frames && base < metaBase+meta {
		return nil, fmt.Errorf("%w: pool %q bitmap [%d,%d) overlaps managed range [%d,%d)",
			ErrBadGeometry, name, metaBase, metaBase+meta, base, base+frames)
	}

	bits, err := img.FrameRange(metaBase, meta)
	if err != nil {
		return nil, fmt.Errorf("pool %q bitmap: %w", name, err)
	}

	return &Pool{
		img:        img,
		name:       name,
		base:       base,
		frames:     frames,
		free:       frames,
		metaBase:   metaBase,
		metaFrames: meta,
		selfHosted: selfHosted,
		bits:       bits,
	}, nil
}

// reset wipes the bitmap to all-free.
func (p *Pool) reset() {
	used := (p.frames + layout.StatesPerByte - 1) / layout.StatesPerByte
	clear(p.bits[:used])
	p.free = p.frames
	p.markMetaRange(0, used)
}

// Name returns the pool's diagnostic name.
func (p *Pool) Name() string { return p.name }

// Base returns the absolute frame number of the first managed frame.
func (p *Pool) Base() uint32 { return p.base }

// Frames returns the number of frames the pool manages.
func (p *Pool) Frames() uint32 { return p.frames }

// FreeFrames returns the number of currently free frames.
func (p *Pool) FreeFrames() uint32 { return p.free }

// MetadataBase returns the absolute frame number of the bitmap's first frame.
func (p *Pool) MetadataBase() uint32 { return p.metaBase }

// MetadataSpan returns the number of frames the bitmap occupies.
func (p *Pool) MetadataSpan() uint32 { return p.metaFrames }

// SelfHosted reports whether the bitmap lives inside the managed range.
func (p *Pool) SelfHosted() bool { return p.selfHosted }

// Stats returns a copy of the pool's counters.
func (p *Pool) Stats() PoolStats { return p.stats }

// Contains reports whether absolute frame fno lies in the managed range.
func (p *Pool) Contains(fno uint32) bool {
	return fno >= p.base && fno-p.base < p.frames
}

// State returns the bitmap state of absolute frame fno.
func (p *Pool) State(fno uint32) (State, error) {
	if !p.Contains(fno) {
		return Free, fmt.Errorf("%w: frame %d not in pool %q [%d,%d)",
			ErrOutOfRange, fno, p.name, p.base, p.base+p.frames)
	}
	return p.state(fno - p.base), nil
}

// Allocate finds the first run of n contiguous free frames, marks it
// head-of-sequence, and returns the absolute frame number of its head.
func (p *Pool) Allocate(n uint32) (uint32, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: pool %q", ErrBadRequest, p.name)
	}
	if n > p.free {
		return 0, fmt.Errorf("%w: pool %q needs %d, has %d", ErrExhausted, p.name, n, p.free)
	}

	// First fit: walk the bitmap, resetting the run on every used frame.
	var start, run uint32
	for i := uint32(0); i < p.frames; i++ {
		p.stats.ScanSteps++
		if p.state(i) != Free {
			run = 0
			continue
		}
		if run == 0 {
			start = i
		}
		run++
		if run < n {
			continue
		}

		p.setState(start, Head)
		for j := start + 1; j <= i; j++ {
			p.setState(j, Allocated)
		}
		p.free -= n
		p.stats.Allocs++

		head := p.base + start
		if debugFrame || logFrame {
			fmt.Fprintf(os.Stderr, "[frame] %s: alloc %d frames at %d (free %d)\n", p.name, n, head, p.free)
		}
		return head, nil
	}

	return 0, fmt.Errorf("%w: pool %q wanted %d of %d free", ErrNoRun, p.name, n, p.free)
}

// MarkReserved unconditionally marks frames [base, base+n) as an
// allocated sequence without searching. It exists for ranges the pool
// must never hand out, such as device holes. The range is named by
// absolute frame numbers and must lie inside the pool.
//
// Frames already allocated stay allocated; only previously-free frames
// come off the free count.
func (p *Pool) MarkReserved(base, n uint32) error {
	if n == 0 {
		return fmt.Errorf("%w: pool %q", ErrBadRequest, p.name)
	}
	if !p.Contains(base) || n > p.frames-(base-p.base) {
		return fmt.Errorf("%w: reserve [%d,%d) not in pool %q [%d,%d)",
			ErrOutOfRange, base, base+n, p.name, p.base, p.base+p.frames)
	}

	rel := base - p.base
	var taken uint32
	for i := rel; i < rel+n; i++ {
		if p.state(i) == Free {
			taken++
		}
		if i == rel {
			p.setState(i, Head)
		} else {
			p.setState(i, Allocated)
		}
	}
	p.free -= taken
	p.stats.Reserved += uint64(n)

	if debugFrame || logFrame {
		fmt.Fprintf(os.Stderr, "[frame] %s: reserved [%d,%d) (free %d)\n", p.name, base, base+n, p.free)
	}
	return nil
}

// Release frees the sequence whose head is absolute frame head: the
// head itself, then every continuation frame after it up to the next
// head, free frame, or the end of the pool.
func (p *Pool) Release(head uint32) error {
	if !p.Contains(head) {
		return fmt.Errorf("%w: frame %d not in pool %q [%d,%d)",
			ErrOutOfRange, head, p.name, p.base, p.base+p.frames)
	}

	rel := head - p.base
	if p.state(rel) != Head {
		return fmt.Errorf("%w: frame %d in pool %q is %s", ErrNotHead, head, p.name, p.state(rel))
	}

	p.setState(rel, Free)
	freed := uint32(1)
	for i := rel + 1; i < p.frames && p.state(i) == Allocated; i++ {
		p.setState(i, Free)
		freed++
	}
	p.free += freed
	p.stats.Releases++

	if debugFrame || logFrame {
		fmt.Fprintf(os.Stderr, "[frame] %s: released %d frames at %d (free %d)\n", p.name, freed, head, p.free)
	}
	return nil
}

// ---- bitmap internals ----

func (p *Pool) state(i uint32) State {
	shift := (i % layout.StatesPerByte) * layout.StateBits
	return State(p.bits[i/layout.StatesPerByte]>>shift) & layout.StateMask
}

func (p *Pool) setState(i uint32, s State) {
	idx := i / layout.StatesPerByte
	shift := (i % layout.StatesPerByte) * layout.StateBits
	p.bits[idx] = p.bits[idx]&^(layout.StateMask<<shift) | byte(s)<<shift
	p.img.MarkFrame(p.metaBase + idx/layout.PageSize)
}

// markMetaRange marks the bitmap frames backing bytes [0, n) modified.
func (p *Pool) markMetaRange(from, n uint32) {
	first := from / layout.PageSize
	last := (from + n + layout.PageSize - 1) / layout.PageSize
	for f := first; f < last; f++ {
		p.img.MarkFrame(p.metaBase + f)
	}
}
