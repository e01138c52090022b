package region

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem/frame"
	"github.com/joshuapare/memkit/mem/paging"
)

// Runtime debug flag for region logging - controlled by MEMKIT_LOG_REGION env var.
var logRegion = os.Getenv("MEMKIT_LOG_REGION") != ""

const (
	// regionSlotSize is the byte size of one on-page descriptor: a u32
	// address and a u32 size.
	regionSlotSize = 8

	// MaxRegions is the descriptor capacity of each array, one page's worth.
	MaxRegions = layout.PageSize / regionSlotSize

	// metaSpan is the window prefix holding the two descriptor arrays.
	metaSpan = 2 * layout.PageSize
)

// Region is one descriptor: a window address and a byte size. A zero
// size marks the slot open.
type Region struct {
	Addr uint32
	Size uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 { return r.Addr + r.Size }

// Pool allocates regions out of a virtual window. The descriptor
// arrays live in the window's first two pages: allocated regions at the
// base, free regions one page up.
type Pool struct {
	space   *paging.AddressSpace
	backing *frame.Pool

	base uint32
	size uint32
	id   int

	destroyed bool
}

// New builds a pool over the window [base, base+size) of space and
// registers it as a claimant before touching any window memory, so the
// metadata writes below can demand-map their own pages. Faults in the
// window draw data frames from backing; a nil backing falls back to the
// system page pool.
func New(space *paging.AddressSpace, base, size uint32, backing *frame.Pool) (*Pool, error) {
	if size <= metaSpan {
		return nil, fmt.Errorf("%w: %d bytes", ErrWindowTooSmall, size)
	}
	if base%layout.PageSize != 0 || size%layout.PageSize != 0 {
		return nil, fmt.Errorf("%w: base 0x%08X size 0x%X", ErrUnaligned, base, size)
	}
	if uint64(base)+uint64(size) > 1<<32 {
		return nil, fmt.Errorf("%w: window [0x%08X, +0x%X) wraps", ErrOutOfWindow, base, size)
	}

	p := &Pool{space: space, backing: backing, base: base, size: size}

	// Register first: zeroing the metadata pages faults against this
	// very pool.
	id, err := space.Register(p)
	if err != nil {
		return nil, err
	}
	p.id = id

	zeros := make([]byte, metaSpan)
	if _, err := space.WriteAt(zeros, int64(base)); err != nil {
		return nil, fmt.Errorf("region: clearing descriptors: %w", err)
	}

	// Seed the books: the metadata pages are the first allocated
	// region, everything after them the first free region.
	if err := p.setRegion(p.allocArray(), 0, Region{Addr: base, Size: metaSpan}); err != nil {
		return nil, err
	}
	if err := p.setRegion(p.freeArray(), 0, Region{Addr: base + metaSpan, Size: size - metaSpan}); err != nil {
		return nil, err
	}

	if logRegion {
		fmt.Fprintf(os.Stderr, "[region] pool %d over [0x%08X, +0x%X)\n", p.id, base, size)
	}
	return p, nil
}

// ID returns the registration id the owning space assigned.
func (p *Pool) ID() int { return p.id }

// Window returns the pool's base address and size.
func (p *Pool) Window() (base, size uint32) { return p.base, p.size }

// Space returns the address space the window lives in.
func (p *Pool) Space() *paging.AddressSpace { return p.space }

// Backing returns the frame pool supplying this window's data frames.
// Part of the paging.Claimant contract.
func (p *Pool) Backing() *frame.Pool { return p.backing }

// Claims reports whether addr is legitimate for this pool: inside the
// metadata pages or inside any allocated region. Part of the
// paging.Claimant contract.
//
// The metadata check must not read the descriptor arrays: it runs
// inside the fault handler while those very pages are being mapped.
func (p *Pool) Claims(addr uint32) bool {
	if p.destroyed {
		return false
	}
	if addr >= p.base && addr-p.base < metaSpan {
		return true
	}

	for i := 0; i < MaxRegions; i++ {
		r, err := p.region(p.allocArray(), i)
		if err != nil {
			return false
		}
		if addr-r.Addr < r.Size {
			return true
		}
	}
	return false
}

// Allocate reserves size bytes, rounded up to whole pages, out of the
// first free region that fits, and returns the region's base address.
// No frames are consumed yet: pages materialize on first touch.
func (p *Pool) Allocate(size uint32) (uint32, error) {
	if p.destroyed {
		return 0, ErrDestroyed
	}
	if size == 0 || size > p.size-metaSpan {
		return 0, fmt.Errorf("%w: %d bytes of %d usable", ErrBadSize, size, p.size-metaSpan)
	}
	adj := layout.PageCount(size) * layout.PageSize

	freeArr := p.freeArray()
	found := -1
	var fr Region
	for i := 0; i < MaxRegions; i++ {
		r, err := p.region(freeArr, i)
		if err != nil {
			return 0, err
		}
		if r.Size >= adj {
			found, fr = i, r
			break
		}
	}
	if found < 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrNoRegion, adj)
	}

	allocArr := p.allocArray()
	for i := 0; i < MaxRegions; i++ {
		r, err := p.region(allocArr, i)
		if err != nil {
			return 0, err
		}
		if r.Size != 0 {
			continue
		}
		if err := p.setRegion(allocArr, i, Region{Addr: fr.Addr, Size: adj}); err != nil {
			return 0, err
		}
		// Shrink the free region in place, sliding its base up.
		if err := p.setRegion(freeArr, found, Region{Addr: fr.Addr + adj, Size: fr.Size - adj}); err != nil {
			return 0, err
		}
		if logRegion {
			fmt.Fprintf(os.Stderr, "[region] pool %d: allocated [0x%08X, +0x%X)\n", p.id, fr.Addr, adj)
		}
		return fr.Addr, nil
	}

	return 0, fmt.Errorf("%w: no open allocated-region slot", ErrRegionsFull)
}

// Release frees the allocated region starting exactly at addr: its
// descriptor moves to the free array as-is (no merging with neighbors)
// and every page it covered goes back to the frame layer.
func (p *Pool) Release(addr uint32) error {
	if p.destroyed {
		return ErrDestroyed
	}
	if addr < p.base || addr-p.base >= p.size {
		return fmt.Errorf("%w: 0x%08X not in [0x%08X, +0x%X)", ErrOutOfWindow, addr, p.base, p.size)
	}

	// Slot 0 is the metadata self-entry; only Destroy may take it back.
	allocArr := p.allocArray()
	found := -1
	var ar Region
	for i := 1; i < MaxRegions; i++ {
		r, err := p.region(allocArr, i)
		if err != nil {
			return err
		}
		if r.Addr == addr && r.Size > 0 {
			found, ar = i, r
			break
		}
	}
	if found < 0 {
		return fmt.Errorf("%w: 0x%08X", ErrNoSuchRegion, addr)
	}

	freeArr := p.freeArray()
	for i := 0; i < MaxRegions; i++ {
		r, err := p.region(freeArr, i)
		if err != nil {
			return err
		}
		if r.Size != 0 {
			continue
		}
		if err := p.setRegion(freeArr, i, Region{Addr: addr, Size: ar.Size}); err != nil {
			return err
		}
		// A zero size marks the allocated slot open for reuse.
		if err := p.setRegionSize(allocArr, found, 0); err != nil {
			return err
		}
		for page := addr; page-addr < ar.Size; page += layout.PageSize {
			if err := p.space.FreePage(page); err != nil {
				return err
			}
		}
		if logRegion {
			fmt.Fprintf(os.Stderr, "[region] pool %d: released [0x%08X, +0x%X)\n", p.id, addr, ar.Size)
		}
		return nil
	}

	return fmt.Errorf("%w: no open free-region slot", ErrRegionsFull)
}

// Regions returns snapshots of the allocated and free descriptor
// arrays, zero-size slots skipped.
func (p *Pool) Regions() (allocated, free []Region, err error) {
	if p.destroyed {
		return nil, nil, ErrDestroyed
	}
	for i := 0; i < MaxRegions; i++ {
		r, err := p.region(p.allocArray(), i)
		if err != nil {
			return nil, nil, err
		}
		if r.Size != 0 {
			allocated = append(allocated, r)
		}
	}
	for i := 0; i < MaxRegions; i++ {
		r, err := p.region(p.freeArray(), i)
		if err != nil {
			return nil, nil, err
		}
		if r.Size != 0 {
			free = append(free, r)
		}
	}
	return allocated, free, nil
}

// Destroy releases every allocated region's pages and finally the
// metadata pages themselves. The pool stops claiming anything, so
// stale window addresses fault as unclaimed afterwards.
func (p *Pool) Destroy() error {
	if p.destroyed {
		return ErrDestroyed
	}

	allocArr := p.allocArray()
	for i := 1; i < MaxRegions; i++ {
		r, err := p.region(allocArr, i)
		if err != nil {
			return err
		}
		if r.Size == 0 {
			continue
		}
		for page := r.Addr; page-r.Addr < r.Size; page += layout.PageSize {
			if err := p.space.FreePage(page); err != nil {
				return err
			}
		}
	}

	// The metadata pages go last: the loop above still read them.
	if err := p.space.FreePage(p.base); err != nil {
		return err
	}
	if err := p.space.FreePage(p.base + layout.PageSize); err != nil {
		return err
	}

	p.destroyed = true
	if logRegion {
		fmt.Fprintf(os.Stderr, "[region] pool %d destroyed\n", p.id)
	}
	return nil
}

// ---- descriptor access ----

func (p *Pool) allocArray() uint32 { return p.base }
func (p *Pool) freeArray() uint32  { return p.base + layout.PageSize }

func (p *Pool) region(arr uint32, i int) (Region, error) {
	slot := arr + uint32(i)*regionSlotSize
	addr, err := p.space.U32(slot)
	if err != nil {
		return Region{}, err
	}
	size, err := p.space.U32(slot + 4)
	if err != nil {
		return Region{}, err
	}
	return Region{Addr: addr, Size: size}, nil
}

func (p *Pool) setRegion(arr uint32, i int, r Region) error {
	slot := arr + uint32(i)*regionSlotSize
	if err := p.space.SetU32(slot, r.Addr); err != nil {
		return err
	}
	return p.space.SetU32(slot+4, r.Size)
}

func (p *Pool) setRegionSize(arr uint32, i int, size uint32) error {
	return p.space.SetU32(arr+uint32(i)*regionSlotSize+4, size)
}
