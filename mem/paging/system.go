package paging

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/frame"
)

// Debug flag - set to true to enable verbose logging (compile-time toggle).
const debugPaging = false

// Runtime debug flag for fault logging - controlled by MEMKIT_LOG_PAGING env var.
var logPaging = os.Getenv("MEMKIT_LOG_PAGING") != ""

const (
	// DefaultKernelSpan is the kernel prefix used when the config leaves
	// KernelSpan zero: the low gigabyte.
	DefaultKernelSpan = 1 << 30

	// DefaultSharedSpan is the identity-mapped span used when the config
	// leaves SharedSpan zero: the low 4MB, one table's worth.
	DefaultSharedSpan = layout.TableSpan
)

// Claimant decides whether a faulting address belongs to it. Region
// pools implement this; anything else that hands out virtual addresses
// can too.
type Claimant interface {
	// Claims reports whether addr was handed out by this claimant.
	Claims(addr uint32) bool

	// Backing returns the frame pool that supplies data frames for the
	// claimant's addresses. A nil pool means the system default.
	Backing() *frame.Pool
}

// Config carries the pools and spans a System is built from.
type Config struct {
	// Directories supplies page directory frames.
	Directories *frame.Pool

	// Pages supplies page table frames and default data frames.
	Pages *frame.Pool

	// Registry routes frame releases when pages are freed or spaces
	// destroyed.
	Registry *frame.Registry

	// KernelSpan is the size in bytes of the kernel prefix shared by all
	// address spaces. Zero means DefaultKernelSpan. Must be a multiple
	// of the 4MB table span.
	KernelSpan uint32

	// SharedSpan is the size in bytes of the identity-mapped region at
	// the bottom of the kernel prefix. Zero means DefaultSharedSpan.
	// Must be page-aligned and leave the recursive slot untouched.
	SharedSpan uint32
}

// Stats carries translation machinery counters.
type Stats struct {
	Spaces           uint64 // address spaces constructed
	Loads            uint64 // address space loads
	Faults           uint64 // faults handled, successful or not
	TableFaults      uint64 // faults that installed a table frame
	PageFaults       uint64 // faults that installed a data frame
	ProtectionFaults uint64 // faults rejected as protection violations
	UnclaimedFaults  uint64 // faults rejected as unclaimed
	Flushes          uint64 // translation caches dropped (loads after free)
	FreedPages       uint64 // leaf pages released via FreePage or Destroy
}

// System owns translation for one image: the pools that back it, the
// kernel space every other space borrows its prefix from, and the
// currently loaded space.
type System struct {
	img  *mem.Image
	dirs *frame.Pool
	pags *frame.Pool
	reg  *frame.Registry

	kernelSpan uint32
	sharedSpan uint32

	kernelSlots   uint32 // directory slots in the kernel prefix
	recursiveSlot uint32 // last kernel slot, mapping the directory onto itself

	kernel  *AddressSpace
	active  *AddressSpace
	enabled bool

	global []Claimant // claimants registered against the kernel space

	nextID int
	stats  Stats
}

// NewSystem validates cfg and builds an empty system. The kernel space
// does not exist until the first NewAddressSpace call.
func NewSystem(img *mem.Image, cfg Config) (*System, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrBadConfig)
	}
	if cfg.Directories == nil || cfg.Pages == nil {
		return nil, fmt.Errorf("%w: directory and page pools are required", ErrBadConfig)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: frame registry is required", ErrBadConfig)
	}

	kernelSpan := cfg.KernelSpan
	if kernelSpan == 0 {
		kernelSpan = DefaultKernelSpan
	}
	sharedSpan := cfg.SharedSpan
	if sharedSpan == 0 {
		sharedSpan = DefaultSharedSpan
	}

	if kernelSpan%layout.TableSpan != 0 {
		return nil, fmt.Errorf("%w: kernel span 0x%X not a multiple of the table span", ErrBadConfig, kernelSpan)
	}
	slots := kernelSpan >> layout.TableShift
	if slots >= layout.EntriesPerTable {
		return nil, fmt.Errorf("%w: kernel span 0x%X leaves no user slots", ErrBadConfig, kernelSpan)
	}
	if sharedSpan%layout.PageSize != 0 {
		return nil, fmt.Errorf("%w: shared span 0x%X not page-aligned", ErrBadConfig, sharedSpan)
	}
	// The recursive slot must stay clear of the identity mapping.
	if sharedSpan > (slots-1)<<layout.TableShift {
		return nil, fmt.Errorf("%w: shared span 0x%X reaches the recursive slot", ErrBadConfig, sharedSpan)
	}

	return &System{
		img:           img,
		dirs:          cfg.Directories,
		pags:          cfg.Pages,
		reg:           cfg.Registry,
		kernelSpan:    kernelSpan,
		sharedSpan:    sharedSpan,
		kernelSlots:   slots,
		recursiveSlot: slots - 1,
	}, nil
}

// Kernel returns the kernel space, or nil before the first NewAddressSpace.
func (s *System) Kernel() *AddressSpace { return s.kernel }

// Current returns the loaded space, or nil before the first Load.
func (s *System) Current() *AddressSpace { return s.active }

// Enabled reports whether translation has been switched on.
func (s *System) Enabled() bool { return s.enabled }

// KernelSpan returns the size in bytes of the kernel prefix.
func (s *System) KernelSpan() uint32 { return s.kernelSpan }

// SharedSpan returns the size in bytes of the identity-mapped region.
func (s *System) SharedSpan() uint32 { return s.sharedSpan }

// RecursiveBase returns the virtual address the recursive window starts at.
func (s *System) RecursiveBase() uint32 { return s.recursiveSlot << layout.TableShift }

// Stats returns a copy of the system counters.
func (s *System) Stats() Stats { return s.stats }

// Enable switches translation on. A space must be loaded first; from
// here on, system-level reads and writes go through the loaded space.
func (s *System) Enable() error {
	if s.active == nil {
		return ErrNoActive
	}
	s.enabled = true
	if debugPaging || logPaging {
		fmt.Fprintf(os.Stderr, "[paging] enabled with directory frame %d\n", s.active.dir)
	}
	return nil
}

// NewAddressSpace constructs an address space. The first call builds
// the kernel space: pre-built tables across the kernel prefix, the
// shared span identity-mapped, the recursive slot pointing at the
// directory itself. Every later call derives a space that shares the
// kernel tables and owns its user half.
func (s *System) NewAddressSpace() (*AddressSpace, error) {
	if s.kernel == nil {
		as, err := s.buildKernelSpace()
		if err != nil {
			return nil, err
		}
		s.kernel = as
		s.stats.Spaces++
		return as, nil
	}

	as, err := s.deriveSpace()
	if err != nil {
		return nil, err
	}
	s.stats.Spaces++
	return as, nil
}

// HandleFault resolves a fault at addr against the loaded space. Tools
// driving the machinery directly use this; ReadAt and WriteAt raise it
// on their own.
func (s *System) HandleFault(addr uint32, code FaultCode) error {
	if s.active == nil {
		return ErrNoActive
	}
	return s.handleFault(s.active, addr, code)
}

// Translate resolves addr through the loaded space. Before Enable the
// address space is physical, so addresses translate to themselves.
func (s *System) Translate(addr uint32) (uint32, error) {
	if !s.enabled {
		return addr, nil
	}
	return s.active.Translate(addr)
}

// ---- construction ----

func (s *System) buildKernelSpace() (*AddressSpace, error) {
	dir, err := s.dirs.Allocate(1)
	if err != nil {
		return nil, fmt.Errorf("paging: directory frame: %w", err)
	}

	for slot := uint32(0); slot < layout.EntriesPerTable; slot++ {
		switch {
		case slot == s.recursiveSlot:
			if err := s.setEntry(dir, slot, MakeEntry(dir, layout.EntryPresent|layout.EntryWritable)); err != nil {
				return nil, err
			}
		case slot < s.kernelSlots:
			tf, allocErr := s.pags.Allocate(1)
			if allocErr != nil {
				return nil, fmt.Errorf("paging: kernel table for slot %d: %w", slot, allocErr)
			}
			if err := s.fillPlaceholders(tf); err != nil {
				return nil, err
			}
			if err := s.setEntry(dir, slot, MakeEntry(tf, layout.EntryPresent|layout.EntryWritable)); err != nil {
				return nil, err
			}
		default:
			if err := s.setEntry(dir, slot, Placeholder); err != nil {
				return nil, err
			}
		}
	}

	// Identity-map the shared span so the frames everyone relies on are
	// reachable at their own addresses.
	for page := uint32(0); page < s.sharedSpan>>layout.PageShift; page++ {
		slot := page >> (layout.TableShift - layout.PageShift)
		idx := page & layout.TableIndexMask
		de, err := s.entry(dir, slot)
		if err != nil {
			return nil, err
		}
		if err := s.setEntry(de.Frame(), idx, MakeEntry(page, layout.EntryPresent|layout.EntryWritable)); err != nil {
			return nil, err
		}
	}

	if debugPaging || logPaging {
		fmt.Fprintf(os.Stderr, "[paging] kernel space built: directory frame %d, %d kernel slots\n",
			dir, s.kernelSlots)
	}
	return &AddressSpace{sys: s, dir: dir}, nil
}

func (s *System) deriveSpace() (*AddressSpace, error) {
	dir, err := s.dirs.Allocate(1)
	if err != nil {
		return nil, fmt.Errorf("paging: directory frame: %w", err)
	}

	kdir := s.kernel.dir
	for slot := uint32(0); slot < layout.EntriesPerTable; slot++ {
		switch {
		case slot == s.recursiveSlot:
			if err := s.setEntry(dir, slot, MakeEntry(dir, layout.EntryPresent|layout.EntryWritable)); err != nil {
				return nil, err
			}
		case slot < s.kernelSlots:
			e, readErr := s.entry(kdir, slot)
			if readErr != nil {
				return nil, readErr
			}
			if err := s.setEntry(dir, slot, e); err != nil {
				return nil, err
			}
		default:
			if err := s.setEntry(dir, slot, Placeholder); err != nil {
				return nil, err
			}
		}
	}

	if debugPaging || logPaging {
		fmt.Fprintf(os.Stderr, "[paging] derived space: directory frame %d\n", dir)
	}
	return &AddressSpace{sys: s, dir: dir}, nil
}

// ---- fault handling ----

func (s *System) handleFault(as *AddressSpace, addr uint32, code FaultCode) error {
	s.stats.Faults++

	if code.Protection() {
		s.stats.ProtectionFaults++
		return fmt.Errorf("%w: %s at 0x%08X", ErrProtection, code, addr)
	}

	cl, ok := s.claimantFor(as, addr)
	if !ok {
		s.stats.UnclaimedFaults++
		return fmt.Errorf("%w: 0x%08X", ErrNotClaimed, addr)
	}

	slot := addr >> layout.TableShift
	idx := (addr >> layout.PageShift) & layout.TableIndexMask

	de, err := s.entry(as.dir, slot)
	if err != nil {
		return err
	}
	if !de.Present() {
		tf, allocErr := s.pags.Allocate(1)
		if allocErr != nil {
			return fmt.Errorf("paging: table frame for 0x%08X: %w", addr, allocErr)
		}
		if err := s.fillPlaceholders(tf); err != nil {
			return err
		}
		de = MakeEntry(tf, layout.EntryPresent|layout.EntryWritable)
		if err := s.setEntry(as.dir, slot, de); err != nil {
			return err
		}
		s.stats.TableFaults++
		if debugPaging || logPaging {
			fmt.Fprintf(os.Stderr, "[paging] table fault at 0x%08X: slot %d -> frame %d\n", addr, slot, tf)
		}
	}

	te, err := s.entry(de.Frame(), idx)
	if err != nil {
		return err
	}
	if !te.Present() {
		pool := s.pags
		if bp := cl.Backing(); bp != nil {
			pool = bp
		}
		df, allocErr := pool.Allocate(1)
		if allocErr != nil {
			return fmt.Errorf("paging: data frame for 0x%08X: %w", addr, allocErr)
		}
		te = MakeEntry(df, layout.EntryPresent|layout.EntryWritable)
		if err := s.setEntry(de.Frame(), idx, te); err != nil {
			return err
		}
		s.stats.PageFaults++
		if debugPaging || logPaging {
			fmt.Fprintf(os.Stderr, "[paging] page fault at 0x%08X: frame %d from pool %q\n",
				addr, df, pool.Name())
		}
	}

	return nil
}

func (s *System) claimantFor(as *AddressSpace, addr uint32) (Claimant, bool) {
	for _, c := range s.global {
		if c.Claims(addr) {
			return c, true
		}
	}
	for _, c := range as.claimants {
		if c.Claims(addr) {
			return c, true
		}
	}
	return nil, false
}

// ---- entry access ----

func (s *System) entry(tf, idx uint32) (Entry, error) {
	v, err := s.img.Word(tf, idx*layout.EntrySize)
	if err != nil {
		return 0, err
	}
	return Entry(v), nil
}

func (s *System) setEntry(tf, idx uint32, e Entry) error {
	return s.img.SetWord(tf, idx*layout.EntrySize, uint32(e))
}

// fillPlaceholders writes the absent marker into every entry of a fresh
// table frame.
func (s *System) fillPlaceholders(tf uint32) error {
	b, err := s.img.Frame(tf)
	if err != nil {
		return err
	}
	for i := 0; i < layout.PageSize; i += layout.EntrySize {
		layout.PutU32(b, i, uint32(Placeholder))
	}
	s.img.MarkFrame(tf)
	return nil
}
