package paging

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
)

// AddressSpace is one page directory frame plus the claimants
// registered against it. All spaces share the kernel prefix of the
// system that built them.
type AddressSpace struct {
	sys       *System
	dir       uint32
	claimants []Claimant
	destroyed bool
}

// System returns the owning system.
func (as *AddressSpace) System() *System { return as.sys }

// Directory returns the absolute frame number of the page directory.
func (as *AddressSpace) Directory() uint32 { return as.dir }

// IsKernel reports whether this is the kernel space.
func (as *AddressSpace) IsKernel() bool { return as == as.sys.kernel }

// Destroyed reports whether Destroy already ran.
func (as *AddressSpace) Destroyed() bool { return as.destroyed }

// Load makes the space the one the system translates through. Loading
// also models the translation-cache flush a directory switch implies.
func (as *AddressSpace) Load() error {
	if as.destroyed {
		return ErrDestroyed
	}
	as.sys.active = as
	as.sys.stats.Loads++
	if debugPaging || logPaging {
		fmt.Fprintf(os.Stderr, "[paging] loaded directory frame %d\n", as.dir)
	}
	return nil
}

// Register adds a claimant. On the kernel space it lands in the
// system-wide list consulted for every space; elsewhere it is private
// to this space. Newest registrations are consulted first. Returns the
// claimant's registration id.
func (as *AddressSpace) Register(c Claimant) (int, error) {
	if as.destroyed {
		return 0, ErrDestroyed
	}
	id := as.sys.nextID
	as.sys.nextID++
	if as.IsKernel() {
		as.sys.global = append([]Claimant{c}, as.sys.global...)
	} else {
		as.claimants = append([]Claimant{c}, as.claimants...)
	}
	return id, nil
}

// Claimants returns the claimant list consulted for this space alone:
// the system-wide list for the kernel space, the private list otherwise.
func (as *AddressSpace) Claimants() []Claimant {
	src := as.claimants
	if as.IsKernel() {
		src = as.sys.global
	}
	out := make([]Claimant, len(src))
	copy(out, src)
	return out
}

// Translate resolves addr through this space's directory, present
// entries only. The result is a physical byte address: frame number
// shifted up, intra-page offset preserved.
func (as *AddressSpace) Translate(addr uint32) (uint32, error) {
	if as.destroyed {
		return 0, ErrDestroyed
	}

	de, err := as.sys.entry(as.dir, addr>>layout.TableShift)
	if err != nil {
		return 0, err
	}
	if !de.Present() {
		return 0, fmt.Errorf("%w: 0x%08X (no table)", ErrNotMapped, addr)
	}

	te, err := as.sys.entry(de.Frame(), (addr>>layout.PageShift)&layout.TableIndexMask)
	if err != nil {
		return 0, err
	}
	if !te.Present() {
		return 0, fmt.Errorf("%w: 0x%08X (no page)", ErrNotMapped, addr)
	}

	return te.Address() | (addr & layout.PageMask), nil
}

// FreePage unmaps the page containing addr and releases its frame to
// the owning pool. Absent mappings are a no-op. Freeing under the
// loaded space drops the translation cache, like the hardware reload it
// models.
func (as *AddressSpace) FreePage(addr uint32) error {
	if as.destroyed {
		return ErrDestroyed
	}

	slot := addr >> layout.TableShift
	idx := (addr >> layout.PageShift) & layout.TableIndexMask

	de, err := as.sys.entry(as.dir, slot)
	if err != nil {
		return err
	}
	if !de.Present() {
		return nil
	}
	te, err := as.sys.entry(de.Frame(), idx)
	if err != nil {
		return err
	}
	if !te.Present() {
		return nil
	}

	if err := as.sys.reg.Release(te.Frame()); err != nil {
		return fmt.Errorf("paging: release frame %d for 0x%08X: %w", te.Frame(), addr, err)
	}
	if err := as.sys.setEntry(de.Frame(), idx, Placeholder); err != nil {
		return err
	}
	as.sys.stats.FreedPages++

	if as.sys.active == as {
		as.sys.stats.Flushes++
	}
	if debugPaging || logPaging {
		fmt.Fprintf(os.Stderr, "[paging] freed page at 0x%08X (frame %d)\n", addr, te.Frame())
	}
	return nil
}

// Destroy releases everything the space privately owns: every present
// leaf frame in the user half, the table frames holding them, and the
// directory itself. The shared kernel prefix is left alone. Destroying
// the loaded space loads the kernel space first, so the system never
// translates through a dead directory.
func (as *AddressSpace) Destroy() error {
	if as.destroyed {
		return ErrDestroyed
	}
	if as.IsKernel() {
		return ErrKernelSpace
	}

	if as.sys.active == as {
		if err := as.sys.kernel.Load(); err != nil {
			return err
		}
	}

	for slot := as.sys.kernelSlots; slot < layout.EntriesPerTable; slot++ {
		de, err := as.sys.entry(as.dir, slot)
		if err != nil {
			return err
		}
		if !de.Present() {
			continue
		}
		tf := de.Frame()
		for idx := uint32(0); idx < layout.EntriesPerTable; idx++ {
			te, err := as.sys.entry(tf, idx)
			if err != nil {
				return err
			}
			if !te.Present() {
				continue
			}
			if err := as.sys.reg.Release(te.Frame()); err != nil {
				return fmt.Errorf("paging: release leaf frame %d: %w", te.Frame(), err)
			}
			as.sys.stats.FreedPages++
		}
		if err := as.sys.reg.Release(tf); err != nil {
			return fmt.Errorf("paging: release table frame %d: %w", tf, err)
		}
		if err := as.sys.setEntry(as.dir, slot, Placeholder); err != nil {
			return err
		}
	}

	// Clear the self-reference, then let go of the directory.
	if err := as.sys.setEntry(as.dir, as.sys.recursiveSlot, Placeholder); err != nil {
		return err
	}
	if err := as.sys.reg.Release(as.dir); err != nil {
		return fmt.Errorf("paging: release directory frame %d: %w", as.dir, err)
	}

	as.destroyed = true
	if debugPaging || logPaging {
		fmt.Fprintf(os.Stderr, "[paging] destroyed space with directory frame %d\n", as.dir)
	}
	return nil
}

// WalkPages calls fn for every present leaf mapping of the space, in
// ascending address order, skipping the recursive window. Returning an
// error from fn stops the walk.
func (as *AddressSpace) WalkPages(fn func(vaddr, fno uint32) error) error {
	if as.destroyed {
		return ErrDestroyed
	}

	for slot := uint32(0); slot < layout.EntriesPerTable; slot++ {
		if slot == as.sys.recursiveSlot {
			continue
		}
		de, err := as.sys.entry(as.dir, slot)
		if err != nil {
			return err
		}
		if !de.Present() {
			continue
		}
		for idx := uint32(0); idx < layout.EntriesPerTable; idx++ {
			te, err := as.sys.entry(de.Frame(), idx)
			if err != nil {
				return err
			}
			if !te.Present() {
				continue
			}
			vaddr := slot<<layout.TableShift | idx<<layout.PageShift
			if err := fn(vaddr, te.Frame()); err != nil {
				return err
			}
		}
	}
	return nil
}
