package paging

import (
	"errors"
	"fmt"

	"github.com/joshuapare/memkit/internal/layout"
)

// addressSpan is the size of the 32-bit virtual (and physical) space.
const addressSpan = int64(1) << 32

func checkSpan(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > addressSpan {
		return fmt.Errorf("paging: range [%d,%d) outside 32-bit space", off, off+int64(len(p)))
	}
	return nil
}

// translateOrFault resolves addr, demand-mapping it on an absent
// translation the way a trapped access would.
func (as *AddressSpace) translateOrFault(addr uint32, write bool) (uint32, error) {
	phys, err := as.Translate(addr)
	if err == nil {
		return phys, nil
	}
	if !errors.Is(err, ErrNotMapped) {
		return 0, err
	}

	var code FaultCode
	if write {
		code = FaultWrite
	}
	if err := as.sys.handleFault(as, addr, code); err != nil {
		return 0, err
	}
	return as.Translate(addr)
}

// ReadAt reads len(p) bytes of this space's memory starting at virtual
// address off, faulting absent pages in on the way. Implements
// io.ReaderAt over the virtual address space.
func (as *AddressSpace) ReadAt(p []byte, off int64) (int, error) {
	if err := checkSpan(p, off); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		addr := uint32(off) + uint32(n)
		phys, err := as.translateOrFault(addr, false)
		if err != nil {
			return n, err
		}
		fb, err := as.sys.img.Frame(phys >> layout.PageShift)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], fb[phys&layout.PageMask:])
	}
	return n, nil
}

// WriteAt writes len(p) bytes into this space's memory starting at
// virtual address off, faulting absent pages in on the way. Implements
// io.WriterAt over the virtual address space.
func (as *AddressSpace) WriteAt(p []byte, off int64) (int, error) {
	if err := checkSpan(p, off); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		addr := uint32(off) + uint32(n)
		phys, err := as.translateOrFault(addr, true)
		if err != nil {
			return n, err
		}
		fno := phys >> layout.PageShift
		fb, err := as.sys.img.Frame(fno)
		if err != nil {
			return n, err
		}
		n += copy(fb[phys&layout.PageMask:], p[n:])
		as.sys.img.MarkFrame(fno)
	}
	return n, nil
}

// U32 reads the little-endian word at virtual address addr.
func (as *AddressSpace) U32(addr uint32) (uint32, error) {
	if addr&layout.PageMask <= layout.PageSize-layout.EntrySize {
		phys, err := as.translateOrFault(addr, false)
		if err != nil {
			return 0, err
		}
		return as.sys.img.Word(phys>>layout.PageShift, phys&layout.PageMask)
	}

	// Straddles a page boundary: take the slow path.
	var b [layout.EntrySize]byte
	if _, err := as.ReadAt(b[:], int64(addr)); err != nil {
		return 0, err
	}
	return layout.ReadU32(b[:], 0), nil
}

// SetU32 writes the little-endian word at virtual address addr.
func (as *AddressSpace) SetU32(addr uint32, v uint32) error {
	if addr&layout.PageMask <= layout.PageSize-layout.EntrySize {
		phys, err := as.translateOrFault(addr, true)
		if err != nil {
			return err
		}
		return as.sys.img.SetWord(phys>>layout.PageShift, phys&layout.PageMask, v)
	}

	var b [layout.EntrySize]byte
	layout.PutU32(b[:], 0, v)
	_, err := as.WriteAt(b[:], int64(addr))
	return err
}

// EntryAddress returns the virtual address at which the table entry
// mapping addr is visible through the recursive window.
func (s *System) EntryAddress(addr uint32) uint32 {
	return s.RecursiveBase() | (addr>>10)&^uint32(3)
}

// DirectoryEntryAddress returns the virtual address at which the
// directory entry covering addr is visible through the recursive
// window.
func (s *System) DirectoryEntryAddress(addr uint32) uint32 {
	return s.RecursiveBase() | s.recursiveSlot<<layout.PageShift | (addr>>layout.TableShift)<<2
}

// ReadAt reads physical memory before Enable and the loaded space's
// memory after it. Implements io.ReaderAt.
func (s *System) ReadAt(p []byte, off int64) (int, error) {
	if !s.enabled {
		return s.physRead(p, off)
	}
	return s.active.ReadAt(p, off)
}

// WriteAt writes physical memory before Enable and the loaded space's
// memory after it. Implements io.WriterAt.
func (s *System) WriteAt(p []byte, off int64) (int, error) {
	if !s.enabled {
		return s.physWrite(p, off)
	}
	return s.active.WriteAt(p, off)
}

// physRead copies out of the raw frame space: off is a physical byte
// address, frame 0 at zero.
func (s *System) physRead(p []byte, off int64) (int, error) {
	if err := checkSpan(p, off); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		addr := uint32(off) + uint32(n)
		fb, err := s.img.Frame(addr >> layout.PageShift)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], fb[addr&layout.PageMask:])
	}
	return n, nil
}

func (s *System) physWrite(p []byte, off int64) (int, error) {
	if err := checkSpan(p, off); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		addr := uint32(off) + uint32(n)
		fno := addr >> layout.PageShift
		fb, err := s.img.Frame(fno)
		if err != nil {
			return n, err
		}
		n += copy(fb[addr&layout.PageMask:], p[n:])
		s.img.MarkFrame(fno)
	}
	return n, nil
}
