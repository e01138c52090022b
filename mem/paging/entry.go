package paging

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/layout"
)

// Entry is one 32-bit directory or table entry: a frame number in the
// upper 20 bits, flags in the lower 12.
type Entry uint32

// Placeholder is the entry written for absent slots: writable but not
// present, so a translation attempt faults instead of dereferencing
// garbage.
const Placeholder = Entry(layout.EntryWritable)

// MakeEntry builds an entry pointing at frame fno with the given flag bits.
func MakeEntry(fno uint32, flags uint32) Entry {
	return Entry(fno<<layout.PageShift | flags)
}

// Present reports whether the entry is backed by a frame.
func (e Entry) Present() bool { return uint32(e)&layout.EntryPresent != 0 }

// Writable reports whether the mapped page accepts writes.
func (e Entry) Writable() bool { return uint32(e)&layout.EntryWritable != 0 }

// User reports whether the mapped page is reachable from user level.
func (e Entry) User() bool { return uint32(e)&layout.EntryUser != 0 }

// Frame returns the frame number the entry points at.
func (e Entry) Frame() uint32 { return uint32(e) >> layout.PageShift }

// Address returns the frame's byte address (frame number << 12).
func (e Entry) Address() uint32 { return uint32(e) & layout.EntryAddrMask }

// Flags returns the raw flag bits.
func (e Entry) Flags() uint32 { return uint32(e) & layout.EntryFlagsMask }

func (e Entry) String() string {
	if !e.Present() {
		return fmt.Sprintf("absent(0x%03X)", e.Flags())
	}
	flags := []byte{'p', '-', '-'}
	if e.Writable() {
		flags[1] = 'w'
	}
	if e.User() {
		flags[2] = 'u'
	}
	return fmt.Sprintf("frame %d [%s]", e.Frame(), flags)
}

// FaultCode carries the condition bits reported with a faulting address.
type FaultCode uint32

const (
	// FaultProtection marks a fault on a present page.
	FaultProtection = FaultCode(layout.FaultPresent)

	// FaultWrite marks the faulting access as a write.
	FaultWrite = FaultCode(layout.FaultWrite)

	// FaultUser marks the faulting access as user-level.
	FaultUser = FaultCode(layout.FaultUser)
)

// Protection reports whether the fault hit a present page.
func (c FaultCode) Protection() bool { return uint32(c)&layout.FaultPresent != 0 }

// Write reports whether the faulting access was a write.
func (c FaultCode) Write() bool { return uint32(c)&layout.FaultWrite != 0 }

// User reports whether the fault came from user level.
func (c FaultCode) User() bool { return uint32(c)&layout.FaultUser != 0 }

func (c FaultCode) String() string {
	kind := "absent"
	if c.Protection() {
		kind = "protection"
	}
	access := "read"
	if c.Write() {
		access = "write"
	}
	level := "supervisor"
	if c.User() {
		level = "user"
	}
	return kind + " " + access + " " + level
}
