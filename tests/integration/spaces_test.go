package integration

import (
	"errors"
	"testing"

	"github.com/joshuapare/memkit/internal/testutil"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/joshuapare/memkit/mem/region"
)

// TestPrivateWindowAcrossSpaces checks claimant routing end to end: a
// window opened on the kernel space serves faults from every space,
// one opened on a derived space only serves its own.
func TestPrivateWindowAcrossSpaces(t *testing.T) {
	m := testutil.BootMachine(t)

	proc, err := m.System.NewAddressSpace()
	if err != nil {
		t.Fatalf("derive space: %v", err)
	}
	if err := proc.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	// A window private to the derived space, above the shared heap.
	priv, err := region.New(proc, 48<<20, 32<<10, m.Pool("vm"))
	if err != nil {
		t.Fatalf("private window: %v", err)
	}
	addr, err := priv.Allocate(4 << 10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	secret := []byte("per-space bytes")
	if _, err := m.System.WriteAt(secret, int64(addr)); err != nil {
		t.Fatalf("write: %v", err)
	}
	back := make([]byte, len(secret))
	if _, err := m.System.ReadAt(back, int64(addr)); err != nil {
		t.Fatalf("read: %v", err)
	}

	// The kernel-space heap window stays usable from the derived
	// space: its claims are global.
	heapAddr, err := m.Window("heap").Allocate(4 << 10)
	if err != nil {
		t.Fatalf("heap allocate: %v", err)
	}
	if _, err := m.System.WriteAt([]byte("shared claim"), int64(heapAddr)); err != nil {
		t.Fatalf("heap write from derived space: %v", err)
	}

	// Back on the kernel space the private address claims nothing.
	if err := m.Kernel.Load(); err != nil {
		t.Fatalf("reload kernel: %v", err)
	}
	var probe [4]byte
	if _, err := m.System.ReadAt(probe[:], int64(addr)); !errors.Is(err, paging.ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed from kernel space, got %v", err)
	}

	// Destroy gives the private window's frames back: two descriptor
	// pages plus the touched data page.
	before := m.Pool("vm").FreeFrames()
	if err := priv.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if got := m.Pool("vm").FreeFrames(); got != before+3 {
		t.Fatalf("vm free after destroy: got %d, want %d", got, before+3)
	}
}
