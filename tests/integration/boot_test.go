package integration

import (
	"bytes"
	"context"
	"testing"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/internal/testutil"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/boot"
	"github.com/joshuapare/memkit/mem/dirty"
	"github.com/joshuapare/memkit/mem/frame"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/joshuapare/memkit/mem/region"
	"github.com/joshuapare/memkit/mem/verify"
)

// TestMachineLifecycle drives the whole stack against one file: boot a
// machine, push traffic through frames, translation, and a window,
// commit, then reopen the image and keep allocating from the attached
// pools.
func TestMachineLifecycle(t *testing.T) {
	l := testutil.StandardLayout()
	img, tracker, path := testutil.CreateImageFile(t, "machine.pmig", l.Frames)
	img.Header().SetDirty(true)

	m, err := boot.Assemble(img, l)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	// Window traffic: two regions, one written, one released again so
	// the free list has structure to recover.
	heap := m.Window("heap")
	a, err := heap.Allocate(8 << 10)
	if err != nil {
		t.Fatalf("allocate a: %v", err)
	}
	b, err := heap.Allocate(12 << 10)
	if err != nil {
		t.Fatalf("allocate b: %v", err)
	}
	payload := []byte("integration payload")
	if _, err := m.System.WriteAt(payload, int64(a)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := heap.Release(b); err != nil {
		t.Fatalf("release b: %v", err)
	}

	// A raw run straight from a pool.
	run, err := m.Pool("process").Allocate(3)
	if err != nil {
		t.Fatalf("allocate run: %v", err)
	}

	if err := verify.AllInvariants(img, m.Registry,
		[]*paging.AddressSpace{m.Kernel}, []*region.Pool{heap}); err != nil {
		t.Fatalf("invariants before commit: %v", err)
	}

	phys, err := m.System.Translate(a)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	kernelFree := m.Pool("kernel").FreeFrames()
	processFree := m.Pool("process").FreeFrames()
	vmFree := m.Pool("vm").FreeFrames()

	if err := tracker.Commit(context.Background(), dirty.FlushAuto); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if img.Header().Dirty() {
		t.Fatal("image still dirty after commit")
	}
	if err := img.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Second life.
	img2, err := mem.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = img2.Close() })

	if err := verify.Clean(img2.Bytes()); err != nil {
		t.Fatalf("reopened image not clean: %v", err)
	}

	reg, pools, err := boot.AttachPools(img2, l)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := verify.Bitmaps(reg); err != nil {
		t.Fatalf("bitmaps after attach: %v", err)
	}
	if got := pools["kernel"].FreeFrames(); got != kernelFree {
		t.Fatalf("kernel free: got %d, want %d", got, kernelFree)
	}
	if got := pools["process"].FreeFrames(); got != processFree {
		t.Fatalf("process free: got %d, want %d", got, processFree)
	}
	if got := pools["vm"].FreeFrames(); got != vmFree {
		t.Fatalf("vm free: got %d, want %d", got, vmFree)
	}

	// The written bytes are still in the frame translation pointed at.
	fr, err := img2.Frame(phys >> layout.PageShift)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	off := phys & layout.PageMask
	if !bytes.Equal(fr[off:off+uint32(len(payload))], payload) {
		t.Fatalf("payload lost across reopen")
	}

	// Allocation state carried over: the old run is intact, new runs
	// land elsewhere, and release still routes by range.
	st, err := pools["process"].State(run)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st != frame.Head {
		t.Fatalf("run head state: got %v", st)
	}
	run2, err := pools["process"].Allocate(5)
	if err != nil {
		t.Fatalf("allocate after attach: %v", err)
	}
	if run2 == run {
		t.Fatalf("fresh run reused a live head (%d)", run)
	}
	if err := reg.Release(run); err != nil {
		t.Fatalf("release after attach: %v", err)
	}
	if got := pools["process"].FreeFrames(); got != processFree-5+3 {
		t.Fatalf("process free after churn: got %d, want %d", got, processFree-5+3)
	}
}
