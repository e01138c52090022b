package verify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/frame"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/joshuapare/memkit/mem/region"
)

const windowBase = uint32(32 << 20)

type testRig struct {
	img     *mem.Image
	reg     *frame.Registry
	kernel  *frame.Pool
	process *frame.Pool
	vm      *frame.Pool
	sys     *paging.System
	space   *paging.AddressSpace
}

// newTestRig assembles a live machine: image, three pools, an enabled
// kernel space.
func newTestRig(t *testing.T) *testRig {
	t.Helper()

	img, err := mem.NewAnonymous(4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	reg := frame.NewRegistry()
	kernel, err := frame.NewSelfHosted(img, reg, "kernel", 512, 512)
	require.NoError(t, err)
	pmeta, err := kernel.Allocate(frame.MetadataFrames(1024))
	require.NoError(t, err)
	process, err := frame.New(img, reg, "process", 1024, 1024, pmeta)
	require.NoError(t, err)
	vmeta, err := kernel.Allocate(frame.MetadataFrames(2048))
	require.NoError(t, err)
	vm, err := frame.New(img, reg, "vm", 2048, 2048, vmeta)
	require.NoError(t, err)

	sys, err := paging.NewSystem(img, paging.Config{
		Directories: kernel,
		Pages:       process,
		Registry:    reg,
		KernelSpan:  4 * layout.TableSpan,
		SharedSpan:  layout.TableSpan,
	})
	require.NoError(t, err)

	space, err := sys.NewAddressSpace()
	require.NoError(t, err)
	require.NoError(t, space.Load())
	require.NoError(t, sys.Enable())

	return &testRig{img: img, reg: reg, kernel: kernel, process: process, vm: vm, sys: sys, space: space}
}

// TestImage_Valid tests validation of a healthy header.
func TestImage_Valid(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, Image(rig.img.Bytes()))
}

// TestImage_InvalidSignature tests detection of a foreign file.
func TestImage_InvalidSignature(t *testing.T) {
	rig := newTestRig(t)
	data := append([]byte(nil), rig.img.Bytes()...)
	copy(data[layout.ImgSignatureOffset:], "XXXX")

	err := Image(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid signature")
}

// TestImage_StaleChecksum tests detection of an unrefreshed header edit.
func TestImage_StaleChecksum(t *testing.T) {
	rig := newTestRig(t)
	data := append([]byte(nil), rig.img.Bytes()...)
	layout.PutU32(data, layout.ImgFrameCountOffset, 9999)

	err := Image(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
}

// TestImage_SizeMismatch tests detection of trailing garbage.
func TestImage_SizeMismatch(t *testing.T) {
	rig := newTestRig(t)
	data := append([]byte(nil), rig.img.Bytes()...)
	data = append(data, make([]byte, 64)...)

	err := Image(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "file size mismatch")
}

// TestClean tests the dirty-flag check in both directions.
func TestClean(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, Clean(rig.img.Bytes()))

	rig.img.Header().SetDirty(true)
	err := Clean(rig.img.Bytes())
	require.Error(t, err)
	require.Contains(t, err.Error(), "dirty flag set")

	rig.img.Header().SetDirty(false)
	require.NoError(t, Clean(rig.img.Bytes()))
}

// TestBitmap_Valid tests a pool in active use.
func TestBitmap_Valid(t *testing.T) {
	rig := newTestRig(t)

	base, err := rig.process.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, Bitmap(rig.process))
	require.NoError(t, rig.process.Release(base))
	require.NoError(t, Bitmaps(rig.reg))
}

// TestBitmap_CountMismatch corrupts the bitmap behind the pool's back.
func TestBitmap_CountMismatch(t *testing.T) {
	rig := newTestRig(t)

	for n := 0; n < 4; n++ {
		_, err := rig.process.Allocate(1)
		require.NoError(t, err)
	}

	// Clear the first bitmap byte directly: four frames flip to free
	// without the accounting noticing.
	bm, err := rig.img.Frame(rig.process.MetadataBase())
	require.NoError(t, err)
	bm[0] = 0

	err = Bitmap(rig.process)
	require.Error(t, err)
	require.Contains(t, err.Error(), "counted")
}

// TestBitmap_OrphanContinuation writes a continuation state with no
// head before it.
func TestBitmap_OrphanContinuation(t *testing.T) {
	rig := newTestRig(t)

	// Frame base+1 becomes a continuation while base+0 stays free.
	bm, err := rig.img.Frame(rig.process.MetadataBase())
	require.NoError(t, err)
	bm[0] = 0x04

	err = Bitmap(rig.process)
	require.Error(t, err)
	require.Contains(t, err.Error(), "continuation frame without head")
}

// TestOwnership_Valid walks kernel and derived spaces of a machine
// with live mappings.
func TestOwnership_Valid(t *testing.T) {
	rig := newTestRig(t)

	w, err := region.New(rig.space, windowBase, 8*layout.PageSize, rig.vm)
	require.NoError(t, err)
	addr, err := w.Allocate(2 * layout.PageSize)
	require.NoError(t, err)
	require.NoError(t, rig.space.SetU32(addr, 1))

	require.NoError(t, Ownership(rig.space, rig.reg))

	derived, err := rig.sys.NewAddressSpace()
	require.NoError(t, err)
	require.NoError(t, Ownership(derived, rig.reg))
}

// TestOwnership_FreedFrame releases a mapped frame directly in its
// pool, leaving the mapping dangling.
func TestOwnership_FreedFrame(t *testing.T) {
	rig := newTestRig(t)

	w, err := region.New(rig.space, windowBase, 8*layout.PageSize, rig.vm)
	require.NoError(t, err)
	addr, err := w.Allocate(layout.PageSize)
	require.NoError(t, err)
	require.NoError(t, rig.space.SetU32(addr, 1))

	fno, err := rig.space.Translate(addr)
	require.NoError(t, err)
	require.NoError(t, rig.reg.Release(fno>>layout.PageShift))

	err = Ownership(rig.space, rig.reg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "is free in pool")
}

// TestOwnership_BrokenIdentity rewrites an identity PTE through the
// recursive window.
func TestOwnership_BrokenIdentity(t *testing.T) {
	rig := newTestRig(t)

	entryAddr := rig.sys.EntryAddress(5 * layout.PageSize)
	bad := paging.MakeEntry(7, layout.EntryPresent|layout.EntryWritable)
	require.NoError(t, rig.space.SetU32(entryAddr, uint32(bad)))

	err := Ownership(rig.space, rig.reg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "identity mapping broken")
}

// TestPartition_Valid tests tiling through an allocate/release cycle.
func TestPartition_Valid(t *testing.T) {
	rig := newTestRig(t)

	w, err := region.New(rig.space, windowBase, 8*layout.PageSize, rig.vm)
	require.NoError(t, err)
	require.NoError(t, Partition(w))

	a, err := w.Allocate(2 * layout.PageSize)
	require.NoError(t, err)
	b, err := w.Allocate(layout.PageSize)
	require.NoError(t, err)
	require.NoError(t, Partition(w))

	require.NoError(t, w.Release(a))
	require.NoError(t, Partition(w))
	require.NoError(t, w.Release(b))
	require.NoError(t, Partition(w))
}

// TestPartition_CorruptSelfEntry clobbers the metadata descriptor.
func TestPartition_CorruptSelfEntry(t *testing.T) {
	rig := newTestRig(t)

	w, err := region.New(rig.space, windowBase, 8*layout.PageSize, rig.vm)
	require.NoError(t, err)

	// Allocated-array slot 0 holds the self-entry's address word.
	require.NoError(t, rig.space.SetU32(windowBase, windowBase+layout.PageSize))

	err = Partition(w)
	require.Error(t, err)
	require.Contains(t, err.Error(), "metadata self-entry")
}

// TestPartition_TornTiling grows a free descriptor past the window.
func TestPartition_TornTiling(t *testing.T) {
	rig := newTestRig(t)

	w, err := region.New(rig.space, windowBase, 8*layout.PageSize, rig.vm)
	require.NoError(t, err)

	// Free-array slot 0 holds the tail descriptor; bump its size word.
	sizeWord := windowBase + layout.PageSize + 4
	v, err := rig.space.U32(sizeWord)
	require.NoError(t, err)
	require.NoError(t, rig.space.SetU32(sizeWord, v+layout.PageSize))

	err = Partition(w)
	require.Error(t, err)
	require.Contains(t, err.Error(), "window not covered")
}

// TestAllInvariants runs the full audit on a healthy, busy machine.
func TestAllInvariants(t *testing.T) {
	rig := newTestRig(t)

	w, err := region.New(rig.space, windowBase, 16*layout.PageSize, rig.vm)
	require.NoError(t, err)
	a, err := w.Allocate(3 * layout.PageSize)
	require.NoError(t, err)
	require.NoError(t, rig.space.SetU32(a, 42))
	_, err = w.Allocate(layout.PageSize)
	require.NoError(t, err)
	require.NoError(t, w.Release(a))

	derived, err := rig.sys.NewAddressSpace()
	require.NoError(t, err)

	err = AllInvariants(rig.img, rig.reg,
		[]*paging.AddressSpace{rig.space, derived},
		[]*region.Pool{w})
	require.NoError(t, err)
}
