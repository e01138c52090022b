package paging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/frame"
)

// testRig wires the usual machine: a self-hosted kernel pool at the top
// half of the low memory, a process pool above it with borrowed bitmap
// frames, and a system with a 16MB kernel prefix.
type testRig struct {
	img     *mem.Image
	reg     *frame.Registry
	kernel  *frame.Pool
	process *frame.Pool
	sys     *System
}

const (
	testKernelSpan = 4 * layout.TableSpan // 16MB: slots 0..3, recursive at 3
	testUserBase   = testKernelSpan
)

func newTestRig(t testing.TB) *testRig {
	t.Helper()

	img, err := mem.NewAnonymous(2048)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	reg := frame.NewRegistry()
	kernel, err := frame.NewSelfHosted(img, reg, "kernel", 512, 512)
	require.NoError(t, err)
	meta, err := kernel.Allocate(frame.MetadataFrames(1024))
	require.NoError(t, err)
	process, err := frame.New(img, reg, "process", 1024, 1024, meta)
	require.NoError(t, err)

	sys, err := NewSystem(img, Config{
		Directories: kernel,
		Pages:       process,
		Registry:    reg,
		KernelSpan:  testKernelSpan,
		SharedSpan:  layout.TableSpan,
	})
	require.NoError(t, err)

	return &testRig{img: img, reg: reg, kernel: kernel, process: process, sys: sys}
}

// userClaimant claims a fixed span and backs it with a pool.
type userClaimant struct {
	base, size uint32
	pool       *frame.Pool
}

func (c *userClaimant) Claims(addr uint32) bool { return addr >= c.base && addr-c.base < c.size }
func (c *userClaimant) Backing() *frame.Pool    { return c.pool }

func TestNewSystemValidation(t *testing.T) {
	rig := newTestRig(t)

	_, err := NewSystem(nil, Config{Directories: rig.kernel, Pages: rig.process, Registry: rig.reg})
	require.ErrorIs(t, err, ErrBadConfig)

	_, err = NewSystem(rig.img, Config{Pages: rig.process, Registry: rig.reg})
	require.ErrorIs(t, err, ErrBadConfig)

	_, err = NewSystem(rig.img, Config{Directories: rig.kernel, Pages: rig.process})
	require.ErrorIs(t, err, ErrBadConfig)

	cfg := Config{Directories: rig.kernel, Pages: rig.process, Registry: rig.reg}

	bad := cfg
	bad.KernelSpan = layout.TableSpan + layout.PageSize
	_, err = NewSystem(rig.img, bad)
	require.ErrorIs(t, err, ErrBadConfig)

	bad = cfg
	bad.SharedSpan = 100
	_, err = NewSystem(rig.img, bad)
	require.ErrorIs(t, err, ErrBadConfig)

	// A one-slot kernel prefix is all recursive window; the identity
	// mapping has nowhere to go.
	bad = cfg
	bad.KernelSpan = layout.TableSpan
	bad.SharedSpan = layout.TableSpan
	_, err = NewSystem(rig.img, bad)
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestKernelSpaceLayout(t *testing.T) {
	rig := newTestRig(t)
	dirsFree := rig.kernel.FreeFrames()
	pagesFree := rig.process.FreeFrames()

	ks, err := rig.sys.NewAddressSpace()
	require.NoError(t, err)
	require.True(t, ks.IsKernel())
	require.Same(t, ks, rig.sys.Kernel())

	// One directory frame, three kernel tables (slot 3 is recursive).
	require.Equal(t, dirsFree-1, rig.kernel.FreeFrames())
	require.Equal(t, pagesFree-3, rig.process.FreeFrames())

	dir := ks.Directory()

	// Kernel slots carry present tables.
	for slot := uint32(0); slot < 3; slot++ {
		de, err := rig.sys.entry(dir, slot)
		require.NoError(t, err)
		require.True(t, de.Present(), "slot %d", slot)
	}

	// The last kernel slot maps the directory onto itself.
	re, err := rig.sys.entry(dir, 3)
	require.NoError(t, err)
	require.True(t, re.Present())
	require.Equal(t, dir, re.Frame())

	// User slots hold the absent placeholder.
	ue, err := rig.sys.entry(dir, 4)
	require.NoError(t, err)
	require.Equal(t, Placeholder, ue)

	// The shared span is identity-mapped: page 5 -> frame 5.
	de, err := rig.sys.entry(dir, 0)
	require.NoError(t, err)
	te, err := rig.sys.entry(de.Frame(), 5)
	require.NoError(t, err)
	require.True(t, te.Present())
	require.Equal(t, uint32(5), te.Frame())

	// Just past the shared span the kernel tables hold placeholders.
	de, err = rig.sys.entry(dir, 1)
	require.NoError(t, err)
	te, err = rig.sys.entry(de.Frame(), 0)
	require.NoError(t, err)
	require.Equal(t, Placeholder, te)
}

func TestDerivedSpaceSharesKernelPrefix(t *testing.T) {
	rig := newTestRig(t)

	ks, err := rig.sys.NewAddressSpace()
	require.NoError(t, err)
	us, err := rig.sys.NewAddressSpace()
	require.NoError(t, err)
	require.False(t, us.IsKernel())
	require.NotEqual(t, ks.Directory(), us.Directory())

	// Kernel slots are copied verbatim, so the table frames are shared.
	for slot := uint32(0); slot < 3; slot++ {
		ke, err := rig.sys.entry(ks.Directory(), slot)
		require.NoError(t, err)
		ue, err := rig.sys.entry(us.Directory(), slot)
		require.NoError(t, err)
		require.Equal(t, ke, ue, "slot %d", slot)
	}

	// Each space recurses onto its own directory.
	re, err := rig.sys.entry(us.Directory(), 3)
	require.NoError(t, err)
	require.Equal(t, us.Directory(), re.Frame())

	require.Equal(t, uint64(2), rig.sys.Stats().Spaces)
}

func TestLoadAndEnable(t *testing.T) {
	rig := newTestRig(t)

	require.ErrorIs(t, rig.sys.Enable(), ErrNoActive)

	ks, err := rig.sys.NewAddressSpace()
	require.NoError(t, err)

	// Before enable the system is in physical mode: addresses translate
	// to themselves and system reads hit raw frames.
	phys, err := rig.sys.Translate(0x1234)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1234), phys)

	require.NoError(t, ks.Load())
	require.Same(t, ks, rig.sys.Current())
	require.NoError(t, rig.sys.Enable())
	require.True(t, rig.sys.Enabled())

	// Now translation is real: an unmapped user address refuses.
	_, err = rig.sys.Translate(testUserBase)
	require.ErrorIs(t, err, ErrNotMapped)

	// The identity-mapped span still resolves to itself.
	phys, err = rig.sys.Translate(0x5432)
	require.NoError(t, err)
	require.Equal(t, uint32(0x5432), phys)
}

func TestPhysicalAccessBeforeEnable(t *testing.T) {
	rig := newTestRig(t)

	msg := []byte("written before translation")
	n, err := rig.sys.WriteAt(msg, 16*layout.PageSize+64)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	fb, err := rig.img.Frame(16)
	require.NoError(t, err)
	require.Equal(t, msg, fb[64:64+len(msg)])

	got := make([]byte, len(msg))
	_, err = rig.sys.ReadAt(got, 16*layout.PageSize+64)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}
