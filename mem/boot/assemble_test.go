package boot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/dirty"
	"github.com/joshuapare/memkit/mem/frame"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/joshuapare/memkit/mem/region"
	"github.com/joshuapare/memkit/mem/verify"
)

const pageSize = uint32(layout.PageSize)

func parseSample(t *testing.T) *Layout {
	t.Helper()
	l, err := ParseLayout(strings.NewReader(sampleLayout))
	require.NoError(t, err)
	return l
}

func TestAssemble_FullMachine(t *testing.T) {
	img, err := mem.NewAnonymous(4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	m, err := Assemble(img, parseSample(t))
	require.NoError(t, err)

	kernel := m.Pool("kernel")
	process := m.Pool("process")
	require.NotNil(t, kernel)
	require.NotNil(t, process)

	require.True(t, kernel.SelfHosted())
	require.Equal(t, uint32(512), kernel.Base())
	require.Equal(t, uint32(512), kernel.MetadataBase())
	// The borrower's bitmap is the lender's first allocation, right
	// after the lender's own.
	require.Equal(t, uint32(513), process.MetadataBase())

	// kernel: 512 - own bitmap - process bitmap - page directory.
	require.Equal(t, uint32(509), kernel.FreeFrames())
	// process: 512 - hole(16) - 3 kernel tables - window table - 2
	// window metadata pages.
	require.Equal(t, uint32(490), process.FreeFrames())

	// The hole is pinned before anything else could claim it.
	st, err := process.State(1100)
	require.NoError(t, err)
	require.Equal(t, frame.Head, st)
	st, err = process.State(1108)
	require.NoError(t, err)
	require.Equal(t, frame.Allocated, st)

	require.NotNil(t, m.System)
	require.True(t, m.System.Enabled())
	require.Equal(t, uint32(16<<20), m.System.KernelSpan())
	require.Equal(t, uint32(4<<20), m.System.SharedSpan())
	require.Same(t, m.Kernel, m.System.Current())

	// The window is live: allocate, write through translation, read
	// back.
	heap := m.Window("heap")
	require.NotNil(t, heap)
	addr, err := heap.Allocate(2 * pageSize)
	require.NoError(t, err)
	require.Equal(t, uint32(0x2000000)+2*pageSize, addr)

	payload := []byte("assembled machine")
	_, err = m.System.WriteAt(payload, int64(addr))
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = m.System.ReadAt(got, int64(addr))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.NoError(t, verify.AllInvariants(img, m.Registry,
		[]*paging.AddressSpace{m.Kernel}, []*region.Pool{heap}))
}

func TestAssemble_NoPaging(t *testing.T) {
	img, err := mem.NewAnonymous(64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	l := &Layout{
		Frames: 64,
		Pools:  []PoolSpec{{Name: "main", Base: 0, Frames: 64, Metadata: "self"}},
	}
	m, err := Assemble(img, l)
	require.NoError(t, err)

	require.Nil(t, m.System)
	require.Nil(t, m.Kernel)
	require.Empty(t, m.Windows)

	head, err := m.Pool("main").Allocate(4)
	require.NoError(t, err)
	require.NoError(t, m.Registry.Release(head))
}

func TestAssemble_ImageTooSmall(t *testing.T) {
	img, err := mem.NewAnonymous(64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	_, err = Assemble(img, parseSample(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "image has")
}

func TestAssemble_LenderFull(t *testing.T) {
	img, err := mem.NewAnonymous(64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	// tiny's single frame is consumed by its own bitmap, so it has
	// nothing left to lend.
	l := &Layout{
		Frames: 64,
		Pools: []PoolSpec{
			{Name: "tiny", Base: 0, Frames: 1, Metadata: "self"},
			{Name: "big", Base: 8, Frames: 32, Metadata: "tiny"},
		},
	}
	_, err = Assemble(img, l)
	require.Error(t, err)
	require.Contains(t, err.Error(), `bitmap for pool "big"`)
}

func TestAttachPools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.pmig")
	img, err := mem.Create(path, 4096)
	require.NoError(t, err)
	tr := dirty.NewTracker(img)
	img.SetTracker(tr)

	l := parseSample(t)
	m, err := Assemble(img, l)
	require.NoError(t, err)

	// Leave live state behind: window traffic plus a raw run.
	heap := m.Window("heap")
	addr, err := heap.Allocate(2 * pageSize)
	require.NoError(t, err)
	_, err = m.System.WriteAt([]byte("survives reopen"), int64(addr))
	require.NoError(t, err)
	head, err := m.Pool("process").Allocate(5)
	require.NoError(t, err)

	kernelFree := m.Pool("kernel").FreeFrames()
	processFree := m.Pool("process").FreeFrames()

	require.NoError(t, tr.Commit(context.Background(), dirty.FlushAuto))
	require.NoError(t, img.Close())

	img2, err := mem.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img2.Close() })

	reg, pools, err := AttachPools(img2, l)
	require.NoError(t, err)

	require.Equal(t, uint32(512), pools["kernel"].MetadataBase())
	require.Equal(t, uint32(513), pools["process"].MetadataBase())
	require.Equal(t, kernelFree, pools["kernel"].FreeFrames())
	require.Equal(t, processFree, pools["process"].FreeFrames())

	// The run survived the reopen intact and is releasable.
	st, err := pools["process"].State(head)
	require.NoError(t, err)
	require.Equal(t, frame.Head, st)
	require.NoError(t, reg.Release(head))
	require.Equal(t, processFree+5, pools["process"].FreeFrames())

	// The hole is still pinned.
	st, err = pools["process"].State(1100)
	require.NoError(t, err)
	require.Equal(t, frame.Head, st)
}

func TestAttachPools_BitmapOutsideLender(t *testing.T) {
	img, err := mem.NewAnonymous(64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	l := &Layout{
		Frames: 64,
		Pools: []PoolSpec{
			{Name: "tiny", Base: 0, Frames: 1, Metadata: "self"},
			{Name: "big", Base: 8, Frames: 32, Metadata: "tiny"},
		},
	}
	_, _, err = AttachPools(img, l)
	require.Error(t, err)
	require.Contains(t, err.Error(), "outside lender")
}
