// Package testutil builds the standard machines the cross-package tests
// boot, so integration tests don't each redeclare the same layout.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/boot"
	"github.com/joshuapare/memkit/mem/dirty"
)

// StandardFrames is the image size the standard layout needs.
const StandardFrames = 4096

// StandardLayout returns the machine description shared by the
// integration tests: a self-hosted kernel pool, process and vm pools
// borrowing their bitmaps from it, a reserved hole, translation, and
// one heap window backed by vm.
//
// Example:
//
//	img := testutil.NewImage(t)
//	m, err := boot.Assemble(img, testutil.StandardLayout())
func StandardLayout() *boot.Layout {
	return &boot.Layout{
		Frames: StandardFrames,
		Pools: []boot.PoolSpec{
			{Name: "kernel", Base: 512, Frames: 512, Metadata: "self"},
			{Name: "process", Base: 1024, Frames: 1024, Metadata: "kernel"},
			{Name: "vm", Base: 2048, Frames: 2048, Metadata: "kernel"},
		},
		Holes: []boot.HoleSpec{
			{Pool: "process", Base: 1500, Frames: 16},
		},
		Paging: &boot.PagingSpec{
			Directories: "kernel",
			Pages:       "process",
			KernelSpan:  16 << 20,
			SharedSpan:  4 << 20,
		},
		Windows: []boot.WindowSpec{
			{Name: "heap", Space: "kernel", Base: 32 << 20, Size: 64 << 10, Backing: "vm"},
		},
	}
}

// NewImage returns an anonymous image sized for the standard layout,
// closed automatically when the test ends.
func NewImage(t *testing.T) *mem.Image {
	t.Helper()
	img, err := mem.NewAnonymous(StandardFrames)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	t.Cleanup(func() { _ = img.Close() })
	return img
}

// BootMachine assembles the standard layout on a fresh anonymous image.
//
// Example:
//
//	m := testutil.BootMachine(t)
//	heap := m.Window("heap")
func BootMachine(t *testing.T) *boot.Machine {
	t.Helper()
	m, err := boot.Assemble(NewImage(t), StandardLayout())
	if err != nil {
		t.Fatalf("Failed to assemble machine: %v", err)
	}
	return m
}

// CreateImageFile creates a file-backed image in a directory the test
// owns, with a dirty tracker installed. The caller closes the image;
// reopen-after-close flows need that control, so no cleanup is
// registered.
func CreateImageFile(t *testing.T, name string, frames uint32) (*mem.Image, *dirty.Tracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	img, err := mem.Create(path, frames)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	tracker := dirty.NewTracker(img)
	img.SetTracker(tracker)
	return img, tracker, path
}
