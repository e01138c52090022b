// Package verify provides validation functions for memory image
// structures. These helpers are used in tests and by the CLI to ensure
// allocator and translator invariants are maintained.
package verify

import (
	"fmt"
	"sort"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/frame"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/joshuapare/memkit/mem/region"
)

// Error types for different validation failures.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// AllInvariants validates image, bitmap, ownership and partition
// invariants in one call. Returns the first error encountered, or nil
// if all checks pass.
func AllInvariants(img *mem.Image, reg *frame.Registry, spaces []*paging.AddressSpace, windows []*region.Pool) error {
	if err := Image(img.Bytes()); err != nil {
		return err
	}
	if err := Bitmaps(reg); err != nil {
		return err
	}
	for _, space := range spaces {
		if err := Ownership(space, reg); err != nil {
			return err
		}
	}
	for _, w := range windows {
		if err := Partition(w); err != nil {
			return err
		}
	}
	return nil
}

// Image validates the PMIG header structure and invariants against the
// raw image bytes.
func Image(data []byte) error {
	if len(data) < layout.ImgMinHeader {
		return &ValidationError{
			Type:    "ImageHeader",
			Message: fmt.Sprintf("file too small: %d bytes (need %d)", len(data), layout.ImgMinHeader),
			Offset:  -1,
		}
	}

	// Check signature
	sig := string(data[layout.ImgSignatureOffset : layout.ImgSignatureOffset+4])
	if sig != string(layout.ImgSignature) {
		return &ValidationError{
			Type:    "ImageHeader",
			Message: fmt.Sprintf("invalid signature: got %q, expected %q", sig, layout.ImgSignature),
			Offset:  layout.ImgSignatureOffset,
		}
	}

	// Check version
	version := layout.ReadU32(data, layout.ImgVersionOffset)
	if version != layout.ImageVersion {
		return &ValidationError{
			Type:    "ImageHeader",
			Message: fmt.Sprintf("unsupported version: %d (expected %d)", version, layout.ImageVersion),
			Offset:  layout.ImgVersionOffset,
		}
	}

	// Check page size
	pageSize := layout.ReadU32(data, layout.ImgPageSizeOffset)
	if pageSize != layout.PageSize {
		return &ValidationError{
			Type:    "ImageHeader",
			Message: fmt.Sprintf("unexpected page size: %d (expected %d)", pageSize, layout.PageSize),
			Offset:  layout.ImgPageSizeOffset,
		}
	}

	if err := Checksum(data); err != nil {
		return err
	}

	// Check the frame count against the file size
	frames := layout.ReadU32(data, layout.ImgFrameCountOffset)
	expected := layout.ImageSize(frames)
	actual := int64(len(data))
	if actual != expected {
		return &ValidationError{
			Type:    "ImageSize",
			Message: fmt.Sprintf("file size mismatch: actual=0x%X, expected=0x%X (header+frames)", actual, expected),
			Offset:  -1,
			Details: map[string]interface{}{
				"actual":      actual,
				"expected":    expected,
				"header_size": int64(layout.HeaderSize),
				"frame_count": frames,
			},
		}
	}

	return nil
}

// Checksum validates the PMIG header checksum: the XOR of all dwords
// before the checksum field, with the degenerate all-ones and
// all-zeros results remapped.
func Checksum(data []byte) error {
	if len(data) < layout.ImgMinHeader {
		return &ValidationError{
			Type:    "Checksum",
			Message: "file too small for header",
			Offset:  -1,
		}
	}

	hdr, err := mem.ParseHeader(data)
	if err != nil {
		return &ValidationError{
			Type:    "Checksum",
			Message: err.Error(),
			Offset:  -1,
		}
	}
	if !hdr.ChecksumOK() {
		return &ValidationError{
			Type:    "Checksum",
			Message: fmt.Sprintf("checksum mismatch: stored=0x%08X", hdr.StoredChecksum()),
			Offset:  layout.ImgChecksumOffset,
			Details: map[string]interface{}{
				"stored": hdr.StoredChecksum(),
			},
		}
	}

	return nil
}

// Clean checks that the image's dirty flag is not set. A set flag means
// the image was modified after its last committed flush (or a crash
// interrupted a commit).
func Clean(data []byte) error {
	if len(data) < layout.ImgMinHeader {
		return &ValidationError{
			Type:    "DirtyFlag",
			Message: "file too small for header",
			Offset:  -1,
		}
	}

	flags := layout.ReadU32(data, layout.ImgFlagsOffset)
	if flags&layout.ImgFlagDirty != 0 {
		return &ValidationError{
			Type:    "DirtyFlag",
			Message: fmt.Sprintf("dirty flag set (flags=0x%X): uncommitted modifications", flags),
			Offset:  layout.ImgFlagsOffset,
		}
	}

	return nil
}

// Bitmap validates a single pool's frame bitmap:
//
//   - the counted free frames match the pool's running total
//   - no continuation frame appears without a head before it
//   - a self-hosting pool's bitmap frames are themselves claimed
func Bitmap(p *frame.Pool) error {
	base := p.Base()
	frames := p.Frames()

	var free uint32
	prev := frame.Head // a pool-initial continuation is always orphaned
	first := true
	for fno := base; fno < base+frames; fno++ {
		st, err := p.State(fno)
		if err != nil {
			return err
		}
		if st == frame.Free {
			free++
		}
		if st == frame.Allocated {
			if first || (prev != frame.Head && prev != frame.Allocated) {
				return &ValidationError{
					Type:    "Bitmap",
					Message: fmt.Sprintf("pool %q: continuation frame without head", p.Name()),
					Offset:  int(fno),
				}
			}
		}
		prev = st
		first = false
	}

	if free != p.FreeFrames() {
		return &ValidationError{
			Type:    "Bitmap",
			Message: fmt.Sprintf("pool %q: counted %d free frames, accounting says %d", p.Name(), free, p.FreeFrames()),
			Offset:  -1,
			Details: map[string]interface{}{
				"counted":    free,
				"accounting": p.FreeFrames(),
			},
		}
	}

	if p.SelfHosted() {
		metaBase := p.MetadataBase()
		for i := uint32(0); i < p.MetadataSpan(); i++ {
			st, err := p.State(metaBase + i)
			if err != nil {
				return err
			}
			want := frame.Allocated
			if i == 0 {
				want = frame.Head
			}
			if st != want {
				return &ValidationError{
					Type:    "Bitmap",
					Message: fmt.Sprintf("pool %q: bitmap frame not claimed (state %v)", p.Name(), st),
					Offset:  int(metaBase + i),
				}
			}
		}
	}

	return nil
}

// Bitmaps validates every pool registered with the registry.
func Bitmaps(reg *frame.Registry) error {
	for _, p := range reg.Pools() {
		if err := Bitmap(p); err != nil {
			return err
		}
	}
	return nil
}

// Ownership validates the leaf mappings of an address space:
//
//   - every mapped frame belongs to a registered pool and is marked
//     allocated there
//   - no frame is mapped at two addresses of the same space
//   - on the kernel space, addresses below the shared span map to
//     their identical frame number
//
// For derived spaces the shared kernel prefix is skipped; the kernel
// space owns those mappings.
func Ownership(space *paging.AddressSpace, reg *frame.Registry) error {
	sys := space.System()
	kernelSpan := sys.KernelSpan()
	sharedSpan := sys.SharedSpan()
	seen := make(map[uint32]uint32)

	return space.WalkPages(func(vaddr, fno uint32) error {
		if !space.IsKernel() && vaddr < kernelSpan {
			return nil
		}

		if prior, dup := seen[fno]; dup {
			return &ValidationError{
				Type:    "Ownership",
				Message: fmt.Sprintf("frame %d mapped twice: 0x%08X and 0x%08X", fno, prior, vaddr),
				Offset:  int(vaddr),
			}
		}
		seen[fno] = vaddr

		// Identity pages mirror raw frames; they carry no pool claim.
		if space.IsKernel() && vaddr < sharedSpan {
			if fno != vaddr>>layout.PageShift {
				return &ValidationError{
					Type:    "Ownership",
					Message: fmt.Sprintf("identity mapping broken: frame %d", fno),
					Offset:  int(vaddr),
				}
			}
			return nil
		}

		pool, ok := reg.Lookup(fno)
		if !ok {
			return &ValidationError{
				Type:    "Ownership",
				Message: fmt.Sprintf("mapped frame %d belongs to no registered pool", fno),
				Offset:  int(vaddr),
			}
		}
		st, err := pool.State(fno)
		if err != nil {
			return err
		}
		if !st.Used() {
			return &ValidationError{
				Type:    "Ownership",
				Message: fmt.Sprintf("mapped frame %d is free in pool %q", fno, pool.Name()),
				Offset:  int(vaddr),
			}
		}
		return nil
	})
}

// Partition validates that a region pool's descriptors tile its window
// exactly: allocated and free regions together cover every byte once,
// in page-sized multiples, beginning with the metadata self-entry.
func Partition(p *region.Pool) error {
	base, size := p.Window()
	allocated, free, err := p.Regions()
	if err != nil {
		return err
	}

	all := make([]region.Region, 0, len(allocated)+len(free))
	all = append(all, allocated...)
	all = append(all, free...)
	sort.Slice(all, func(i, j int) bool { return all[i].Addr < all[j].Addr })

	if len(all) == 0 || all[0].Addr != base || all[0].Size != 2*layout.PageSize {
		return &ValidationError{
			Type:    "Partition",
			Message: "metadata self-entry missing from allocated regions",
			Offset:  int(base),
		}
	}

	cursor := uint64(base)
	for _, r := range all {
		if uint64(r.Addr) != cursor {
			return &ValidationError{
				Type:    "Partition",
				Message: fmt.Sprintf("window not tiled: next region at 0x%08X, cursor at 0x%X", r.Addr, cursor),
				Offset:  int(r.Addr),
				Details: map[string]interface{}{
					"cursor": cursor,
					"addr":   r.Addr,
				},
			}
		}
		if r.Size == 0 || r.Size%layout.PageSize != 0 {
			return &ValidationError{
				Type:    "Partition",
				Message: fmt.Sprintf("region size not page-aligned: 0x%X", r.Size),
				Offset:  int(r.Addr),
			}
		}
		cursor += uint64(r.Size)
	}

	if cursor != uint64(base)+uint64(size) {
		return &ValidationError{
			Type:    "Partition",
			Message: fmt.Sprintf("window not covered: regions end at 0x%X, window at 0x%X", cursor, uint64(base)+uint64(size)),
			Offset:  -1,
		}
	}

	return nil
}
