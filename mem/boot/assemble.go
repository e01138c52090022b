package boot

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/memtext"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/frame"
	"github.com/joshuapare/memkit/mem/paging"
	"github.com/joshuapare/memkit/mem/region"
)

// Machine is an assembled system: the image, its pools, the translator
// and the open windows.
type Machine struct {
	Image    *mem.Image
	Registry *frame.Registry
	Pools    map[string]*frame.Pool
	System   *paging.System        // nil when the layout has no [paging]
	Kernel   *paging.AddressSpace  // nil when System is nil
	Windows  map[string]*region.Pool
}

// Pool returns a pool by layout name, or nil.
func (m *Machine) Pool(name string) *frame.Pool { return m.Pools[name] }

// Window returns a window by layout name, or nil.
func (m *Machine) Window(name string) *region.Pool { return m.Windows[name] }

// Assemble builds a machine on a fresh image:
//
//  1. pools, in declaration order (borrowers allocate their bitmap
//     from the lender first)
//  2. holes, reserved before anything else can claim those frames
//  3. the translator, its kernel space loaded and translation enabled
//  4. windows, opened on the kernel space
//
// The image must have at least the layout's frame count.
func Assemble(img *mem.Image, l *Layout) (*Machine, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if img.Frames() < l.Frames {
		return nil, fmt.Errorf("boot: image has %d frames, layout wants %d", img.Frames(), l.Frames)
	}

	m := &Machine{
		Image:    img,
		Registry: frame.NewRegistry(),
		Pools:    make(map[string]*frame.Pool, len(l.Pools)),
		Windows:  make(map[string]*region.Pool, len(l.Windows)),
	}

	for _, spec := range l.Pools {
		var (
			p   *frame.Pool
			err error
		)
		if spec.Metadata == memtext.MetadataSelf {
			p, err = frame.NewSelfHosted(img, m.Registry, spec.Name, spec.Base, spec.Frames)
		} else {
			lender := m.Pools[spec.Metadata]
			var meta uint32
			meta, err = lender.Allocate(frame.MetadataFrames(spec.Frames))
			if err != nil {
				return nil, fmt.Errorf("boot: bitmap for pool %q: %w", spec.Name, err)
			}
			p, err = frame.New(img, m.Registry, spec.Name, spec.Base, spec.Frames, meta)
		}
		if err != nil {
			return nil, fmt.Errorf("boot: pool %q: %w", spec.Name, err)
		}
		m.Pools[spec.Name] = p
	}

	for _, h := range l.Holes {
		if err := m.Pools[h.Pool].MarkReserved(h.Base, h.Frames); err != nil {
			return nil, fmt.Errorf("boot: hole in %q: %w", h.Pool, err)
		}
	}

	if l.Paging != nil {
		sys, err := paging.NewSystem(img, paging.Config{
			Directories: m.Pools[l.Paging.Directories],
			Pages:       m.Pools[l.Paging.Pages],
			Registry:    m.Registry,
			KernelSpan:  l.Paging.KernelSpan,
			SharedSpan:  l.Paging.SharedSpan,
		})
		if err != nil {
			return nil, fmt.Errorf("boot: paging: %w", err)
		}
		kernel, err := sys.NewAddressSpace()
		if err != nil {
			return nil, fmt.Errorf("boot: kernel space: %w", err)
		}
		if err := kernel.Load(); err != nil {
			return nil, fmt.Errorf("boot: load kernel space: %w", err)
		}
		if err := sys.Enable(); err != nil {
			return nil, fmt.Errorf("boot: enable translation: %w", err)
		}
		m.System = sys
		m.Kernel = kernel
	}

	for _, spec := range l.Windows {
		w, err := region.New(m.Kernel, spec.Base, spec.Size, m.Pools[spec.Backing])
		if err != nil {
			return nil, fmt.Errorf("boot: window %q: %w", spec.Name, err)
		}
		m.Windows[spec.Name] = w
	}

	return m, nil
}

// AttachPools reconstructs a layout's pools from an already-assembled
// image without touching any frame content. Bitmap placement follows
// the same declaration-order rule as Assemble, so a borrower's bitmap
// is the lender's first allocation.
//
// Only the frame layer comes back; translator state is rebuilt by
// booting, not attaching.
func AttachPools(img *mem.Image, l *Layout) (*frame.Registry, map[string]*frame.Pool, error) {
	if err := l.Validate(); err != nil {
		return nil, nil, err
	}
	if img.Frames() < l.Frames {
		return nil, nil, fmt.Errorf("boot: image has %d frames, layout wants %d", img.Frames(), l.Frames)
	}

	reg := frame.NewRegistry()
	pools := make(map[string]*frame.Pool, len(l.Pools))
	// A lender hands out bitmap runs in declaration order; replay that
	// order to find each borrower's metadata base.
	nextMeta := make(map[string]uint32, len(l.Pools))

	for _, spec := range l.Pools {
		var metaBase uint32
		if spec.Metadata == memtext.MetadataSelf {
			metaBase = spec.Base
			nextMeta[spec.Name] = spec.Base + frame.MetadataFrames(spec.Frames)
		} else {
			lender := pools[spec.Metadata]
			span := frame.MetadataFrames(spec.Frames)
			metaBase = nextMeta[spec.Metadata]
			if !lender.Contains(metaBase) || !lender.Contains(metaBase+span-1) {
				return nil, nil, fmt.Errorf("boot: pool %q bitmap would fall outside lender %q", spec.Name, spec.Metadata)
			}
			nextMeta[spec.Metadata] = metaBase + span
			// A borrowed-bitmap pool starts fully free, so if it lends
			// in turn its first run begins at its own base.
			nextMeta[spec.Name] = spec.Base
		}
		p, err := frame.Attach(img, reg, spec.Name, spec.Base, spec.Frames, metaBase)
		if err != nil {
			return nil, nil, fmt.Errorf("boot: attach pool %q: %w", spec.Name, err)
		}
		pools[spec.Name] = p
	}

	return reg, pools, nil
}
