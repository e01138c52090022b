package boot

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/internal/memtext"
)

// PoolSpec declares one frame pool.
type PoolSpec struct {
	Name     string
	Base     uint32 // first frame
	Frames   uint32
	Metadata string // memtext.MetadataSelf or the name of an earlier pool
}

// HoleSpec reserves a frame range before any allocation.
type HoleSpec struct {
	Pool   string
	Base   uint32 // first reserved frame, absolute
	Frames uint32
}

// PagingSpec configures the address translator.
type PagingSpec struct {
	Directories string
	Pages       string
	KernelSpan  uint32 // 0 selects the translator default
	SharedSpan  uint32 // 0 selects the translator default
}

// WindowSpec declares a byte-granular allocation window.
type WindowSpec struct {
	Name    string
	Space   string // memtext.SpaceKernel
	Base    uint32
	Size    uint32
	Backing string
}

// Layout is the parsed machine description.
type Layout struct {
	Frames  uint32
	Pools   []PoolSpec
	Holes   []HoleSpec
	Paging  *PagingSpec
	Windows []WindowSpec
}

// frameCount reads a key as a frame count. A value with a size suffix
// is a byte quantity and must divide evenly into frames.
func frameCount(s *memtext.Section, key string, required bool) (uint32, error) {
	v, ok := s.Lookup(key)
	if !ok {
		if required {
			return 0, fmt.Errorf("boot: line %d: [%s] missing %q", s.Line, s.Heading(), key)
		}
		return 0, nil
	}
	n, err := memtext.ParseSize(v)
	if err != nil {
		return 0, fmt.Errorf("boot: line %d: %w", s.Line, err)
	}
	if hasSizeSuffix(v) {
		if n%layout.PageSize != 0 {
			return 0, fmt.Errorf("boot: line %d: %q = %s is not a whole number of frames", s.Line, key, v)
		}
		n /= layout.PageSize
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("boot: line %d: %q = %s out of range", s.Line, key, v)
	}
	return uint32(n), nil
}

// byteValue reads a key as a byte quantity fitting an address.
func byteValue(s *memtext.Section, key string, required bool) (uint32, error) {
	v, ok := s.Lookup(key)
	if !ok {
		if required {
			return 0, fmt.Errorf("boot: line %d: [%s] missing %q", s.Line, s.Heading(), key)
		}
		return 0, nil
	}
	n, err := memtext.ParseSize(v)
	if err != nil {
		return 0, fmt.Errorf("boot: line %d: %w", s.Line, err)
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("boot: line %d: %q = %s out of range", s.Line, key, v)
	}
	return uint32(n), nil
}

func hasSizeSuffix(v string) bool {
	if len(v) < 2 {
		return false
	}
	switch strings.ToUpper(v[len(v)-2:]) {
	case memtext.SuffixKB, memtext.SuffixMB, memtext.SuffixGB:
		return true
	}
	return false
}

func requiredName(s *memtext.Section, key string) (string, error) {
	v, ok := s.Lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("boot: line %d: [%s] missing %q", s.Line, s.Heading(), key)
	}
	return v, nil
}

// ParseLayout reads a .memmap document and extracts the machine
// description. The returned layout has passed Validate.
func ParseLayout(r io.Reader) (*Layout, error) {
	doc, err := memtext.ParseDocument(r)
	if err != nil {
		return nil, err
	}

	l := &Layout{}
	for _, s := range doc.Sections {
		switch s.Name {
		case memtext.SectionImage:
			if l.Frames != 0 {
				return nil, fmt.Errorf("boot: line %d: duplicate [image] section", s.Line)
			}
			if l.Frames, err = frameCount(s, memtext.KeyFrames, true); err != nil {
				return nil, err
			}

		case memtext.SectionPool:
			if s.Arg == "" {
				return nil, fmt.Errorf("boot: line %d: pool section needs a name", s.Line)
			}
			p := PoolSpec{Name: s.Arg, Metadata: memtext.MetadataSelf}
			if p.Base, err = frameCount(s, memtext.KeyBase, true); err != nil {
				return nil, err
			}
			if p.Frames, err = frameCount(s, memtext.KeyFrames, true); err != nil {
				return nil, err
			}
			if v, ok := s.Lookup(memtext.KeyMetadata); ok {
				p.Metadata = v
			}
			l.Pools = append(l.Pools, p)

		case memtext.SectionHole:
			h := HoleSpec{}
			if h.Pool, err = requiredName(s, memtext.KeyPool); err != nil {
				return nil, err
			}
			if h.Base, err = frameCount(s, memtext.KeyBase, true); err != nil {
				return nil, err
			}
			if h.Frames, err = frameCount(s, memtext.KeyFrames, true); err != nil {
				return nil, err
			}
			l.Holes = append(l.Holes, h)

		case memtext.SectionPaging:
			if l.Paging != nil {
				return nil, fmt.Errorf("boot: line %d: duplicate [paging] section", s.Line)
			}
			p := &PagingSpec{}
			if p.Directories, err = requiredName(s, memtext.KeyDirectories); err != nil {
				return nil, err
			}
			if p.Pages, err = requiredName(s, memtext.KeyPages); err != nil {
				return nil, err
			}
			if p.KernelSpan, err = byteValue(s, memtext.KeyKernelSpan, false); err != nil {
				return nil, err
			}
			if p.SharedSpan, err = byteValue(s, memtext.KeySharedSpan, false); err != nil {
				return nil, err
			}
			l.Paging = p

		case memtext.SectionWindow:
			if s.Arg == "" {
				return nil, fmt.Errorf("boot: line %d: window section needs a name", s.Line)
			}
			w := WindowSpec{Name: s.Arg, Space: memtext.SpaceKernel}
			if v, ok := s.Lookup(memtext.KeySpace); ok {
				w.Space = v
			}
			if w.Base, err = byteValue(s, memtext.KeyBase, true); err != nil {
				return nil, err
			}
			if w.Size, err = byteValue(s, memtext.KeySize, true); err != nil {
				return nil, err
			}
			if w.Backing, err = requiredName(s, memtext.KeyBacking); err != nil {
				return nil, err
			}
			l.Windows = append(l.Windows, w)

		default:
			return nil, fmt.Errorf("boot: line %d: unknown section %q", s.Line, s.Name)
		}
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate cross-checks the layout: pool geometry against the image,
// metadata borrowing against declaration order, holes against their
// pool, paging and window references against the pool set.
func (l *Layout) Validate() error {
	if l.Frames == 0 {
		return fmt.Errorf("boot: layout has no [image] section or zero frames")
	}
	if len(l.Pools) == 0 {
		return fmt.Errorf("boot: layout declares no pools")
	}

	seen := make(map[string]int, len(l.Pools))
	for i, p := range l.Pools {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("boot: duplicate pool %q", p.Name)
		}
		if p.Frames == 0 {
			return fmt.Errorf("boot: pool %q has zero frames", p.Name)
		}
		end := uint64(p.Base) + uint64(p.Frames)
		if end > uint64(l.Frames) {
			return fmt.Errorf("boot: pool %q [%d,%d) exceeds image (%d frames)", p.Name, p.Base, end, l.Frames)
		}
		if p.Metadata != memtext.MetadataSelf {
			if _, ok := seen[p.Metadata]; !ok {
				return fmt.Errorf("boot: pool %q borrows metadata from %q, which is not declared before it", p.Name, p.Metadata)
			}
		}
		seen[p.Name] = i
	}

	// Pools must not overlap: sort a copy by base and walk.
	ordered := append([]PoolSpec(nil), l.Pools...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Base < ordered[j].Base })
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if uint64(prev.Base)+uint64(prev.Frames) > uint64(cur.Base) {
			return fmt.Errorf("boot: pools %q and %q overlap", prev.Name, cur.Name)
		}
	}

	for _, h := range l.Holes {
		pi, ok := seen[h.Pool]
		if !ok {
			return fmt.Errorf("boot: hole names unknown pool %q", h.Pool)
		}
		p := l.Pools[pi]
		if h.Frames == 0 {
			return fmt.Errorf("boot: hole in %q has zero frames", h.Pool)
		}
		if h.Base < p.Base || uint64(h.Base)+uint64(h.Frames) > uint64(p.Base)+uint64(p.Frames) {
			return fmt.Errorf("boot: hole [%d,%d) outside pool %q", h.Base, uint64(h.Base)+uint64(h.Frames), h.Pool)
		}
	}

	if l.Paging != nil {
		if _, ok := seen[l.Paging.Directories]; !ok {
			return fmt.Errorf("boot: paging directories pool %q not declared", l.Paging.Directories)
		}
		if _, ok := seen[l.Paging.Pages]; !ok {
			return fmt.Errorf("boot: paging pages pool %q not declared", l.Paging.Pages)
		}
	}

	winNames := make(map[string]bool, len(l.Windows))
	for _, w := range l.Windows {
		if winNames[w.Name] {
			return fmt.Errorf("boot: duplicate window %q", w.Name)
		}
		winNames[w.Name] = true
		if l.Paging == nil {
			return fmt.Errorf("boot: window %q needs a [paging] section", w.Name)
		}
		if w.Space != memtext.SpaceKernel {
			return fmt.Errorf("boot: window %q: unknown space %q", w.Name, w.Space)
		}
		if _, ok := seen[w.Backing]; !ok {
			return fmt.Errorf("boot: window %q backing pool %q not declared", w.Name, w.Backing)
		}
		if w.Size == 0 {
			return fmt.Errorf("boot: window %q has zero size", w.Name)
		}
	}
	for i := range l.Windows {
		for j := i + 1; j < len(l.Windows); j++ {
			a, b := l.Windows[i], l.Windows[j]
			if a.Base < b.Base+b.Size && b.Base < a.Base+a.Size {
				return fmt.Errorf("boot: windows %q and %q overlap", a.Name, b.Name)
			}
		}
	}

	return nil
}

// WriteLayout serializes a layout back to .memmap text.
func WriteLayout(w io.Writer, l *Layout) error {
	doc := &memtext.Document{}

	img := &memtext.Section{Name: memtext.SectionImage}
	addPair(img, memtext.KeyFrames, fmt.Sprintf("%d", l.Frames))
	doc.Sections = append(doc.Sections, img)

	for _, p := range l.Pools {
		s := &memtext.Section{Name: memtext.SectionPool, Arg: p.Name}
		addPair(s, memtext.KeyBase, fmt.Sprintf("%d", p.Base))
		addPair(s, memtext.KeyFrames, fmt.Sprintf("%d", p.Frames))
		addPair(s, memtext.KeyMetadata, p.Metadata)
		doc.Sections = append(doc.Sections, s)
	}

	for _, h := range l.Holes {
		s := &memtext.Section{Name: memtext.SectionHole}
		addPair(s, memtext.KeyPool, h.Pool)
		addPair(s, memtext.KeyBase, fmt.Sprintf("%d", h.Base))
		addPair(s, memtext.KeyFrames, fmt.Sprintf("%d", h.Frames))
		doc.Sections = append(doc.Sections, s)
	}

	if l.Paging != nil {
		s := &memtext.Section{Name: memtext.SectionPaging}
		addPair(s, memtext.KeyDirectories, l.Paging.Directories)
		addPair(s, memtext.KeyPages, l.Paging.Pages)
		if l.Paging.KernelSpan != 0 {
			addPair(s, memtext.KeyKernelSpan, memtext.FormatSize(uint64(l.Paging.KernelSpan)))
		}
		if l.Paging.SharedSpan != 0 {
			addPair(s, memtext.KeySharedSpan, memtext.FormatSize(uint64(l.Paging.SharedSpan)))
		}
		doc.Sections = append(doc.Sections, s)
	}

	for _, win := range l.Windows {
		s := &memtext.Section{Name: memtext.SectionWindow, Arg: win.Name}
		addPair(s, memtext.KeySpace, win.Space)
		addPair(s, memtext.KeyBase, fmt.Sprintf("%s%X", memtext.HexPrefix, win.Base))
		addPair(s, memtext.KeySize, memtext.FormatSize(uint64(win.Size)))
		addPair(s, memtext.KeyBacking, win.Backing)
		doc.Sections = append(doc.Sections, s)
	}

	_, err := w.Write(memtext.Emit(doc))
	return err
}

func addPair(s *memtext.Section, key, value string) {
	s.Pairs = append(s.Pairs, memtext.KeyValue{Key: key, Value: value})
}
