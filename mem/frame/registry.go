package frame

import "fmt"

// Registry tracks every constructed pool, newest first. A release that
// only knows a frame number goes through the registry, which routes it
// to the pool containing the frame.
type Registry struct {
	pools []*Pool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Add places p at the head of the registry. Nil pools are ignored.
func (r *Registry) Add(p *Pool) {
	if p == nil {
		return
	}
	r.pools = append([]*Pool{p}, r.pools...)
}

// Pools returns the registered pools, newest first.
func (r *Registry) Pools() []*Pool {
	out := make([]*Pool, len(r.pools))
	copy(out, r.pools)
	return out
}

// Lookup returns the pool containing absolute frame fno. When ranges
// overlap the most recently registered pool wins.
func (r *Registry) Lookup(fno uint32) (*Pool, bool) {
	for _, p := range r.pools {
		if p.Contains(fno) {
			return p, true
		}
	}
	return nil, false
}

// ByName returns the first registered pool with the given name.
func (r *Registry) ByName(name string) (*Pool, bool) {
	for _, p := range r.pools {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Release routes the release of the sequence headed by absolute frame
// fno to the pool that contains it.
func (r *Registry) Release(fno uint32) error {
	p, ok := r.Lookup(fno)
	if !ok {
		return fmt.Errorf("%w: frame %d", ErrNotOwned, fno)
	}
	return p.Release(fno)
}
