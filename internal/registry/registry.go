// Package registry holds the single shared snapshot of known droplets.
// A refresh replaces the snapshot atomically; readers (every metric job,
// every tick) never block and never see a partially updated list.
package registry

import (
	"sync/atomic"

	"github.com/droxporter/droxporter/internal/domain"
)

// Evictor is implemented by the metric store. On a registry swap, the
// registry tells the evictor which droplet names vanished so their
// series can be dropped before they go stale forever.
type Evictor interface {
	EvictDroplets(names []string)
}

// Registry wraps an atomic.Pointer to a droplet slice. List is O(1)
// and lock-free; Replace swaps the pointer and diffs old against new
// to find disappeared droplets.
type Registry struct {
	snapshot atomic.Pointer[[]domain.Droplet]
	evictor  Evictor
}

// New creates an empty Registry. evictor may be nil in tests that
// don't care about eviction side effects.
func New(evictor Evictor) *Registry {
	r := &Registry{evictor: evictor}
	empty := []domain.Droplet{}
	r.snapshot.Store(&empty)
	return r
}

// List returns the current snapshot. The returned slice must not be
// mutated by the caller; it is shared across all readers until the
// next Replace.
func (r *Registry) List() []domain.Droplet {
	return *r.snapshot.Load()
}

// Replace atomically installs next as the current snapshot and evicts
// any droplet name present in the old snapshot but absent from next.
func (r *Registry) Replace(next []domain.Droplet) {
	old := r.snapshot.Swap(&next)

	if r.evictor == nil || old == nil {
		return
	}

	nextNames := make(map[string]struct{}, len(next))
	for _, d := range next {
		nextNames[d.Name] = struct{}{}
	}

	var gone []string
	for _, d := range *old {
		if _, ok := nextNames[d.Name]; !ok {
			gone = append(gone, d.Name)
		}
	}
	if len(gone) > 0 {
		r.evictor.EvictDroplets(gone)
	}
}
