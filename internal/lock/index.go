package lock

import (
	"sort"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"chestward.ai/internal/grid"
)

// Index maps canonical position keys to their owning Resource. Every
// position of a resource points at the same record, so membership tests are
// O(1) from any cell of a double unit. Safe for use from any goroutine.
//
// Lock does not guard against a racing caller locking the same cell: the
// last writer wins, matching map semantics. Callers pre-check with IsLocked.
type Index struct {
	byPos    *xsync.MapOf[string, *Resource]
	onChange func()
}

func NewIndex() *Index {
	return &Index{byPos: xsync.NewMapOf[string, *Resource]()}
}

// OnChange registers a hook invoked after every mutation, used to mark the
// durable store dirty.
func (ix *Index) OnChange(fn func()) { ix.onChange = fn }

func (ix *Index) changed() {
	if ix.onChange != nil {
		ix.onChange()
	}
}

func (ix *Index) IsLocked(p grid.Pos) bool {
	_, ok := ix.byPos.Load(p.Key())
	return ok
}

func (ix *Index) Get(p grid.Pos) (*Resource, bool) {
	return ix.byPos.Load(p.Key())
}

// Lock inserts every position of r.
func (ix *Index) Lock(r *Resource) {
	for _, p := range r.Positions {
		ix.byPos.Store(p.Key(), r)
	}
	ix.changed()
}

// Unlock resolves the unit owning p and removes all of its positions.
// Returns the removed resource, or false when p was not locked.
func (ix *Index) Unlock(p grid.Pos) (*Resource, bool) {
	r, ok := ix.byPos.Load(p.Key())
	if !ok {
		return nil, false
	}
	for _, q := range r.Positions {
		ix.byPos.Delete(q.Key())
	}
	ix.changed()
	return r, true
}

// SetMarker records the durable marker identity on the unit owning p. The
// record is replaced copy-on-write, never mutated in place: a published
// record may be serialized concurrently by the flusher.
func (ix *Index) SetMarker(p grid.Pos, id uuid.UUID) {
	r, ok := ix.byPos.Load(p.Key())
	if !ok {
		return
	}
	next := *r
	next.Marker = id
	for _, q := range next.Positions {
		ix.byPos.Store(q.Key(), &next)
	}
	ix.changed()
}

// ByOwner returns each resource owned by id once, regardless of how many
// positions it occupies. Deduplication is by location key, so a racing
// copy-on-write marker update never yields the same unit twice.
func (ix *Index) ByOwner(id uuid.UUID) []*Resource {
	var out []*Resource
	seen := map[string]bool{}
	ix.byPos.Range(func(_ string, r *Resource) bool {
		if key := r.LocationKey(); r.OwnedBy(id) && !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
		return true
	})
	sortResources(out)
	return out
}

// Count is the number of distinct locked resources, not positions.
func (ix *Index) Count() int {
	seen := map[string]bool{}
	ix.byPos.Range(func(_ string, r *Resource) bool {
		seen[r.LocationKey()] = true
		return true
	})
	return len(seen)
}

// Snapshot returns every distinct resource in deterministic order, for the
// durable store.
func (ix *Index) Snapshot() []*Resource {
	var out []*Resource
	seen := map[string]bool{}
	ix.byPos.Range(func(_ string, r *Resource) bool {
		if key := r.LocationKey(); !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
		return true
	})
	sortResources(out)
	return out
}

// Replace swaps the full index content, used on load. The change hook is
// not invoked: loading must not mark the store dirty.
func (ix *Index) Replace(rs []*Resource) {
	ix.byPos.Clear()
	for _, r := range rs {
		for _, p := range r.Positions {
			ix.byPos.Store(p.Key(), r)
		}
	}
}

func sortResources(rs []*Resource) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].LocationKey() < rs[j].LocationKey() })
}
