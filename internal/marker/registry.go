// Package marker tracks floating text entities by two identities: a
// transient host handle for fast in-process lookup and a durable UUID that
// survives restarts. The two tables are never conflated; durable resolution
// through the host is the fallback whenever the transient table misses.
package marker

import (
	"log"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"chestward.ai/internal/grid"
	"chestward.ai/internal/host"
)

// Registry owns the location->identities association and the in-memory
// handle table. Safe for use from any goroutine; the operations that touch
// live entities document their threading below.
type Registry struct {
	entities host.Entities
	exec     host.Executor

	spacing float64
	faceOff float64

	// assoc: position key -> durable identities in display order (top line
	// first). This is the persisted side.
	assoc *xsync.MapOf[string, []uuid.UUID]
	// live: durable identity -> transient handle. Process lifetime only.
	live *xsync.MapOf[uuid.UUID, host.Handle]

	onChange func()
}

func NewRegistry(entities host.Entities, exec host.Executor, lineSpacing, faceOffset float64) *Registry {
	return &Registry{
		entities: entities,
		exec:     exec,
		spacing:  lineSpacing,
		faceOff:  faceOffset,
		assoc:    xsync.NewMapOf[string, []uuid.UUID](),
		live:     xsync.NewMapOf[uuid.UUID, host.Handle](),
	}
}

// OnChange registers a hook invoked after every persisted-side mutation.
func (r *Registry) OnChange(fn func()) { r.onChange = fn }

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

// LineOffset is the vertical offset of line i out of n so the stack stays
// centered on the anchor: ((n-1-i) - (n-1)/2) * spacing.
func LineOffset(i, n int, spacing float64) float64 {
	return (float64(n-1-i) - float64(n-1)/2) * spacing
}

// FaceOffset biases the marker toward the viewer along whichever horizontal
// axis has the larger delta; ties fall to the Z axis.
func FaceOffset(dx, dz, mag float64) (ox, oz float64) {
	ax, az := dx, dz
	if ax < 0 {
		ax = -ax
	}
	if az < 0 {
		az = -az
	}
	if ax > az {
		if dx > 0 {
			return mag, 0
		}
		return -mag, 0
	}
	if dz > 0 {
		return 0, mag
	}
	return 0, -mag
}

// AwayOffset pushes away from the (dx,dz) direction on each nonzero axis,
// used to place a lock marker on the near side of a sign, opposite its
// container.
func AwayOffset(dx, dz int, mag float64) (ox, oz float64) {
	if dx > 0 {
		ox = -mag
	} else if dx < 0 {
		ox = mag
	}
	if dz > 0 {
		oz = -mag
	} else if dz < 0 {
		oz = mag
	}
	return ox, oz
}

// CreateLine spawns line i of n at p and records both identities. It must
// be invoked on p's world context. The viewer coordinates decide which face
// of the anchor the text leans toward.
func (r *Registry) CreateLine(p grid.Pos, i, n int, text string, viewerX, viewerZ float64) (uuid.UUID, error) {
	ox, oz := FaceOffset(viewerX-(float64(p.X)+0.5), viewerZ-(float64(p.Z)+0.5), r.faceOff)
	x := float64(p.X) + 0.5 + ox
	y := float64(p.Y) + LineOffset(i, n, r.spacing)
	z := float64(p.Z) + 0.5 + oz

	id := uuid.New()
	h, err := r.entities.SpawnMarker(p.World, x, y, z, text, id)
	if err != nil {
		return uuid.Nil, err
	}
	r.live.Store(id, h)
	key := p.Key()
	r.assoc.Compute(key, func(old []uuid.UUID, _ bool) ([]uuid.UUID, bool) {
		next := make([]uuid.UUID, len(old), len(old)+1)
		copy(next, old)
		return append(next, id), false
	})
	r.changed()
	return id, nil
}

// SpawnAt spawns a single unlisted marker at exact coordinates and tracks
// only its live handle; the caller owns the durable identity (e.g. inside a
// lock record). Must be invoked on the world context.
func (r *Registry) SpawnAt(world string, x, y, z float64, text string) (uuid.UUID, error) {
	id := uuid.New()
	h, err := r.entities.SpawnMarker(world, x, y, z, text, id)
	if err != nil {
		return uuid.Nil, err
	}
	r.live.Store(id, h)
	return id, nil
}

// RemoveAll drops every persisted identity at p and schedules their despawn
// on the world context. The association is removed synchronously on the
// calling thread, so a repeat call returns nothing: the operation is
// idempotent and never leaves a ghost record, even when a despawn fails.
// Returns the identities that were processed.
func (r *Registry) RemoveAll(p grid.Pos) []uuid.UUID {
	ids, ok := r.assoc.LoadAndDelete(p.Key())
	if !ok || len(ids) == 0 {
		return nil
	}
	r.changed()
	world := p.World
	r.exec.Submit(world, func() {
		for _, id := range ids {
			r.despawn(world, id)
		}
	})
	return ids
}

// Despawn schedules best-effort removal of a single unlisted marker.
func (r *Registry) Despawn(world string, id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	r.exec.Submit(world, func() { r.despawn(world, id) })
}

// despawn runs on the world context. A missing or stale identity is
// treated as already cleaned up.
func (r *Registry) despawn(world string, id uuid.UUID) {
	h, ok := r.live.LoadAndDelete(id)
	if !ok {
		h, ok = r.entities.ResolveMarker(world, id)
	}
	if !ok {
		log.Printf("marker: identity %s no longer resolves in %s, treating as removed", id, world)
		return
	}
	if err := r.entities.DespawnMarker(world, h); err != nil {
		log.Printf("marker: despawn %s (handle %d) in %s failed: %v", id, h, world, err)
	}
}

func (r *Registry) HasMarkers(p grid.Pos) bool {
	_, ok := r.assoc.Load(p.Key())
	return ok
}

// Identities returns the durable identities at p in display order.
func (r *Registry) Identities(p grid.Pos) []uuid.UUID {
	ids, ok := r.assoc.Load(p.Key())
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}

// Snapshot copies the persisted association map for the durable store.
func (r *Registry) Snapshot() map[string][]uuid.UUID {
	out := map[string][]uuid.UUID{}
	r.assoc.Range(func(key string, ids []uuid.UUID) bool {
		cp := make([]uuid.UUID, len(ids))
		copy(cp, ids)
		out[key] = cp
		return true
	})
	return out
}

// Replace swaps the persisted association content, used on load. Live
// handles are untouched: after a restart they are recovered on demand
// through durable resolution.
func (r *Registry) Replace(m map[string][]uuid.UUID) {
	r.assoc.Clear()
	for key, ids := range m {
		cp := make([]uuid.UUID, len(ids))
		copy(cp, ids)
		r.assoc.Store(key, cp)
	}
}
