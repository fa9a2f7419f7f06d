// Package lock implements the spatial lock index and the multi-cell
// resolver that decides which block positions form one lockable unit.
package lock

import (
	"strings"

	"github.com/google/uuid"

	"chestward.ai/internal/grid"
)

// Resource is one locked unit: a single container or a merged double
// container. Its position set is fixed at creation; re-locking with a
// different set requires unlock+lock.
type Resource struct {
	Owner     uuid.UUID
	OwnerName string
	World     string
	// Positions is sorted and holds 1 or 2 entries.
	Positions []grid.Pos
	// Marker is the durable identity of the owner marker entity, or
	// uuid.Nil when none was spawned.
	Marker uuid.UUID
}

// NewResource builds a resource over the given cells. Positions are copied
// and sorted so serialization stays deterministic.
func NewResource(owner uuid.UUID, ownerName, world string, positions []grid.Pos) *Resource {
	ps := make([]grid.Pos, len(positions))
	copy(ps, positions)
	grid.Sort(ps)
	return &Resource{
		Owner:     owner,
		OwnerName: ownerName,
		World:     world,
		Positions: ps,
	}
}

func (r *Resource) OwnedBy(id uuid.UUID) bool { return r.Owner == id }

func (r *Resource) Contains(p grid.Pos) bool {
	for _, q := range r.Positions {
		if q == p {
			return true
		}
	}
	return false
}

// Primary is the first position in sorted order, used for display.
func (r *Resource) Primary() grid.Pos { return r.Positions[0] }

// LocationKey identifies the whole unit: "world:x,y,z;x,y,z".
func (r *Resource) LocationKey() string {
	var b strings.Builder
	b.WriteString(r.World)
	b.WriteByte(':')
	for i, p := range r.Positions {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(p.Coords())
	}
	return b.String()
}
