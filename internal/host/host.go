// Package host declares the surface this module consumes from the game
// engine. Everything behind these interfaces is a black box: block state
// lookups, marker entity lifecycle and the per-world execution context.
package host

import (
	"github.com/google/uuid"

	"chestward.ai/internal/grid"
)

// Handle is the transient, process-lifetime reference to a live marker
// entity. It is assigned by the host at spawn time and is not valid across
// restarts; revalidate through ResolveMarker before use.
type Handle int64

// BlockQuery reads live block state. Implementations may only be safe to
// call on the world context; the resolver tolerates failures by treating
// them as negative answers.
type BlockQuery interface {
	// IsLockable reports whether the block at p is a lockable container.
	IsLockable(p grid.Pos) bool
	// IsSign reports whether the block at p is a text sign.
	IsSign(p grid.Pos) bool
	// Orientation returns the stored rotation value at p. ok is false when
	// the block has no orientation data.
	Orientation(p grid.Pos) (yaw int, ok bool)
	// ChunkLoaded reports whether the chunk containing p is resident.
	ChunkLoaded(p grid.Pos) bool
}

// Entities spawns and despawns marker entities. All three methods must be
// invoked on the world context of the given world.
type Entities interface {
	// SpawnMarker creates a floating text entity at the exact (fractional)
	// coordinates, tagged with the durable identity so it can be found
	// again after a restart.
	SpawnMarker(world string, x, y, z float64, text string, id uuid.UUID) (Handle, error)
	// DespawnMarker removes a live marker entity.
	DespawnMarker(world string, h Handle) error
	// ResolveMarker recovers the live handle for a durable identity. ok is
	// false when no such entity exists anymore.
	ResolveMarker(world string, id uuid.UUID) (Handle, bool)
}

// Executor marshals work onto the single authoritative processing context
// of a world. Submit must not block the caller on execution of fn.
type Executor interface {
	Submit(world string, fn func())
}
