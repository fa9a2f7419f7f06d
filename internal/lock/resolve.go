package lock

import (
	"chestward.ai/internal/grid"
	"chestward.ai/internal/host"
)

// neighbor check order is fixed so resolution is deterministic: +X, -X,
// +Z, -Z. Units are capped at two cells; there is no transitive search.
var horizontal = [4][3]int{
	{1, 0, 0},
	{-1, 0, 0},
	{0, 0, 1},
	{0, 0, -1},
}

// adjacency6 is the order used when scanning around a sign for a container:
// up, down, then the four horizontal directions.
var adjacency6 = [6][3]int{
	{0, 1, 0},
	{0, -1, 0},
	{1, 0, 0},
	{-1, 0, 0},
	{0, 0, 1},
	{0, 0, -1},
}

// Resolver determines the full position set forming one lockable unit.
type Resolver struct {
	blocks host.BlockQuery
}

func NewResolver(blocks host.BlockQuery) *Resolver {
	return &Resolver{blocks: blocks}
}

// Unit resolves the unit containing seed. It returns nil when seed is not a
// loaded lockable cell, a singleton when no merge partner exists, and a
// two-cell set when a horizontal neighbor is lockable with exactly the same
// stored orientation. Only the first matching neighbor merges. A neighbor
// whose chunk is not loaded, or whose state cannot be read, is treated as
// non-matching rather than failing the resolution.
func (r *Resolver) Unit(seed grid.Pos) []grid.Pos {
	if !r.blocks.ChunkLoaded(seed) || !r.blocks.IsLockable(seed) {
		return nil
	}
	yaw, ok := r.blocks.Orientation(seed)
	if !ok {
		return []grid.Pos{seed}
	}
	for _, d := range horizontal {
		n := seed.Offset(d[0], d[1], d[2])
		if !r.blocks.ChunkLoaded(n) {
			continue
		}
		if !r.blocks.IsLockable(n) {
			continue
		}
		nyaw, ok := r.blocks.Orientation(n)
		if !ok {
			continue
		}
		if nyaw == yaw {
			return []grid.Pos{seed, n}
		}
	}
	return []grid.Pos{seed}
}

// UnitNextTo scans the six blocks adjacent to p (typically a sign) and
// resolves the first lockable unit found.
func (r *Resolver) UnitNextTo(p grid.Pos) []grid.Pos {
	for _, d := range adjacency6 {
		if unit := r.Unit(p.Offset(d[0], d[1], d[2])); len(unit) > 0 {
			return unit
		}
	}
	return nil
}
