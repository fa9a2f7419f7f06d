// Package grid holds the world-scoped block coordinate type and its
// canonical string key. The key is used as the map key for both the lock
// index and the marker registry, so encode/decode must be exact inverses.
package grid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Pos is an immutable world-scoped block coordinate.
type Pos struct {
	World string
	X     int
	Y     int
	Z     int
}

// Key canonicalizes p as "world:x,y,z". Coordinates never contain ':', so
// the encoding stays injective even when the world id itself does.
func (p Pos) Key() string {
	var b strings.Builder
	b.Grow(len(p.World) + 16)
	b.WriteString(p.World)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(p.X))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(p.Y))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(p.Z))
	return b.String()
}

func (p Pos) String() string { return p.Key() }

// ParseKey is the exact inverse of Key.
func ParseKey(s string) (Pos, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Pos{}, errors.Errorf("position key %q: missing world separator", s)
	}
	x, y, z, err := ParseCoords(s[i+1:])
	if err != nil {
		return Pos{}, errors.Wrapf(err, "position key %q", s)
	}
	return Pos{World: s[:i], X: x, Y: y, Z: z}, nil
}

// ParseCoords parses an "x,y,z" triple.
func ParseCoords(s string) (x, y, z int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, errors.Errorf("coords %q: want 3 fields, got %d", s, len(parts))
	}
	x, err = strconv.Atoi(parts[0])
	if err == nil {
		y, err = strconv.Atoi(parts[1])
	}
	if err == nil {
		z, err = strconv.Atoi(parts[2])
	}
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "coords %q", s)
	}
	return x, y, z, nil
}

// Coords renders just the "x,y,z" triple, as used inside lock records.
func (p Pos) Coords() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// Offset returns p shifted by (dx,dy,dz) within the same world.
func (p Pos) Offset(dx, dy, dz int) Pos {
	return Pos{World: p.World, X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// Less orders positions lexicographically by (X, Y, Z), then world, which
// keeps serialized position sets deterministic.
func (p Pos) Less(o Pos) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	if p.Z != o.Z {
		return p.Z < o.Z
	}
	return p.World < o.World
}

// Sort orders ps in place by Less.
func Sort(ps []Pos) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}
