// Package hosttest provides an in-memory host implementation shared by
// tests across the module.
package hosttest

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"chestward.ai/internal/grid"
	"chestward.ai/internal/host"
)

type Block struct {
	Lockable bool
	Sign     bool
	Yaw      int
	NoYaw    bool
}

type Marker struct {
	World string
	X     float64
	Y     float64
	Z     float64
	Text  string
	ID    uuid.UUID
}

// Fake implements host.BlockQuery, host.Entities and host.Executor. Blocks
// live in an explicit map; anything absent is air in a loaded chunk unless
// its position is listed in Unloaded. Submit runs inline so tests stay
// deterministic.
type Fake struct {
	mu sync.Mutex

	Blocks   map[grid.Pos]Block
	Unloaded map[grid.Pos]bool

	nextHandle host.Handle
	ByHandle   map[host.Handle]Marker
	ByIdentity map[uuid.UUID]host.Handle

	// FailDespawn makes DespawnMarker return an error without removing the
	// entity, for idempotency tests.
	FailDespawn bool

	Submitted int
}

func New() *Fake {
	return &Fake{
		Blocks:     map[grid.Pos]Block{},
		Unloaded:   map[grid.Pos]bool{},
		ByHandle:   map[host.Handle]Marker{},
		ByIdentity: map[uuid.UUID]host.Handle{},
	}
}

func (f *Fake) SetContainer(p grid.Pos, yaw int) { f.Blocks[p] = Block{Lockable: true, Yaw: yaw} }
func (f *Fake) SetSign(p grid.Pos)               { f.Blocks[p] = Block{Sign: true} }
func (f *Fake) Clear(p grid.Pos)                 { delete(f.Blocks, p) }

func (f *Fake) IsLockable(p grid.Pos) bool { return f.Blocks[p].Lockable }
func (f *Fake) IsSign(p grid.Pos) bool     { return f.Blocks[p].Sign }

func (f *Fake) Orientation(p grid.Pos) (int, bool) {
	b, ok := f.Blocks[p]
	if !ok || b.NoYaw {
		return 0, false
	}
	return b.Yaw, true
}

func (f *Fake) ChunkLoaded(p grid.Pos) bool { return !f.Unloaded[p] }

func (f *Fake) SpawnMarker(world string, x, y, z float64, text string, id uuid.UUID) (host.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	h := f.nextHandle
	f.ByHandle[h] = Marker{World: world, X: x, Y: y, Z: z, Text: text, ID: id}
	f.ByIdentity[id] = h
	return h, nil
}

func (f *Fake) DespawnMarker(world string, h host.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDespawn {
		return errors.New("despawn refused")
	}
	m, ok := f.ByHandle[h]
	if !ok {
		return errors.Errorf("no marker with handle %d", h)
	}
	delete(f.ByHandle, h)
	delete(f.ByIdentity, m.ID)
	return nil
}

func (f *Fake) ResolveMarker(world string, id uuid.UUID) (host.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.ByIdentity[id]
	return h, ok
}

// DropEntity simulates an external actor destroying the marker out-of-band:
// the durable identity no longer resolves.
func (f *Fake) DropEntity(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.ByIdentity[id]; ok {
		delete(f.ByHandle, h)
		delete(f.ByIdentity, id)
	}
}

func (f *Fake) Submit(world string, fn func()) {
	f.mu.Lock()
	f.Submitted++
	f.mu.Unlock()
	fn()
}

// MarkerCount reports how many live marker entities exist.
func (f *Fake) MarkerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ByHandle)
}
