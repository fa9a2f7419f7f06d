package marker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chestward.ai/internal/grid"
	"chestward.ai/internal/host/hosttest"
)

const (
	spacing = 0.25
	faceOff = 0.2
)

func anchor() grid.Pos { return grid.Pos{World: "Alpha", X: 0, Y: 64, Z: 0} }

func newRegistry(f *hosttest.Fake) *Registry {
	return NewRegistry(f, f, spacing, faceOff)
}

func TestLineOffsets(t *testing.T) {
	require.Equal(t, 0.0, LineOffset(0, 1, spacing))

	require.Equal(t, spacing, LineOffset(0, 3, spacing))
	require.Equal(t, 0.0, LineOffset(1, 3, spacing))
	require.Equal(t, -spacing, LineOffset(2, 3, spacing))

	require.Equal(t, spacing/2, LineOffset(0, 2, spacing))
	require.Equal(t, -spacing/2, LineOffset(1, 2, spacing))
}

func TestFaceOffsetDominantAxis(t *testing.T) {
	ox, oz := FaceOffset(3, 1, faceOff)
	require.Equal(t, faceOff, ox)
	require.Equal(t, 0.0, oz)

	ox, oz = FaceOffset(-3, 1, faceOff)
	require.Equal(t, -faceOff, ox)
	require.Equal(t, 0.0, oz)

	ox, oz = FaceOffset(1, -3, faceOff)
	require.Equal(t, 0.0, ox)
	require.Equal(t, -faceOff, oz)

	// Tie breaks toward the Z axis.
	ox, oz = FaceOffset(2, 2, faceOff)
	require.Equal(t, 0.0, ox)
	require.Equal(t, faceOff, oz)
}

func TestAwayOffset(t *testing.T) {
	ox, oz := AwayOffset(1, 0, 0.3)
	require.Equal(t, -0.3, ox)
	require.Equal(t, 0.0, oz)

	ox, oz = AwayOffset(0, -1, 0.3)
	require.Equal(t, 0.0, ox)
	require.Equal(t, 0.3, oz)
}

func TestCreateAndRemoveLines(t *testing.T) {
	f := hosttest.New()
	r := newRegistry(f)
	p := anchor()

	idA, err := r.CreateLine(p, 0, 2, "A", 5, 0)
	require.NoError(t, err)
	idB, err := r.CreateLine(p, 1, 2, "B", 5, 0)
	require.NoError(t, err)

	require.True(t, r.HasMarkers(p))
	require.Equal(t, []uuid.UUID{idA, idB}, r.Identities(p), "creation order is display order")
	require.Equal(t, 2, f.MarkerCount())

	removed := r.RemoveAll(p)
	require.Equal(t, []uuid.UUID{idA, idB}, removed)
	require.False(t, r.HasMarkers(p))
	require.Equal(t, 0, f.MarkerCount())

	require.Nil(t, r.RemoveAll(p), "second call returns nothing")
}

func TestCreateLineGeometry(t *testing.T) {
	f := hosttest.New()
	r := newRegistry(f)
	p := anchor()

	// Viewer due east of the anchor: text leans toward +X.
	id, err := r.CreateLine(p, 0, 3, "top", 4.5, 0.5)
	require.NoError(t, err)

	h, ok := f.ResolveMarker(p.World, id)
	require.True(t, ok)
	m := f.ByHandle[h]
	require.InDelta(t, 0.5+faceOff, m.X, 1e-9)
	require.Equal(t, 64.0+spacing, m.Y)
	require.Equal(t, 0.5, m.Z)
	require.Equal(t, "top", m.Text)
}

func TestRemoveAllSurvivesDespawnFailure(t *testing.T) {
	f := hosttest.New()
	r := newRegistry(f)
	p := anchor()

	_, err := r.CreateLine(p, 0, 1, "only", 0, 5)
	require.NoError(t, err)

	f.FailDespawn = true
	removed := r.RemoveAll(p)
	require.Len(t, removed, 1)
	require.False(t, r.HasMarkers(p), "durable record dropped even though despawn failed")
	require.Nil(t, r.RemoveAll(p))
}

func TestRemoveAllAfterRestart(t *testing.T) {
	f := hosttest.New()
	p := anchor()

	first := newRegistry(f)
	idA, err := first.CreateLine(p, 0, 2, "A", 0, 5)
	require.NoError(t, err)
	idB, err := first.CreateLine(p, 1, 2, "B", 0, 5)
	require.NoError(t, err)
	persisted := first.Snapshot()

	// New process: live handle table is empty, only the association is
	// restored. Identities resolve through the host.
	second := newRegistry(f)
	second.Replace(persisted)
	require.True(t, second.HasMarkers(p))

	removed := second.RemoveAll(p)
	require.Equal(t, []uuid.UUID{idA, idB}, removed)
	require.Equal(t, 0, f.MarkerCount(), "recovered via durable identities")
}

func TestRemoveAllStaleIdentity(t *testing.T) {
	f := hosttest.New()
	r := newRegistry(f)
	p := anchor()

	id, err := r.CreateLine(p, 0, 1, "gone", 0, 5)
	require.NoError(t, err)
	f.DropEntity(id) // external actor destroyed the entity out-of-band

	removed := r.RemoveAll(p)
	require.Equal(t, []uuid.UUID{id}, removed, "stale identity is processed, not retried")
	require.False(t, r.HasMarkers(p))
}

func TestSpawnAtAndDespawn(t *testing.T) {
	f := hosttest.New()
	r := newRegistry(f)

	id, err := r.SpawnAt("Alpha", 1.5, 70, 2.5, "ash's chest")
	require.NoError(t, err)
	require.Equal(t, 1, f.MarkerCount())
	require.False(t, r.HasMarkers(grid.Pos{World: "Alpha", X: 1, Y: 70, Z: 2}), "unlisted marker has no association")

	r.Despawn("Alpha", id)
	require.Equal(t, 0, f.MarkerCount())

	r.Despawn("Alpha", uuid.Nil) // no-op
	r.Despawn("Alpha", uuid.New())
}

func TestOnChangeMarksDirty(t *testing.T) {
	f := hosttest.New()
	r := newRegistry(f)
	dirty := 0
	r.OnChange(func() { dirty++ })
	p := anchor()

	_, err := r.CreateLine(p, 0, 1, "x", 0, 5)
	require.NoError(t, err)
	r.RemoveAll(p)
	require.Equal(t, 2, dirty)

	r.Replace(nil)
	require.Equal(t, 2, dirty, "load must not mark the store dirty")
}
