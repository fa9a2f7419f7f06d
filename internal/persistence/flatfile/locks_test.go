package flatfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chestward.ai/internal/grid"
	"chestward.ai/internal/lock"
)

var owner = uuid.MustParse("8d7f24a2-64fc-4ac8-a2ad-2e1b1b3b2a01")

func res(positions ...grid.Pos) *lock.Resource {
	return lock.NewResource(owner, "ash", "Alpha", positions)
}

func pos(x, y, z int) grid.Pos { return grid.Pos{World: "Alpha", X: x, Y: y, Z: z} }

func TestLockLineRoundTrip(t *testing.T) {
	r := res(pos(11, 5, 3), pos(10, 5, 3))
	r.Marker = uuid.MustParse("0c2d63f1-33b0-4f2e-97d5-5c4e9a2d61b7")

	got, err := ParseLockLine(EncodeLockLine(r))
	require.NoError(t, err)
	require.Equal(t, r.Owner, got.Owner)
	require.Equal(t, r.OwnerName, got.OwnerName)
	require.Equal(t, r.World, got.World)
	require.Equal(t, r.Marker, got.Marker)
	require.Equal(t, []grid.Pos{pos(10, 5, 3), pos(11, 5, 3)}, got.Positions, "positions sorted")
}

func TestLockLineNoMarker(t *testing.T) {
	r := res(pos(1, 2, 3))
	line := EncodeLockLine(r)
	require.Contains(t, line, "|Alpha||1,2,3")

	got, err := ParseLockLine(line)
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, got.Marker)
}

func TestLockLineLegacyFourColumns(t *testing.T) {
	line := owner.String() + "|ash|Alpha|10,5,3;11,5,3"
	got, err := ParseLockLine(line)
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, got.Marker)
	require.Equal(t, []grid.Pos{pos(10, 5, 3), pos(11, 5, 3)}, got.Positions)
}

func TestLockLineNullMarkerColumn(t *testing.T) {
	line := owner.String() + "|ash|Alpha|null|10,5,3"
	got, err := ParseLockLine(line)
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, got.Marker)
}

func TestLockLineMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"a|b",
		"not-a-uuid|ash|Alpha|10,5,3",
		owner.String() + "|ash|Alpha|bad-marker|10,5,3",
		owner.String() + "|ash|Alpha|10,5",
		owner.String() + "|ash|Alpha|x,y,z",
		owner.String() + "|ash|Alpha|1|2|3",
	} {
		_, err := ParseLockLine(line)
		require.Error(t, err, "line %q", line)
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	a := res(pos(10, 5, 3), pos(11, 5, 3))
	a.Marker = uuid.New()
	b := lock.NewResource(uuid.New(), "kim", "Beta", []grid.Pos{{World: "Beta", X: -4, Y: 0, Z: 9}})

	f := NewLockFile(dir, func() []*lock.Resource { return []*lock.Resource{a, b} })
	f.MarkDirty()
	require.NoError(t, f.Flush(false))

	loaded, err := NewLockFile(dir, nil).Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	ix := lock.NewIndex()
	ix.Replace(loaded)
	require.Equal(t, 2, ix.Count())
	got, ok := ix.Get(pos(11, 5, 3))
	require.True(t, ok)
	require.Equal(t, owner, got.Owner)
	require.Equal(t, a.Marker, got.Marker)
	require.True(t, got.Contains(pos(10, 5, 3)))
}

func TestLockFileLoadSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		"# header comment",
		"",
		owner.String() + "|ash|Alpha||10,5,3",
		"garbage line",
		owner.String() + "|ash|Alpha|10,6,3", // legacy, valid
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, locksFileName), []byte(content), 0o644))

	loaded, err := NewLockFile(dir, nil).Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2, "malformed line skipped, rest loads")
}

func TestLockFileLoadMissingFile(t *testing.T) {
	loaded, err := NewLockFile(t.TempDir(), nil).Load()
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestFlushDirtyContract(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	f := NewLockFile(dir, func() []*lock.Resource {
		calls++
		return nil
	})

	require.NoError(t, f.Flush(false))
	require.Zero(t, calls, "clean flush is a no-op")

	f.MarkDirty()
	require.NoError(t, f.Flush(false))
	require.Equal(t, 1, calls)
	require.False(t, f.Dirty())

	require.NoError(t, f.Flush(true))
	require.Equal(t, 2, calls, "forced flush writes even when clean")
}

func TestFlushFailureRearmsDirty(t *testing.T) {
	dir := t.TempDir()
	f := NewLockFile(dir, func() []*lock.Resource { return nil })
	// Make the target path unwritable by turning it into a directory.
	require.NoError(t, os.Mkdir(f.Path(), 0o755))

	f.MarkDirty()
	require.Error(t, f.Flush(false))
	require.True(t, f.Dirty(), "failed write re-arms the dirty flag")

	require.NoError(t, os.Remove(f.Path()))
	require.NoError(t, f.Flush(false), "retry succeeds after the obstacle is gone")
	require.False(t, f.Dirty())
}
