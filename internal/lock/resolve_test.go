package lock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chestward.ai/internal/grid"
	"chestward.ai/internal/host/hosttest"
)

func TestUnitSingle(t *testing.T) {
	f := hosttest.New()
	seed := pos(10, 5, 3)
	f.SetContainer(seed, 0)

	r := NewResolver(f)
	require.Equal(t, []grid.Pos{seed}, r.Unit(seed))
}

func TestUnitMergeSymmetric(t *testing.T) {
	f := hosttest.New()
	a, b := pos(10, 5, 3), pos(11, 5, 3)
	f.SetContainer(a, 0)
	f.SetContainer(b, 0)

	r := NewResolver(f)
	ua := r.Unit(a)
	ub := r.Unit(b)
	require.Len(t, ua, 2)
	require.Len(t, ub, 2)
	require.ElementsMatch(t, ua, ub, "resolving from either cell yields the same set")
}

func TestUnitOrientationMismatch(t *testing.T) {
	f := hosttest.New()
	a, b := pos(10, 5, 3), pos(11, 5, 3)
	f.SetContainer(a, 0)
	f.SetContainer(b, 90)

	r := NewResolver(f)
	require.Equal(t, []grid.Pos{a}, r.Unit(a))
}

func TestUnitNeighborOrderFirstMatchWins(t *testing.T) {
	f := hosttest.New()
	seed := pos(0, 0, 0)
	f.SetContainer(seed, 0)
	f.SetContainer(pos(-1, 0, 0), 0) // -X candidate
	f.SetContainer(pos(1, 0, 0), 0)  // +X candidate, checked first

	r := NewResolver(f)
	require.Equal(t, []grid.Pos{seed, pos(1, 0, 0)}, r.Unit(seed))
}

func TestUnitVerticalNeighborIgnored(t *testing.T) {
	f := hosttest.New()
	seed := pos(0, 0, 0)
	f.SetContainer(seed, 0)
	f.SetContainer(pos(0, 1, 0), 0)

	r := NewResolver(f)
	require.Equal(t, []grid.Pos{seed}, r.Unit(seed))
}

func TestUnitUnloadedNeighborSkipped(t *testing.T) {
	f := hosttest.New()
	seed := pos(0, 0, 0)
	n := pos(1, 0, 0)
	f.SetContainer(seed, 0)
	f.SetContainer(n, 0)
	f.Unloaded[n] = true

	r := NewResolver(f)
	require.Equal(t, []grid.Pos{seed}, r.Unit(seed), "unloaded neighbor degrades to no merge")
}

func TestUnitNeighborWithoutOrientationSkipped(t *testing.T) {
	f := hosttest.New()
	seed := pos(0, 0, 0)
	n := pos(1, 0, 0)
	f.SetContainer(seed, 0)
	f.Blocks[n] = hosttest.Block{Lockable: true, NoYaw: true}

	r := NewResolver(f)
	require.Equal(t, []grid.Pos{seed}, r.Unit(seed))
}

func TestUnitSeedInvalid(t *testing.T) {
	f := hosttest.New()
	seed := pos(0, 0, 0)

	r := NewResolver(f)
	require.Nil(t, r.Unit(seed), "non-lockable seed")

	f.SetContainer(seed, 0)
	f.Unloaded[seed] = true
	require.Nil(t, r.Unit(seed), "unloaded seed chunk")
}

func TestUnitSeedWithoutOrientationIsSingleton(t *testing.T) {
	f := hosttest.New()
	seed := pos(0, 0, 0)
	f.Blocks[seed] = hosttest.Block{Lockable: true, NoYaw: true}
	f.SetContainer(pos(1, 0, 0), 0)

	r := NewResolver(f)
	require.Equal(t, []grid.Pos{seed}, r.Unit(seed))
}

func TestUnitNextTo(t *testing.T) {
	f := hosttest.New()
	sign := pos(5, 5, 5)
	f.SetSign(sign)
	a := pos(6, 5, 5) // +X of the sign
	b := pos(7, 5, 5)
	f.SetContainer(a, 0)
	f.SetContainer(b, 0)

	r := NewResolver(f)
	unit := r.UnitNextTo(sign)
	require.ElementsMatch(t, []grid.Pos{a, b}, unit)

	require.Nil(t, r.UnitNextTo(pos(50, 5, 5)), "nothing adjacent")
}
