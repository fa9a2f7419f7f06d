// Package service wires the resolver, lock index and marker registry into
// the inbound action flows: open attempts, lock/unlock, block breaks and
// sign text placement. Callers arrive on arbitrary goroutines; anything
// touching live entities is handed to the world executor.
package service

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"chestward.ai/internal/config"
	"chestward.ai/internal/grid"
	"chestward.ai/internal/host"
	"chestward.ai/internal/lock"
	"chestward.ai/internal/marker"
	"chestward.ai/internal/persistence/eventlog"
)

var (
	ErrNotLockable   = errors.New("not a lockable unit")
	ErrAlreadyLocked = errors.New("unit already locked")
)

// Sink receives audit entries. Both the JSONL writer and the sqlite index
// satisfy it; a failing sink is logged and never fails the action.
type Sink interface {
	Write(e eventlog.Entry) error
}

type Service struct {
	blocks   host.BlockQuery
	exec     host.Executor
	resolver *lock.Resolver
	locks    *lock.Index
	markers  *marker.Registry
	cfg      config.Config
	sinks    []Sink
}

func New(blocks host.BlockQuery, exec host.Executor, locks *lock.Index, markers *marker.Registry, cfg config.Config, sinks ...Sink) *Service {
	return &Service{
		blocks:   blocks,
		exec:     exec,
		resolver: lock.NewResolver(blocks),
		locks:    locks,
		markers:  markers,
		cfg:      cfg,
		sinks:    sinks,
	}
}

// CanOpen decides whether player may open the container at p. Unlocked,
// owned and bypassed containers are allowed. A denial is recorded to the
// audit sinks; world state is never touched.
func (s *Service) CanOpen(p grid.Pos, player uuid.UUID, bypass bool) (bool, *lock.Resource) {
	r, ok := s.locks.Get(p)
	if !ok {
		return true, nil
	}
	if r.OwnedBy(player) || bypass {
		return true, r
	}
	s.emit(eventlog.ActionDenyOpen, player, "", p, "owner "+r.OwnerName)
	return false, r
}

// AdjacentUnit resolves the lockable unit next to p, typically the
// container a sign at p guards. Reads live block state, so it must be
// invoked on p's world context.
func (s *Service) AdjacentUnit(p grid.Pos) []grid.Pos {
	return s.resolver.UnitNextTo(p)
}

// LockUnit locks the unit containing seed for owner and spawns the owner
// marker in front of the sign at signPos, on the near side away from the
// container. Must be invoked on the world context (it resolves the unit
// from live block state). Returns ErrAlreadyLocked when any cell of the
// unit is taken.
func (s *Service) LockUnit(owner uuid.UUID, ownerName string, seed, signPos grid.Pos) error {
	unit := s.resolver.Unit(seed)
	if len(unit) == 0 {
		return errors.Wrapf(ErrNotLockable, "%s", seed.Key())
	}
	for _, c := range unit {
		if s.locks.IsLocked(c) {
			return errors.Wrapf(ErrAlreadyLocked, "%s", c.Key())
		}
	}

	r := lock.NewResource(owner, ownerName, seed.World, unit)

	// The marker leans away from the container so it reads from the side
	// the sign faces. Pick the unit cell horizontally adjacent to the sign.
	dx, dz := 0, 0
	for _, c := range unit {
		if c.Y == signPos.Y && absInt(c.X-signPos.X)+absInt(c.Z-signPos.Z) == 1 {
			dx, dz = c.X-signPos.X, c.Z-signPos.Z
			break
		}
	}
	ox, oz := marker.AwayOffset(dx, dz, s.cfg.LockFaceOffset)
	x := float64(signPos.X) + 0.5 + ox
	y := float64(signPos.Y) + 0.5
	z := float64(signPos.Z) + 0.5 + oz
	text := ownerName + "'s chest"

	// Spawn before publishing the record: once Lock makes r visible the
	// flusher may serialize it from another goroutine, so the marker
	// identity has to be in place first.
	id, err := s.markers.SpawnAt(signPos.World, x, y, z, text)
	if err != nil {
		log.Printf("service: owner marker for %s failed to spawn: %v", r.Primary().Key(), err)
	} else {
		r.Marker = id
	}

	s.locks.Lock(r)
	s.emit(eventlog.ActionLock, owner, ownerName, r.Primary(), fmt.Sprintf("%d cell(s)", len(unit)))
	if err == nil {
		s.emit(eventlog.ActionMarkerCreate, owner, ownerName, signPos, text)
	}
	return nil
}

// UnlockAt removes the whole unit owning p and schedules despawn of its
// owner marker. A no-op when p is not locked.
func (s *Service) UnlockAt(actor uuid.UUID, actorName string, p grid.Pos) (*lock.Resource, bool) {
	r, ok := s.locks.Unlock(p)
	if !ok {
		return nil, false
	}
	if r.Marker != uuid.Nil {
		s.markers.Despawn(r.World, r.Marker)
	}
	s.emit(eventlog.ActionUnlock, actor, actorName, r.Primary(), "owner "+r.OwnerName)
	return r, true
}

// HandleSignBreak decides whether player may break the sign at p. A sign
// guarding someone else's locked unit is protected. When the break is
// allowed, the guarded unit is unlocked and the sign's text markers are
// removed. Must be invoked on the world context.
func (s *Service) HandleSignBreak(p grid.Pos, player uuid.UUID, bypass bool) bool {
	if unit := s.resolver.UnitNextTo(p); len(unit) > 0 {
		if r, ok := s.locks.Get(unit[0]); ok {
			if !r.OwnedBy(player) && !bypass {
				s.emit(eventlog.ActionDenyBreak, player, "", p, "sign guards "+r.OwnerName+"'s unit")
				return false
			}
			s.UnlockAt(player, r.OwnerName, unit[0])
		}
	}
	if ids := s.markers.RemoveAll(p); len(ids) > 0 {
		s.emit(eventlog.ActionMarkerRemove, player, "", p, fmt.Sprintf("%d line(s)", len(ids)))
	}
	return true
}

// HandleContainerBreak decides whether player may break the container at p.
// Breaking an owned or bypassed container also unlocks its unit, so no
// stale record survives a destructive edit.
func (s *Service) HandleContainerBreak(p grid.Pos, player uuid.UUID, bypass bool) bool {
	r, ok := s.locks.Get(p)
	if !ok {
		return true
	}
	if !r.OwnedBy(player) && !bypass {
		s.emit(eventlog.ActionDenyBreak, player, "", p, "owner "+r.OwnerName)
		return false
	}
	s.UnlockAt(player, r.OwnerName, p)
	return true
}

// CheckDetachedText runs after any block break at p: each horizontal
// neighbor holding marker text is re-verified on the world context and
// cleaned up if its sign is gone.
func (s *Service) CheckDetachedText(p grid.Pos) {
	for _, d := range [4][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 0, 1}, {0, 0, -1}} {
		n := p.Offset(d[0], d[1], d[2])
		if !s.markers.HasMarkers(n) {
			continue
		}
		s.exec.Submit(n.World, func() {
			if s.blocks.IsSign(n) {
				return
			}
			if ids := s.markers.RemoveAll(n); len(ids) > 0 {
				s.emit(eventlog.ActionMarkerRemove, uuid.Nil, "", n, fmt.Sprintf("detached, %d line(s)", len(ids)))
			}
		})
	}
}

// PlaceTextLines replaces the text markers at p with the submitted lines.
// Line three only shows when non-empty; otherwise the first two lines show
// when either is non-empty; an all-blank submission falls back to a default
// naming the author. Lines are clamped to the configured width. Spawning
// happens on the world context; the call itself never blocks.
func (s *Service) PlaceTextLines(p grid.Pos, authorName string, lines []string, viewerX, viewerZ float64) {
	limit := s.cfg.MaxLines
	if limit < 1 {
		limit = 1
	}
	padded := make([]string, limit)
	for i := 0; i < len(padded) && i < len(lines); i++ {
		padded[i] = clampLine(lines[i], s.cfg.MaxLineLen)
	}

	// Head is the lines shown when the last line is blank; with a limit of
	// one it collapses to just the first line.
	head := padded[:min(2, len(padded))]
	var chosen []string
	switch {
	case padded[len(padded)-1] != "":
		chosen = padded
	case nonBlank(head):
		chosen = head
	default:
		chosen = []string{clampLine(authorName+"'s sign", s.cfg.MaxLineLen)}
	}

	s.exec.Submit(p.World, func() {
		s.markers.RemoveAll(p)
		for i, text := range chosen {
			if _, err := s.markers.CreateLine(p, i, len(chosen), text, viewerX, viewerZ); err != nil {
				log.Printf("service: text line %d at %s failed to spawn: %v", i, p.Key(), err)
			}
		}
		s.emit(eventlog.ActionMarkerCreate, uuid.Nil, authorName, p, fmt.Sprintf("%d line(s)", len(chosen)))
	})
}

func (s *Service) emit(action string, actor uuid.UUID, actorName string, p grid.Pos, detail string) {
	if len(s.sinks) == 0 {
		return
	}
	e := eventlog.Entry{
		At:        time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		ActorName: actorName,
		World:     p.World,
		Pos:       [3]int{p.X, p.Y, p.Z},
		Detail:    detail,
	}
	if actor != uuid.Nil {
		e.Actor = actor.String()
	}
	for _, sink := range s.sinks {
		if err := sink.Write(e); err != nil {
			log.Printf("service: audit sink rejected %s event: %v", action, err)
		}
	}
}

func nonBlank(lines []string) bool {
	for _, l := range lines {
		if l != "" {
			return true
		}
	}
	return false
}

func clampLine(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
