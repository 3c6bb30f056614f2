package state

import (
	"fmt"
	"sort"

	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/delta"
)

type Player struct {
	ID    uint64
	Owned []uint64
}

func (p *Player) owns(id uint64) bool {
	for _, o := range p.Owned {
		if o == id {
			return true
		}
	}
	return false
}

func (p *Player) disown(id uint64) {
	for i, o := range p.Owned {
		if o == id {
			p.Owned = append(p.Owned[:i], p.Owned[i+1:]...)
			return
		}
	}
}

// Store is the authoritative mapping of players and entities.
// It has exactly one writer (the world loop) and does no locking.
type Store struct {
	players map[uint64]*Player
	objects map[uint64]protocol.ObjectPacket

	spawns   []protocol.Transform
	spawnIdx int

	nextPlayer uint64
	nextObject uint64
}

// New creates an empty store. Spawn points are used round-robin by SpawnPlayerEntity.
func New(spawns []protocol.Transform) *Store {
	s := &Store{
		players: map[uint64]*Player{},
		objects: map[uint64]protocol.ObjectPacket{},
		spawns:  append([]protocol.Transform(nil), spawns...),
	}
	if len(s.spawns) == 0 {
		s.spawns = []protocol.Transform{{}}
	}
	return s
}

// CreatePlayer allocates a new player id. Ids are monotonically increasing
// and never reused.
func (s *Store) CreatePlayer() Player {
	s.nextPlayer++
	p := &Player{ID: s.nextPlayer}
	s.players[p.ID] = p
	return *p
}

// RemovePlayer deletes the player and returns the ids it owned. The owned
// entities are left in place; callers remove them with RemoveEntity.
func (s *Store) RemovePlayer(id uint64) (owned []uint64, ok bool) {
	p, ok := s.players[id]
	if !ok {
		return nil, false
	}
	delete(s.players, id)
	return append([]uint64(nil), p.Owned...), true
}

func (s *Store) CreateEntity(typ protocol.ObjectType, ownerID uint64, tr protocol.Transform) (protocol.ObjectPacket, error) {
	owner, ok := s.players[ownerID]
	if !ok {
		return protocol.ObjectPacket{}, fmt.Errorf("create entity for player %d: %w", ownerID, protocol.ErrNotFound)
	}
	s.nextObject++
	obj := protocol.ObjectPacket{
		Type:      typ,
		ID:        s.nextObject,
		OwnerID:   ownerID,
		Transform: tr,
	}
	s.objects[obj.ID] = obj
	owner.Owned = append(owner.Owned, obj.ID)
	return obj, nil
}

// SpawnPlayerEntity creates the avatar entity for a player at the next spawn
// point. The spawn index advances on every call regardless of departures.
func (s *Store) SpawnPlayerEntity(ownerID uint64) (protocol.ObjectPacket, error) {
	tr := s.spawns[s.spawnIdx]
	obj, err := s.CreateEntity(protocol.ObjectPlayer, ownerID, tr)
	if err != nil {
		return obj, err
	}
	s.spawnIdx = (s.spawnIdx + 1) % len(s.spawns)
	return obj, nil
}

// RemoveEntity deletes the given entities and returns the ids that existed.
func (s *Store) RemoveEntity(ids ...uint64) []uint64 {
	removed := make([]uint64, 0, len(ids))
	for _, id := range ids {
		obj, ok := s.objects[id]
		if !ok {
			continue
		}
		delete(s.objects, id)
		if p := s.players[obj.OwnerID]; p != nil {
			p.disown(id)
		}
		removed = append(removed, id)
	}
	return removed
}

// ApplyOwnerUpdate merges an owner-authored patch into an entity and returns
// the leaves that actually changed (nil when nothing did).
func (s *Store) ApplyOwnerUpdate(entityID, callerID uint64, patch protocol.ObjectPatch) (*protocol.ObjectPatch, error) {
	obj, ok := s.objects[entityID]
	if !ok {
		return nil, fmt.Errorf("update entity %d: %w", entityID, protocol.ErrNotFound)
	}
	if obj.OwnerID != callerID {
		return nil, fmt.Errorf("update entity %d by player %d: %w", entityID, callerID, protocol.ErrUnauthorized)
	}
	d := delta.DiffObject(obj, patch)
	s.objects[entityID] = delta.ApplyObject(obj, &patch)
	return d, nil
}

func (s *Store) Entity(id uint64) (protocol.ObjectPacket, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

func (s *Store) Player(id uint64) (Player, bool) {
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return Player{ID: p.ID, Owned: append([]uint64(nil), p.Owned...)}, true
}

func (s *Store) HasPlayer(id uint64) bool {
	_, ok := s.players[id]
	return ok
}

// Owns reports whether player owns entity id.
func (s *Store) Owns(player, id uint64) bool {
	p := s.players[player]
	return p != nil && p.owns(id)
}

func (s *Store) NumPlayers() int { return len(s.players) }
func (s *Store) NumObjects() int { return len(s.objects) }

// Snapshot returns a full copy of the state, ordered by id.
func (s *Store) Snapshot() protocol.StatePacket {
	out := protocol.StatePacket{
		Players: make([]protocol.PlayerPacket, 0, len(s.players)),
		Objs:    make([]protocol.ObjectPacket, 0, len(s.objects)),
	}
	for id := range s.players {
		out.Players = append(out.Players, protocol.PlayerPacket{ID: id})
	}
	for _, obj := range s.objects {
		out.Objs = append(out.Objs, obj)
	}
	sort.Slice(out.Players, func(i, j int) bool { return out.Players[i].ID < out.Players[j].ID })
	sort.Slice(out.Objs, func(i, j int) bool { return out.Objs[i].ID < out.Objs[j].ID })
	return out
}
