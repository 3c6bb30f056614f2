package state

import (
	"sort"

	"worldsync.dev/internal/protocol"
)

// Baseline is the state every connected client has been told about: the
// snapshot taken at the last broadcast plus the joins, leaves, instantiates
// and destroys broadcast since then. New connections are seeded from it so
// that the next STATE_UPDATE applies cleanly on top.
type Baseline struct {
	players map[uint64]struct{}
	objects map[uint64]protocol.ObjectPacket
}

func NewBaseline() *Baseline {
	return &Baseline{
		players: map[uint64]struct{}{},
		objects: map[uint64]protocol.ObjectPacket{},
	}
}

// Reset replaces the baseline with snap.
func (b *Baseline) Reset(snap protocol.StatePacket) {
	b.players = make(map[uint64]struct{}, len(snap.Players))
	b.objects = make(map[uint64]protocol.ObjectPacket, len(snap.Objs))
	for _, p := range snap.Players {
		b.players[p.ID] = struct{}{}
	}
	for _, o := range snap.Objs {
		b.objects[o.ID] = o
	}
}

func (b *Baseline) AddPlayer(id uint64)    { b.players[id] = struct{}{} }
func (b *Baseline) RemovePlayer(id uint64) { delete(b.players, id) }

func (b *Baseline) PutObject(obj protocol.ObjectPacket) { b.objects[obj.ID] = obj }

func (b *Baseline) RemoveObjects(ids ...uint64) {
	for _, id := range ids {
		delete(b.objects, id)
	}
}

func (b *Baseline) Packet() protocol.StatePacket {
	out := protocol.StatePacket{
		Players: make([]protocol.PlayerPacket, 0, len(b.players)),
		Objs:    make([]protocol.ObjectPacket, 0, len(b.objects)),
	}
	for id := range b.players {
		out.Players = append(out.Players, protocol.PlayerPacket{ID: id})
	}
	for _, obj := range b.objects {
		out.Objs = append(out.Objs, obj)
	}
	sort.Slice(out.Players, func(i, j int) bool { return out.Players[i].ID < out.Players[j].ID })
	sort.Slice(out.Objs, func(i, j int) bool { return out.Objs[i].ID < out.Objs[j].ID })
	return out
}
