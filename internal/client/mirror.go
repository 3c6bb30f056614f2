package client

import (
	"fmt"
	"log"
	"sort"

	"worldsync.dev/internal/protocol"
)

type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusSynced
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusSynced:
		return "synced"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Object is a mirrored networked entity.
type Object struct {
	ID         uint64
	Type       protocol.ObjectType
	OwnerID    uint64
	Owner      bool
	Components []Component
}

func (o *Object) Transform() (*NetworkTransform, bool) {
	for _, c := range o.Components {
		if nt, ok := c.(*NetworkTransform); ok {
			return nt, true
		}
	}
	return nil, false
}

// Mirror is the client's local projection of server state. It is not safe
// for concurrent use; a connection feeds it from a single goroutine.
type Mirror struct {
	log     *log.Logger
	spawner Spawner
	hooks   Hooks

	status   Status
	playerID uint64
	players  map[uint64]struct{}
	objects  map[uint64]*Object

	busy    bool
	pending []protocol.Envelope
}

type MirrorConfig struct {
	Logger  *log.Logger
	Spawner Spawner
	Hooks   Hooks
}

func NewMirror(cfg MirrorConfig) *Mirror {
	m := &Mirror{
		log:     cfg.Logger,
		spawner: cfg.Spawner,
		hooks:   cfg.Hooks,
		players: map[uint64]struct{}{},
		objects: map[uint64]*Object{},
	}
	if m.log == nil {
		m.log = log.Default()
	}
	if m.spawner == nil {
		m.spawner = DefaultSpawner
	}
	if m.hooks == nil {
		m.hooks = NopHooks{}
	}
	return m
}

func (m *Mirror) Status() Status   { return m.status }
func (m *Mirror) PlayerID() uint64 { return m.playerID }

// Opened and Closed track the transport. A closed mirror keeps its contents
// until the next CONNECT replaces them.
func (m *Mirror) Opened() { m.status = StatusConnecting }
func (m *Mirror) Closed() { m.status = StatusDisconnected }

func (m *Mirror) Object(id uint64) (*Object, bool) {
	o, ok := m.objects[id]
	return o, ok
}

func (m *Mirror) HasPlayer(id uint64) bool {
	_, ok := m.players[id]
	return ok
}

// HandleRaw decodes one wire message and handles it.
func (m *Mirror) HandleRaw(b []byte) error {
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		return err
	}
	m.Handle(env)
	return nil
}

// Handle processes one server message. Messages arriving while another is
// being processed, including a snapshot, are queued and handled in arrival
// order once it completes.
func (m *Mirror) Handle(env protocol.Envelope) {
	m.pending = append(m.pending, env)
	if m.busy {
		return
	}
	m.busy = true
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending[0] = protocol.Envelope{}
		m.pending = m.pending[1:]
		m.dispatch(next)
	}
	m.pending = nil
	m.busy = false
}

func (m *Mirror) dispatch(env protocol.Envelope) {
	if err := m.apply(env); err != nil {
		m.log.Printf("warn: %s: %v", env.Cmd, err)
	}
}

func (m *Mirror) apply(env protocol.Envelope) error {
	switch env.Cmd {
	case protocol.CmdConnect:
		var pkt protocol.ConnectPacket
		if err := env.Decode(&pkt); err != nil {
			return err
		}
		m.playerID = pkt.ID
		m.applySnapshot(pkt.State, env.T)
	case protocol.CmdSync:
		var pkt protocol.SyncPacket
		if err := env.Decode(&pkt); err != nil {
			return err
		}
		m.applySnapshot(pkt.State, env.T)
	case protocol.CmdJoin:
		var pkt protocol.JoinPacket
		if err := env.Decode(&pkt); err != nil {
			return err
		}
		m.addPlayer(pkt.ID)
	case protocol.CmdLeave:
		var pkt protocol.LeavePacket
		if err := env.Decode(&pkt); err != nil {
			return err
		}
		m.removePlayer(pkt.ID)
	case protocol.CmdInstantiate:
		var pkt protocol.InstantiatePacket
		if err := env.Decode(&pkt); err != nil {
			return err
		}
		m.instantiate(pkt.Obj, env.T)
	case protocol.CmdDestroy:
		var pkt protocol.DestroyPacket
		if err := env.Decode(&pkt); err != nil {
			return err
		}
		for _, id := range pkt.IDs {
			m.destroy(id)
		}
	case protocol.CmdStateUpdate:
		var pkt protocol.StateUpdatePacket
		if err := env.Decode(&pkt); err != nil {
			return err
		}
		m.applyDiff(pkt.Diff, env.T)
	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, env.Cmd)
	}
	return nil
}

// applySnapshot replaces the mirror with state. Players and objects missing
// from the snapshot are removed.
func (m *Mirror) applySnapshot(st protocol.StatePacket, t int64) {
	seenPlayers := make(map[uint64]struct{}, len(st.Players))
	for _, p := range st.Players {
		seenPlayers[p.ID] = struct{}{}
		m.addPlayer(p.ID)
	}
	seenObjs := make(map[uint64]struct{}, len(st.Objs))
	for _, obj := range st.Objs {
		seenObjs[obj.ID] = struct{}{}
		m.instantiate(obj, t)
	}
	for _, id := range sortedKeys(m.objects) {
		if _, ok := seenObjs[id]; !ok {
			m.destroy(id)
		}
	}
	for _, id := range sortedKeys(m.players) {
		if _, ok := seenPlayers[id]; !ok {
			m.removePlayer(id)
		}
	}
	m.status = StatusSynced
}

func (m *Mirror) addPlayer(id uint64) {
	if _, ok := m.players[id]; ok {
		return
	}
	m.players[id] = struct{}{}
	m.hooks.OnPlayerJoin(id)
}

func (m *Mirror) removePlayer(id uint64) {
	if _, ok := m.players[id]; !ok {
		return
	}
	delete(m.players, id)
	m.hooks.OnPlayerLeave(id)
}

// instantiate creates the object if absent, then hands the packet to each of
// its components. Ownership is re-evaluated on every call.
func (m *Mirror) instantiate(pkt protocol.ObjectPacket, t int64) {
	if pkt.ID == 0 {
		m.log.Printf("warn: object of type %s has no id; skipping", pkt.Type)
		return
	}
	obj, existed := m.objects[pkt.ID]
	if !existed {
		comps, ok := m.spawner.Spawn(pkt.Type)
		if !ok {
			m.log.Printf("warn: cannot instantiate object %d of unknown type %s", pkt.ID, pkt.Type)
			return
		}
		obj = &Object{ID: pkt.ID, Type: pkt.Type, Components: comps}
		m.objects[pkt.ID] = obj
	}
	obj.OwnerID = pkt.OwnerID
	obj.Owner = m.playerID != 0 && pkt.OwnerID == m.playerID
	for _, c := range obj.Components {
		c.SetOwner(obj.Owner)
		c.OnSync(pkt, t)
	}
	if !existed {
		m.hooks.OnInstantiate(obj)
	}
}

func (m *Mirror) destroy(id uint64) {
	obj, ok := m.objects[id]
	if !ok {
		return
	}
	delete(m.objects, id)
	m.hooks.OnDestroy(obj)
}

func (m *Mirror) applyDiff(d protocol.Diff, t int64) {
	ids := make([]uint64, 0, len(d.Objs))
	for id := range d.Objs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		obj, ok := m.objects[id]
		if !ok {
			m.log.Printf("warn: %v: state update for object %d", protocol.ErrNotFound, id)
			continue
		}
		for _, c := range obj.Components {
			c.OnStateUpdate(d.Objs[id], t)
		}
	}
}

// OwnedChanges collects an update for every owned transform that moved since
// the last call.
func (m *Mirror) OwnedChanges() []protocol.UpdateComponentPacket {
	var out []protocol.UpdateComponentPacket
	for _, id := range sortedKeys(m.objects) {
		obj := m.objects[id]
		if !obj.Owner {
			continue
		}
		nt, ok := obj.Transform()
		if !ok {
			continue
		}
		if p, changed := nt.takeChange(); changed {
			out = append(out, protocol.UpdateComponentPacket{ID: id, Transform: p})
		}
	}
	return out
}

// State renders the mirror in snapshot form. Objects without a transform
// component report the zero transform.
func (m *Mirror) State() protocol.StatePacket {
	st := protocol.StatePacket{
		Players: make([]protocol.PlayerPacket, 0, len(m.players)),
		Objs:    make([]protocol.ObjectPacket, 0, len(m.objects)),
	}
	for _, id := range sortedKeys(m.players) {
		st.Players = append(st.Players, protocol.PlayerPacket{ID: id})
	}
	for _, id := range sortedKeys(m.objects) {
		obj := m.objects[id]
		pkt := protocol.ObjectPacket{Type: obj.Type, ID: obj.ID, OwnerID: obj.OwnerID}
		if nt, ok := obj.Transform(); ok {
			pkt.Transform = nt.Value()
		}
		st.Objs = append(st.Objs, pkt)
	}
	return st
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
