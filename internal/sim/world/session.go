package world

import (
	"fmt"
	"time"

	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/delta"
)

func (w *World) handleJoin(req JoinRequest) {
	defer w.flushEvictions()

	t := w.elapsed()
	p := w.store.CreatePlayer()
	c := &clientState{
		PlayerID:   p.ID,
		SessionID:  req.SessionID,
		RemoteAddr: req.RemoteAddr,
		Out:        req.Out,
	}
	w.clients[p.ID] = c
	if req.Resp != nil {
		req.Resp <- JoinResponse{PlayerID: p.ID}
	}

	// The newcomer gets the last-broadcast baseline, not mid-tick state; the
	// next STATE_UPDATE is computed against that same baseline.
	w.send(c, t, protocol.CmdConnect, protocol.ConnectPacket{ID: p.ID, State: w.baseline.Packet()})

	w.baseline.AddPlayer(p.ID)
	w.broadcast(t, protocol.CmdJoin, protocol.JoinPacket{ID: p.ID})
	w.pendingLog.Joins = append(w.pendingLog.Joins, p.ID)

	obj, err := w.store.SpawnPlayerEntity(p.ID)
	if err != nil {
		w.log.Printf("warn: spawn for player %d: %v", p.ID, err)
		return
	}
	w.baseline.PutObject(obj)
	w.broadcast(t, protocol.CmdInstantiate, protocol.InstantiatePacket{Obj: obj})
	w.pendingLog.Spawned = append(w.pendingLog.Spawned, obj)

	w.writeSession(SessionEntry{
		Kind:       "connect",
		SessionID:  c.SessionID,
		PlayerID:   p.ID,
		RemoteAddr: c.RemoteAddr,
		T:          t,
	})
	w.log.Printf("player %d connected session=%s entity=%d", p.ID, c.SessionID, obj.ID)
}

func (w *World) handleLeave(playerID uint64, reason string) {
	w.disconnect(playerID, reason)
	w.flushEvictions()
}

// disconnect removes the player and every entity it owns, then tells the
// remaining connections. Unknown or already removed players are a no-op.
func (w *World) disconnect(playerID uint64, reason string) {
	t := w.elapsed()
	if c, ok := w.clients[playerID]; ok {
		delete(w.clients, playerID)
		close(c.Out)
		w.writeSession(SessionEntry{
			Kind:       "disconnect",
			SessionID:  c.SessionID,
			PlayerID:   playerID,
			RemoteAddr: c.RemoteAddr,
			Reason:     reason,
			T:          t,
		})
	}

	owned, ok := w.store.RemovePlayer(playerID)
	if !ok {
		return
	}
	removed := w.store.RemoveEntity(owned...)
	for _, id := range removed {
		delta.Forget(&w.running, id)
	}
	w.baseline.RemovePlayer(playerID)
	w.baseline.RemoveObjects(removed...)

	w.broadcast(t, protocol.CmdLeave, protocol.LeavePacket{ID: playerID})
	w.pendingLog.Leaves = append(w.pendingLog.Leaves, playerID)
	if len(removed) > 0 {
		w.broadcast(t, protocol.CmdDestroy, protocol.DestroyPacket{IDs: removed})
		w.pendingLog.Destroyed = append(w.pendingLog.Destroyed, removed...)
	}
	w.log.Printf("player %d disconnected (%s) destroyed=%v", playerID, reason, removed)
}

func (w *World) handleMessage(env MessageEnvelope) {
	defer w.flushEvictions()

	c, ok := w.clients[env.PlayerID]
	if !ok {
		return
	}
	switch env.Msg.Cmd {
	case protocol.CmdSyncRequest:
		w.send(c, w.elapsed(), protocol.CmdSync, protocol.SyncPacket{State: w.baseline.Packet()})
	case protocol.CmdUpdateComponent:
		var pkt protocol.UpdateComponentPacket
		if err := env.Msg.Decode(&pkt); err != nil {
			w.reject(env.PlayerID, err)
			return
		}
		if err := w.applyUpdate(env.PlayerID, pkt); err != nil {
			w.reject(env.PlayerID, err)
		}
	default:
		w.reject(env.PlayerID, fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, env.Msg.Cmd))
	}
}

// applyUpdate diffs the incoming components against current state, folds the
// diff into the running tick diff and merges the values into the entity.
func (w *World) applyUpdate(playerID uint64, pkt protocol.UpdateComponentPacket) error {
	if len(pkt.Unknown) > 0 {
		w.log.Printf("player %d: ignoring unknown components %v on entity %d", playerID, pkt.Unknown, pkt.ID)
	}
	d, err := w.store.ApplyOwnerUpdate(pkt.ID, playerID, pkt.Patch())
	if err != nil {
		return err
	}
	delta.Accumulate(&w.running, pkt.ID, d)
	w.counters.updatesApplied++
	return nil
}

// reject drops a message. The sender is never told why.
func (w *World) reject(playerID uint64, err error) {
	code := protocol.Code(err)
	w.counters.reject(code)
	w.log.Printf("warn: player %d: %s: %v", playerID, code, err)
}

func (w *World) writeSession(e SessionEntry) {
	if w.sessionLogger == nil {
		return
	}
	e.At = w.now().UTC().Format(time.RFC3339Nano)
	if err := w.sessionLogger.WriteSession(e); err != nil {
		w.log.Printf("warn: session log: %v", err)
	}
}
