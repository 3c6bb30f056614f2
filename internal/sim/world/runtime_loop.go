package world

import (
	"context"
	"errors"
	"time"

	"worldsync.dev/internal/protocol"
)

// Run owns the world until ctx is cancelled or Stop is called. Inbound
// messages, joins and leaves are handled as they arrive; the ticker flushes
// the accumulated diff. Nothing else touches world state, so handlers and the
// tick body never overlap.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			w.handleJoin(req)
		case id := <-w.leave:
			w.handleLeave(id, "closed")
		case env := <-w.inbox:
			w.handleMessage(env)
		case resp := <-w.stateReq:
			resp <- w.baseline.Packet()
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

type StateSnapshot struct {
	Tick  uint64               `json:"tick"`
	State protocol.StatePacket `json:"state"`
}

// RequestState returns the last-broadcast baseline, read on the world loop.
func (w *World) RequestState(ctx context.Context) (snap StateSnapshot, err error) {
	resp := make(chan protocol.StatePacket, 1)
	select {
	case w.stateReq <- resp:
	case <-ctx.Done():
		return snap, ctx.Err()
	case <-w.stop:
		return snap, errors.New("world stopped")
	}
	select {
	case p := <-resp:
		return StateSnapshot{Tick: w.CurrentTick(), State: p}, nil
	case <-ctx.Done():
		return snap, ctx.Err()
	}
}

// step runs one tick: broadcast the running diff if non-empty, promote the
// authoritative state to the new baseline, reset the diff.
func (w *World) step() {
	start := time.Now()
	tick := w.tick.Add(1)
	t := w.elapsed()

	if !w.running.IsEmpty() {
		diff := w.running
		n, recipients := w.broadcast(t, protocol.CmdStateUpdate, protocol.StateUpdatePacket{Diff: diff})
		w.baseline.Reset(w.store.Snapshot())
		w.running = protocol.Diff{}
		w.counters.broadcasts++

		w.pendingLog.Diff = diff
		w.pendingLog.Bytes += n
		w.pendingLog.Recipients = recipients
	}
	w.flushTickLog(tick, t)
	w.flushEvictions()

	w.publishMetrics(float64(time.Since(start).Microseconds()) / 1000.0)
}

// StepOnce applies joins, then messages, then leaves, and runs one tick,
// all synchronously. It must not be called while Run is active; it exists
// for deterministic tests and tools.
func (w *World) StepOnce(joins []JoinRequest, msgs []MessageEnvelope, leaves []uint64) uint64 {
	for _, req := range joins {
		w.handleJoin(req)
	}
	for _, env := range msgs {
		w.handleMessage(env)
	}
	for _, id := range leaves {
		w.handleLeave(id, "closed")
	}
	w.step()
	return w.tick.Load()
}

func (w *World) flushTickLog(tick uint64, t int64) {
	entry := w.pendingLog
	w.pendingLog = TickLogEntry{}
	if w.tickLogger == nil || entry.isEmpty() {
		return
	}
	entry.Tick = tick
	entry.T = t
	if err := w.tickLogger.WriteTick(entry); err != nil {
		w.log.Printf("warn: tick log: %v", err)
	}
}

func (w *World) closeAll() {
	for id, c := range w.clients {
		delete(w.clients, id)
		close(c.Out)
	}
}
