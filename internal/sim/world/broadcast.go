package world

import (
	"sort"

	"worldsync.dev/internal/protocol"
)

// enqueue hands b to the connection's writer without blocking. A full queue
// marks the client for eviction; an evicted client receives nothing more.
func (w *World) enqueue(c *clientState, b []byte) bool {
	if c == nil || c.evicted {
		return false
	}
	select {
	case c.Out <- b:
		w.counters.messagesSent++
		w.counters.bytesSent += uint64(len(b))
		return true
	default:
		c.evicted = true
		w.evictions = append(w.evictions, c.PlayerID)
		return false
	}
}

func (w *World) send(c *clientState, t int64, cmd string, data any) int {
	b, err := protocol.Encode(t, cmd, data)
	if err != nil {
		w.log.Printf("warn: encode %s: %v", cmd, err)
		return 0
	}
	if !w.enqueue(c, b) {
		return 0
	}
	return len(b)
}

// broadcast sends one message to every open connection in player id order
// and returns the bytes queued and the number of recipients.
func (w *World) broadcast(t int64, cmd string, data any) (n int, recipients int) {
	b, err := protocol.Encode(t, cmd, data)
	if err != nil {
		w.log.Printf("warn: encode %s: %v", cmd, err)
		return 0, 0
	}
	for _, id := range w.clientIDs() {
		if w.enqueue(w.clients[id], b) {
			n += len(b)
			recipients++
		}
	}
	return n, recipients
}

func (w *World) clientIDs() []uint64 {
	ids := make([]uint64, 0, len(w.clients))
	for id := range w.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// flushEvictions disconnects every client whose queue overflowed. The
// disconnect broadcasts may overflow further queues, so loop until settled.
func (w *World) flushEvictions() {
	for len(w.evictions) > 0 {
		id := w.evictions[0]
		w.evictions = w.evictions[1:]
		w.counters.evictions++
		w.log.Printf("warn: player %d send queue full; disconnecting", id)
		w.disconnect(id, "send queue full")
	}
}
