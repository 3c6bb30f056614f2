package world

import (
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"worldsync.dev/internal/protocol"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var originSpawn = []protocol.Transform{{}}

func newTestWorld(t *testing.T, spawns []protocol.Transform) (*World, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	w, err := New(WorldConfig{
		TickRateHz:  64,
		SpawnPoints: spawns,
		Clock:       clock.Now,
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, clock
}

type testConn struct {
	ID  uint64
	Out chan []byte
}

func joinWith(t *testing.T, w *World, queue int) *testConn {
	t.Helper()
	out := make(chan []byte, queue)
	resp := make(chan JoinResponse, 1)
	w.handleJoin(JoinRequest{SessionID: "s", Out: out, Resp: resp})
	r := <-resp
	return &testConn{ID: r.PlayerID, Out: out}
}

func join(t *testing.T, w *World) *testConn {
	t.Helper()
	return joinWith(t, w, 64)
}

// drain returns every queued envelope without blocking.
func (c *testConn) drain(t *testing.T) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case b, ok := <-c.Out:
			if !ok {
				return out
			}
			env, err := protocol.DecodeEnvelope(b)
			if err != nil {
				t.Fatalf("decode %s: %v", b, err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func cmds(envs []protocol.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Cmd)
	}
	return out
}

func updateMsg(t *testing.T, from uint64, pkt protocol.UpdateComponentPacket) MessageEnvelope {
	t.Helper()
	b, err := json.Marshal(pkt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return MessageEnvelope{PlayerID: from, Msg: protocol.Envelope{Cmd: protocol.CmdUpdateComponent, Data: b}}
}

func posUpdate(id uint64, x, y, z float64) protocol.UpdateComponentPacket {
	return protocol.UpdateComponentPacket{
		ID: id,
		Transform: &protocol.TransformPatch{Pos: &protocol.Vec3Patch{
			X: protocol.Float(x), Y: protocol.Float(y), Z: protocol.Float(z),
		}},
	}
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := env.Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", env.Cmd, err)
	}
	return v
}
