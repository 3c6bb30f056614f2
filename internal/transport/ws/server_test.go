package ws

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/world"
)

func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	w, err := world.New(world.WorldConfig{TickRateHz: 100, SpawnPoints: []protocol.Transform{{}}}, logger)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	s := NewServer(w, logger, opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return env
}

// readUntil skips messages until one with cmd arrives.
func readUntil(t *testing.T, conn *websocket.Conn, cmd string) protocol.Envelope {
	t.Helper()
	for i := 0; i < 32; i++ {
		if env := read(t, conn); env.Cmd == cmd {
			return env
		}
	}
	t.Fatalf("no %s received", cmd)
	return protocol.Envelope{}
}

func sendUpdate(t *testing.T, conn *websocket.Conn, id uint64, x float64) {
	t.Helper()
	b, err := protocol.Encode(0, protocol.CmdUpdateComponent, protocol.UpdateComponentPacket{
		ID:        id,
		Transform: &protocol.TransformPatch{Pos: &protocol.Vec3Patch{X: protocol.Float(x)}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServer_JoinUpdateLeave(t *testing.T) {
	s, url := startServer(t, Options{})

	a := dial(t, url)
	connect := read(t, a)
	if connect.Cmd != protocol.CmdConnect {
		t.Fatalf("first message %s", connect.Cmd)
	}
	var cp protocol.ConnectPacket
	if err := connect.Decode(&cp); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := read(t, a).Cmd; got != protocol.CmdJoin {
		t.Fatalf("second message %s", got)
	}
	inst := read(t, a)
	var ip protocol.InstantiatePacket
	if err := inst.Decode(&ip); err != nil || ip.Obj.OwnerID != cp.ID {
		t.Fatalf("instantiate=%+v err=%v", ip, err)
	}

	sendUpdate(t, a, ip.Obj.ID, 2.5)
	su := readUntil(t, a, protocol.CmdStateUpdate)
	var sp protocol.StateUpdatePacket
	if err := su.Decode(&sp); err != nil {
		t.Fatalf("state update: %v", err)
	}
	if p := sp.Diff.Objs[ip.Obj.ID]; p == nil || *p.Transform.Pos.X != 2.5 {
		t.Fatalf("diff=%+v", sp.Diff)
	}

	b := dial(t, url)
	var bcp protocol.ConnectPacket
	if err := read(t, b).Decode(&bcp); err != nil {
		t.Fatalf("connect b: %v", err)
	}
	if len(bcp.State.Objs) != 1 || bcp.State.Objs[0].Transform.Pos.X != 2.5 {
		t.Fatalf("b snapshot=%+v", bcp.State)
	}

	_ = a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = a.Close()

	leave := readUntil(t, b, protocol.CmdLeave)
	var lp protocol.LeavePacket
	if err := leave.Decode(&lp); err != nil || lp.ID != cp.ID {
		t.Fatalf("leave=%+v err=%v", lp, err)
	}
	destroy := read(t, b)
	var dp protocol.DestroyPacket
	if err := destroy.Decode(&dp); err != nil || len(dp.IDs) != 1 || dp.IDs[0] != ip.Obj.ID {
		t.Fatalf("destroy=%+v err=%v", dp, err)
	}

	if st := s.Stats(); st.Accepted != 2 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestServer_MalformedAndRateLimited(t *testing.T) {
	s, url := startServer(t, Options{UpdatesPerSecond: 0.001, UpdateBurst: 1})
	a := dial(t, url)
	read(t, a)
	read(t, a)
	var ip protocol.InstantiatePacket
	if err := read(t, a).Decode(&ip); err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	sendUpdate(t, a, ip.Obj.ID, 1)
	sendUpdate(t, a, ip.Obj.ID, 2)
	sendUpdate(t, a, ip.Obj.ID, 3)

	// The one admitted update is broadcast; the connection stays open.
	su := readUntil(t, a, protocol.CmdStateUpdate)
	var sp protocol.StateUpdatePacket
	if err := su.Decode(&sp); err != nil {
		t.Fatalf("state update: %v", err)
	}
	if x := *sp.Diff.Objs[ip.Obj.ID].Transform.Pos.X; x != 1 {
		t.Fatalf("x=%v", x)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		st := s.Stats()
		if st.Malformed == 1 && st.RateLimited == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats=%+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
