package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/world"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	now := time.Date(2025, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for hour, want := range map[string]int{"2025-03-01-10": 1, "2025-03-01-11": 2} {
		var got []int
		err := ReadJSONL(filepath.Join(dir, "x-"+hour+".jsonl.zst"), func(line []byte) error {
			var v map[string]int
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			got = append(got, v["n"])
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", hour, err)
		}
		if len(got) != 1 || got[0] != want {
			t.Fatalf("%s: got %v want [%d]", hour, got, want)
		}
	}
}

func TestTickLogger_ReadTicks(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)

	entries := []world.TickLogEntry{
		{Tick: 1, Joins: []uint64{1}, Spawned: []protocol.ObjectPacket{{Type: protocol.ObjectPlayer, ID: 1, OwnerID: 1}}},
		{Tick: 2, Diff: protocol.Diff{Objs: map[uint64]*protocol.ObjectPatch{
			1: {Transform: &protocol.TransformPatch{Pos: &protocol.Vec3Patch{X: protocol.Float(3)}}},
		}}, Recipients: 1, Bytes: 64},
	}
	for _, e := range entries {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []world.TickLogEntry
	if err := ReadTicks(filepath.Join(dir, "ticks"), func(e world.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Tick != 1 || got[1].Tick != 2 {
		t.Fatalf("entries=%+v", got)
	}
	if x := *got[1].Diff.Objs[1].Transform.Pos.X; x != 3 {
		t.Fatalf("x=%v", x)
	}
}

func TestSessionLogger_WritesUnderSessions(t *testing.T) {
	dir := t.TempDir()
	l := NewSessionLogger(dir)
	if err := l.WriteSession(world.SessionEntry{Kind: "connect", SessionID: "abc", PlayerID: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "sessions", "sessions-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	if fi, err := os.Stat(files[0]); err != nil || fi.Size() == 0 {
		t.Fatalf("stat=%v err=%v", fi, err)
	}
}
