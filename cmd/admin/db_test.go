package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"worldsync.dev/internal/persistence/indexdb"
	"worldsync.dev/internal/sim/world"
)

func TestQueries_ReadServerIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteSession(world.SessionEntry{Kind: "connect", SessionID: "a", PlayerID: 1, RemoteAddr: "127.0.0.1:1", At: "2025-03-01T10:00:00Z"})
	_ = idx.WriteSession(world.SessionEntry{Kind: "connect", SessionID: "b", PlayerID: 2, RemoteAddr: "127.0.0.1:2", At: "2025-03-01T10:00:01Z"})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 5, T: 80, Joins: []uint64{1, 2}, Recipients: 2, Bytes: 300})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	sessions, err := querySessions(db, 2, 10)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "b" || sessions[0].DisconnectedAt != "" {
		t.Fatalf("sessions=%+v", sessions)
	}

	ticks, err := queryTicks(db, 0, 10)
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(ticks) != 1 || ticks[0].Tick != 5 || ticks[0].Joins != 2 || ticks[0].Bytes != 300 {
		t.Fatalf("ticks=%+v", ticks)
	}
}
