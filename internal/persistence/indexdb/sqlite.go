package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"worldsync.dev/internal/sim/world"
)

// SQLiteIndex is an operational read model of sessions and broadcast ticks.
// Writes are queued to a single writer goroutine and dropped when it falls
// behind; the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	dropSession atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSession
	reqFlush
)

type req struct {
	kind reqKind

	tick    world.TickLogEntry
	session world.SessionEntry
	done    chan struct{}
}

type Stats struct {
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
	DropTickTotal    uint64 `json:"drop_tick_total"`
	DropSessionTotal uint64 `json:"drop_session_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			player_id INTEGER NOT NULL,
			remote_addr TEXT NOT NULL,
			connected_at TEXT,
			disconnected_at TEXT,
			reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions(player_id);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			t_ms INTEGER NOT NULL,
			objs INTEGER NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			recipients INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropTickTotal:    s.dropTick.Load(),
		DropSessionTotal: s.dropSession.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteSession(entry world.SessionEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqSession, session: entry}:
	default:
		s.dropSession.Add(1)
	}
	return nil
}

// Flush blocks until everything queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,t_ms,objs,joins,leaves,bytes,recipients) VALUES(?,?,?,?,?,?,?)`)
	connectSession, _ := s.db.Prepare(`INSERT INTO sessions(session_id,player_id,remote_addr,connected_at) VALUES(?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET player_id=excluded.player_id, remote_addr=excluded.remote_addr, connected_at=excluded.connected_at`)
	disconnectSession, _ := s.db.Prepare(`INSERT INTO sessions(session_id,player_id,remote_addr,disconnected_at,reason) VALUES(?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET disconnected_at=excluded.disconnected_at, reason=excluded.reason`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, connectSession, disconnectSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if insertTick == nil {
				break
			}
			if _, err := tx.Stmt(insertTick).Exec(
				int64(e.Tick),
				e.T,
				len(e.Diff.Objs),
				len(e.Joins),
				len(e.Leaves),
				e.Bytes,
				e.Recipients,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSession:
			e := r.session
			var err error
			switch e.Kind {
			case "connect":
				if connectSession != nil {
					_, err = tx.Stmt(connectSession).Exec(e.SessionID, int64(e.PlayerID), e.RemoteAddr, e.At)
				}
			case "disconnect":
				if disconnectSession != nil {
					_, err = tx.Stmt(disconnectSession).Exec(e.SessionID, int64(e.PlayerID), e.RemoteAddr, e.At, e.Reason)
				}
			}
			if err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
