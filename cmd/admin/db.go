package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/world.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	sinceTick := fs.Uint64("since_tick", 0, "ticks: only ticks after this one")
	player := fs.Uint64("player", 0, "sessions: filter by player id")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var out any
	switch q {
	case "sessions":
		out, err = querySessions(db, *player, *limit)
	case "ticks":
		out, err = queryTicks(db, *sinceTick, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printJSON(out)
}

type sessionRow struct {
	SessionID      string `json:"session_id"`
	PlayerID       int64  `json:"player_id"`
	RemoteAddr     string `json:"remote_addr"`
	ConnectedAt    string `json:"connected_at,omitempty"`
	DisconnectedAt string `json:"disconnected_at,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func querySessions(db *sql.DB, player uint64, limit int) ([]sessionRow, error) {
	query := `SELECT session_id, player_id, remote_addr, COALESCE(connected_at,''), COALESCE(disconnected_at,''), COALESCE(reason,'')
		FROM sessions`
	var params []any
	if player != 0 {
		query += ` WHERE player_id = ?`
		params = append(params, int64(player))
	}
	query += ` ORDER BY player_id DESC LIMIT ?`
	params = append(params, limit)

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []sessionRow{}
	for rows.Next() {
		var r sessionRow
		if err := rows.Scan(&r.SessionID, &r.PlayerID, &r.RemoteAddr, &r.ConnectedAt, &r.DisconnectedAt, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type tickRow struct {
	Tick       int64 `json:"tick"`
	TMS        int64 `json:"t_ms"`
	Objs       int   `json:"objs"`
	Joins      int   `json:"joins"`
	Leaves     int   `json:"leaves"`
	Bytes      int   `json:"bytes"`
	Recipients int   `json:"recipients"`
}

func queryTicks(db *sql.DB, since uint64, limit int) ([]tickRow, error) {
	rows, err := db.Query(`SELECT tick, t_ms, objs, joins, leaves, bytes, recipients
		FROM ticks WHERE tick > ? ORDER BY tick LIMIT ?`, int64(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []tickRow{}
	for rows.Next() {
		var r tickRow
		if err := rows.Scan(&r.Tick, &r.TMS, &r.Objs, &r.Joins, &r.Leaves, &r.Bytes, &r.Recipients); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
