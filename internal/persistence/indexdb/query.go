package indexdb

import (
	"context"
	"database/sql"
)

type SessionRow struct {
	SessionID      string `json:"session_id"`
	PlayerID       uint64 `json:"player_id"`
	RemoteAddr     string `json:"remote_addr"`
	ConnectedAt    string `json:"connected_at,omitempty"`
	DisconnectedAt string `json:"disconnected_at,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type TickRow struct {
	Tick       uint64 `json:"tick"`
	TMS        int64  `json:"t_ms"`
	Objs       int    `json:"objs"`
	Joins      int    `json:"joins"`
	Leaves     int    `json:"leaves"`
	Bytes      int    `json:"bytes"`
	Recipients int    `json:"recipients"`
}

// RecentSessions returns up to limit sessions, newest player first.
func (s *SQLiteIndex) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, player_id, remote_addr, connected_at, disconnected_at, reason
		FROM sessions ORDER BY player_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			r                  SessionRow
			pid                int64
			conn, disc, reason sql.NullString
		)
		if err := rows.Scan(&r.SessionID, &pid, &r.RemoteAddr, &conn, &disc, &reason); err != nil {
			return nil, err
		}
		r.PlayerID = uint64(pid)
		r.ConnectedAt = conn.String
		r.DisconnectedAt = disc.String
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// TicksSince returns logged ticks with tick > after in order.
func (s *SQLiteIndex) TicksSince(ctx context.Context, after uint64, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick, t_ms, objs, joins, leaves, bytes, recipients
		FROM ticks WHERE tick > ? ORDER BY tick LIMIT ?`, int64(after), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var (
			r    TickRow
			tick int64
		)
		if err := rows.Scan(&tick, &r.TMS, &r.Objs, &r.Joins, &r.Leaves, &r.Bytes, &r.Recipients); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}
