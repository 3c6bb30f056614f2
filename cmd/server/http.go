package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"worldsync.dev/internal/sim/world"
	"worldsync.dev/internal/transport/ws"
)

type muxOptions struct {
	EnableAdmin bool
	Logger      *log.Logger
}

func newMux(w *world.World, wsSrv *ws.Server, idx runtimeIndex, opts muxOptions) *http.ServeMux {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w.Metrics(), wsSrv.Stats(), idx)
	})

	if opts.EnableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			snap, err := w.RequestState(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			resp := struct {
				world.StateSnapshot
				Metrics world.WorldMetrics `json:"metrics"`
			}{StateSnapshot: snap, Metrics: w.Metrics()}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/sessions", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusNotFound)
				return
			}
			rows, err := idx.RecentSessions(r.Context(), 100)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"sessions": rows})
		})
	} else {
		logger.Printf("admin endpoints disabled (WS_ENABLE_ADMIN_HTTP=false)")
	}

	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw io.Writer, m world.WorldMetrics, st ws.Stats, idx runtimeIndex) {
	fmt.Fprintf(rw, "# HELP worldsync_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_world_tick gauge\n")
	fmt.Fprintf(rw, "worldsync_world_tick %d\n", m.Tick)

	fmt.Fprintf(rw, "# HELP worldsync_world_players Current number of players.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_world_players gauge\n")
	fmt.Fprintf(rw, "worldsync_world_players %d\n", m.Players)

	fmt.Fprintf(rw, "# HELP worldsync_world_objects Current number of networked objects.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_world_objects gauge\n")
	fmt.Fprintf(rw, "worldsync_world_objects %d\n", m.Objects)

	fmt.Fprintf(rw, "# HELP worldsync_world_clients Current number of connected clients.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_world_clients gauge\n")
	fmt.Fprintf(rw, "worldsync_world_clients %d\n", m.Clients)

	fmt.Fprintf(rw, "# HELP worldsync_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "worldsync_world_queue_depth{queue=%q} %d\n", "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "worldsync_world_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "worldsync_world_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)

	fmt.Fprintf(rw, "# HELP worldsync_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_world_step_ms gauge\n")
	fmt.Fprintf(rw, "worldsync_world_step_ms %.3f\n", m.StepMS)

	fmt.Fprintf(rw, "# HELP worldsync_broadcasts_total Ticks that broadcast a state update.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_broadcasts_total counter\n")
	fmt.Fprintf(rw, "worldsync_broadcasts_total %d\n", m.Broadcasts)

	fmt.Fprintf(rw, "# HELP worldsync_messages_sent_total Messages queued to clients.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_messages_sent_total counter\n")
	fmt.Fprintf(rw, "worldsync_messages_sent_total %d\n", m.MessagesSent)

	fmt.Fprintf(rw, "# HELP worldsync_bytes_sent_total Bytes queued to clients.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_bytes_sent_total counter\n")
	fmt.Fprintf(rw, "worldsync_bytes_sent_total %d\n", m.BytesSent)

	fmt.Fprintf(rw, "# HELP worldsync_evictions_total Clients disconnected for a full send queue.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_evictions_total counter\n")
	fmt.Fprintf(rw, "worldsync_evictions_total %d\n", m.Evictions)

	fmt.Fprintf(rw, "# HELP worldsync_updates_applied_total Component updates merged into world state.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_updates_applied_total counter\n")
	fmt.Fprintf(rw, "worldsync_updates_applied_total %d\n", m.UpdatesApplied)

	fmt.Fprintf(rw, "# HELP worldsync_rejected_total Client messages dropped by reason.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_rejected_total counter\n")
	codes := make([]string, 0, len(m.Rejected))
	for code := range m.Rejected {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(rw, "worldsync_rejected_total{code=%q} %d\n", code, m.Rejected[code])
	}

	fmt.Fprintf(rw, "# HELP worldsync_ws_frames_dropped_total Inbound frames dropped before reaching the world.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_ws_frames_dropped_total counter\n")
	fmt.Fprintf(rw, "worldsync_ws_frames_dropped_total{reason=%q} %d\n", "malformed", st.Malformed)
	fmt.Fprintf(rw, "worldsync_ws_frames_dropped_total{reason=%q} %d\n", "rate_limit", st.RateLimited)

	fmt.Fprintf(rw, "# HELP worldsync_ws_connections Open websocket connections.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_ws_connections gauge\n")
	fmt.Fprintf(rw, "worldsync_ws_connections %d\n", st.Active)

	fmt.Fprintf(rw, "# HELP worldsync_ws_accepted_total Accepted websocket connections.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_ws_accepted_total counter\n")
	fmt.Fprintf(rw, "worldsync_ws_accepted_total %d\n", st.Accepted)

	if idx == nil {
		return
	}
	is := idx.Stats()
	fmt.Fprintf(rw, "# HELP worldsync_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "worldsync_index_queue_depth %d\n", is.QueueDepth)

	fmt.Fprintf(rw, "# HELP worldsync_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE worldsync_index_dropped_total counter\n")
	fmt.Fprintf(rw, "worldsync_index_dropped_total{kind=%q} %d\n", "tick", is.DropTickTotal)
	fmt.Fprintf(rw, "worldsync_index_dropped_total{kind=%q} %d\n", "session", is.DropSessionTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
