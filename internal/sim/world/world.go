package world

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/state"
)

type WorldConfig struct {
	TickRateHz  int
	SpawnPoints []protocol.Transform

	// Clock defaults to time.Now. Tests inject a fake to control envelope t.
	Clock func() time.Time
}

type JoinRequest struct {
	SessionID  string
	RemoteAddr string
	Out        chan []byte
	Resp       chan JoinResponse
}

type JoinResponse struct {
	PlayerID uint64
}

// MessageEnvelope is one inbound client message tagged with its sender.
type MessageEnvelope struct {
	PlayerID uint64
	Msg      protocol.Envelope
}

// World is the single-threaded authoritative state holder.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger

	store    *state.Store
	baseline *state.Baseline
	running  protocol.Diff

	clients   map[uint64]*clientState
	evictions []uint64

	start time.Time
	now   func() time.Time

	tick atomic.Uint64

	inbox    chan MessageEnvelope
	join     chan JoinRequest
	leave    chan uint64
	stateReq chan chan protocol.StatePacket
	stop     chan struct{}

	// Events since the last tick log entry.
	pendingLog TickLogEntry

	tickLogger    TickLogger
	sessionLogger SessionLogger

	counters counters
	metrics  atomic.Value // WorldMetrics
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type SessionLogger interface {
	WriteSession(entry SessionEntry) error
}

// TickLogEntry records everything broadcast during one tick. Replaying
// Spawned, then Diff, then Destroyed in order reconstructs the object table.
type TickLogEntry struct {
	Tick       uint64                  `json:"tick"`
	T          int64                   `json:"t"`
	Joins      []uint64                `json:"joins,omitempty"`
	Leaves     []uint64                `json:"leaves,omitempty"`
	Spawned    []protocol.ObjectPacket `json:"spawned,omitempty"`
	Destroyed  []uint64                `json:"destroyed,omitempty"`
	Diff       protocol.Diff           `json:"diff"`
	Recipients int                     `json:"recipients"`
	Bytes      int                     `json:"bytes"`
}

func (e TickLogEntry) isEmpty() bool {
	return len(e.Joins) == 0 && len(e.Leaves) == 0 && len(e.Spawned) == 0 && len(e.Destroyed) == 0 && e.Diff.IsEmpty()
}

type SessionEntry struct {
	Kind       string `json:"kind"` // "connect" | "disconnect"
	SessionID  string `json:"session_id"`
	PlayerID   uint64 `json:"player_id"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Reason     string `json:"reason,omitempty"`
	At         string `json:"at"`
	T          int64  `json:"t"`
}

type clientState struct {
	PlayerID   uint64
	SessionID  string
	RemoteAddr string
	Out        chan []byte

	evicted bool
}

func New(cfg WorldConfig, logger *log.Logger) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", cfg.TickRateHz)
	}
	if len(cfg.SpawnPoints) == 0 {
		return nil, fmt.Errorf("at least one spawn point is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	w := &World{
		cfg:      cfg,
		log:      logger,
		store:    state.New(cfg.SpawnPoints),
		baseline: state.NewBaseline(),
		clients:  map[uint64]*clientState{},
		start:    now(),
		now:      now,
		inbox:    make(chan MessageEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		leave:    make(chan uint64, 64),
		stateReq: make(chan chan protocol.StatePacket, 8),
		stop:     make(chan struct{}),
	}
	w.publishMetrics(0)
	return w, nil
}

func (w *World) Inbox() chan<- MessageEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest       { return w.join }
func (w *World) Leave() chan<- uint64           { return w.leave }

func (w *World) SetTickLogger(l TickLogger)       { w.tickLogger = l }
func (w *World) SetSessionLogger(l SessionLogger) { w.sessionLogger = l }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

// elapsed is the envelope timestamp: milliseconds since the world started.
func (w *World) elapsed() int64 {
	return w.now().Sub(w.start).Milliseconds()
}
