package ws

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/world"
)

type Options struct {
	// SendQueue is the per-connection outbound buffer. A connection whose
	// buffer fills is disconnected by the world.
	SendQueue int

	// UpdatesPerSecond and UpdateBurst bound inbound C2S_UPDATE_COMPONENT
	// per connection. Zero disables the limit.
	UpdatesPerSecond float64
	UpdateBurst      int

	JoinTimeout time.Duration
	ReadTimeout time.Duration
}

type Stats struct {
	Active      int64  `json:"active"`
	Accepted    uint64 `json:"accepted"`
	Malformed   uint64 `json:"malformed"`
	RateLimited uint64 `json:"rate_limited"`
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader

	active      atomic.Int64
	accepted    atomic.Uint64
	malformed   atomic.Uint64
	rateLimited atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if opts.SendQueue < 8 {
		opts.SendQueue = 8
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	return &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		Active:      s.active.Load(),
		Accepted:    s.accepted.Load(),
		Malformed:   s.malformed.Load(),
		RateLimited: s.rateLimited.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sessionID := uuid.NewString()
		out := make(chan []byte, s.opts.SendQueue)
		playerID, err := s.join(ctx, sessionID, r.RemoteAddr, out)
		if err != nil {
			s.log.Printf("warn: join %s: %v", r.RemoteAddr, err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "join failed"),
				time.Now().Add(time.Second))
			return
		}
		s.accepted.Add(1)
		s.active.Add(1)
		defer s.active.Add(-1)

		// Writer goroutine. The world closes out when it drops the player.
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
							time.Now().Add(time.Second))
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		s.readLoop(ctx, conn, playerID)

		// Cleanup.
		select {
		case s.world.Leave() <- playerID:
		case <-time.After(s.opts.JoinTimeout):
			s.log.Printf("warn: leave for player %d not accepted", playerID)
		}
	}
}

func (s *Server) join(ctx context.Context, sessionID, remote string, out chan []byte) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.JoinTimeout)
	defer cancel()

	resp := make(chan world.JoinResponse, 1)
	req := world.JoinRequest{SessionID: sessionID, RemoteAddr: remote, Out: out, Resp: resp}
	select {
	case s.world.Join() <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.PlayerID, nil
	case <-ctx.Done():
		// The world still answers; release the player it created.
		go func() {
			r := <-resp
			s.world.Leave() <- r.PlayerID
		}()
		return 0, ctx.Err()
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, playerID uint64) {
	var limiter *rate.Limiter
	if s.opts.UpdatesPerSecond > 0 {
		burst := s.opts.UpdateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.opts.UpdatesPerSecond), burst)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Printf("player %d read: %v", playerID, err)
			}
			return
		}
		env, err := protocol.DecodeEnvelope(msg)
		if err != nil {
			s.malformed.Add(1)
			s.log.Printf("warn: player %d: %v", playerID, err)
			continue
		}
		if env.Cmd == protocol.CmdUpdateComponent && limiter != nil && !limiter.Allow() {
			s.rateLimited.Add(1)
			continue
		}
		select {
		case s.world.Inbox() <- world.MessageEnvelope{PlayerID: playerID, Msg: env}:
		case <-ctx.Done():
			return
		}
	}
}
