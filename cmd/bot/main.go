package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"worldsync.dev/internal/client"
	"worldsync.dev/internal/protocol"
)

type logHooks struct {
	client.NopHooks
	log *log.Logger
}

func (h logHooks) OnPlayerJoin(id uint64)  { h.log.Printf("JOIN player=%d", id) }
func (h logHooks) OnPlayerLeave(id uint64) { h.log.Printf("LEAVE player=%d", id) }

func (h logHooks) OnInstantiate(o *client.Object) {
	h.log.Printf("INSTANTIATE obj=%d type=%s owner=%d mine=%v", o.ID, o.Type, o.OwnerID, o.Owner)
}

func (h logHooks) OnDestroy(o *client.Object) { h.log.Printf("DESTROY obj=%d", o.ID) }

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		syncRate  = flag.Duration("sync_rate", 100*time.Millisecond, "owned transform publish period")
		moveEvery = flag.Duration("move_every", 500*time.Millisecond, "how often to pick a new position")
		resync    = flag.Duration("resync_every", 0, "request a full SYNC periodically (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	conn, err := client.Dial(ctx, client.Options{
		URL:      *url,
		SyncRate: *syncRate,
		Logger:   logger,
		Hooks:    logHooks{log: logger},
	})
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	move := time.NewTicker(*moveEvery)
	defer move.Stop()
	var resyncC <-chan time.Time
	if *resync > 0 {
		t := time.NewTicker(*resync)
		defer t.Stop()
		resyncC = t.C
	}

	for {
		select {
		case err := <-done:
			if err != nil && err != context.Canceled {
				logger.Printf("connection closed: %v", err)
			}
			return
		case <-resyncC:
			if err := conn.RequestSync(ctx); err != nil {
				logger.Printf("warn: sync request: %v", err)
			}
		case <-move.C:
			if conn.Status() != client.StatusSynced {
				continue
			}
			wander(ctx, conn, r, logger)
		}
	}
}

// wander nudges every owned object to a nearby random position.
func wander(ctx context.Context, conn *client.Conn, r *rand.Rand, logger *log.Logger) {
	var owned []protocol.ObjectPacket
	err := conn.Do(ctx, func(m *client.Mirror) {
		for _, obj := range m.State().Objs {
			if obj.OwnerID == m.PlayerID() {
				owned = append(owned, obj)
			}
		}
	})
	if err != nil {
		return
	}
	for _, obj := range owned {
		tr := obj.Transform
		tr.Pos.X += float64(r.Intn(3) - 1)
		tr.Pos.Z += float64(r.Intn(3) - 1)
		tr.Rot.Y = float64(r.Intn(360))
		if _, err := conn.Move(ctx, obj.ID, tr); err != nil {
			logger.Printf("warn: move %d: %v", obj.ID, err)
		}
	}
}
