package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"worldsync.dev/internal/protocol"
)

const defaultSyncRate = 100 * time.Millisecond

type Options struct {
	URL    string
	Header http.Header

	// SyncRate is the period of the owned-transform publisher. Zero uses 100ms;
	// negative disables publishing.
	SyncRate time.Duration

	Logger  *log.Logger
	Spawner Spawner
	Hooks   Hooks
	Dialer  *websocket.Dialer
}

// Conn is one client connection. A single loop goroutine reads the mirror,
// writes to the socket and publishes owned transforms; other goroutines reach
// the mirror through Do.
type Conn struct {
	log      *log.Logger
	ws       *websocket.Conn
	mirror   *Mirror
	syncRate time.Duration

	connected atomic.Bool
	status    atomic.Int32

	inbound chan []byte
	readErr chan error
	calls   chan func(*Mirror)
	done    chan struct{}
}

var ErrClosed = errors.New("connection closed")

func Dial(ctx context.Context, opts Options) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	m := NewMirror(MirrorConfig{Logger: logger, Spawner: opts.Spawner, Hooks: opts.Hooks})
	m.Opened()

	ws, _, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		m.Closed()
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	syncRate := opts.SyncRate
	if syncRate == 0 {
		syncRate = defaultSyncRate
	}
	c := &Conn{
		log:      logger,
		ws:       ws,
		mirror:   m,
		syncRate: syncRate,
		inbound:  make(chan []byte, 256),
		readErr:  make(chan error, 1),
		calls:    make(chan func(*Mirror)),
		done:     make(chan struct{}),
	}
	c.connected.Store(true)
	c.status.Store(int32(m.Status()))
	return c, nil
}

func (c *Conn) Connected() bool { return c.connected.Load() }
func (c *Conn) Status() Status  { return Status(c.status.Load()) }

// Run drives the connection until ctx is cancelled or the socket fails.
func (c *Conn) Run(ctx context.Context) error {
	defer close(c.done)
	defer func() {
		c.connected.Store(false)
		c.mirror.Closed()
		c.status.Store(int32(c.mirror.Status()))
		_ = c.ws.Close()
	}()

	go c.readLoop()

	var tick <-chan time.Time
	if c.syncRate > 0 {
		ticker := time.NewTicker(c.syncRate)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-c.readErr:
			return err
		case msg := <-c.inbound:
			if err := c.mirror.HandleRaw(msg); err != nil {
				c.log.Printf("warn: %v", err)
			}
		case fn := <-c.calls:
			fn(c.mirror)
		case <-tick:
			c.publish()
		}
		c.status.Store(int32(c.mirror.Status()))
	}
}

func (c *Conn) readLoop() {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr <- err
			return
		}
		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}

// Do runs fn on the connection loop with exclusive access to the mirror.
func (c *Conn) Do(ctx context.Context, fn func(*Mirror)) error {
	ran := make(chan struct{})
	select {
	case c.calls <- func(m *Mirror) { fn(m); close(ran) }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// RequestSync asks the server for a full snapshot.
func (c *Conn) RequestSync(ctx context.Context) error {
	return c.Do(ctx, func(*Mirror) { c.sendToServer(protocol.CmdSyncRequest, nil) })
}

// Move sets the local transform of an owned object; the publisher sends it
// on its next period. It reports false if the object is unknown or not owned.
func (c *Conn) Move(ctx context.Context, id uint64, tr protocol.Transform) (bool, error) {
	var ok bool
	err := c.Do(ctx, func(m *Mirror) {
		obj, found := m.Object(id)
		if !found || !obj.Owner {
			return
		}
		if nt, has := obj.Transform(); has {
			ok = nt.Set(tr)
		}
	})
	return ok, err
}

// State returns a copy of the mirror.
func (c *Conn) State(ctx context.Context) (protocol.StatePacket, error) {
	var st protocol.StatePacket
	err := c.Do(ctx, func(m *Mirror) { st = m.State() })
	return st, err
}

func (c *Conn) publish() {
	for _, upd := range c.mirror.OwnedChanges() {
		c.sendToServer(protocol.CmdUpdateComponent, upd)
	}
}

// sendToServer must only be called from the loop goroutine.
func (c *Conn) sendToServer(cmd string, data any) {
	if !c.connected.Load() {
		c.log.Printf("warn: attempted to send %s while disconnected", cmd)
		return
	}
	b, err := protocol.Encode(0, cmd, data)
	if err != nil {
		c.log.Printf("warn: encode %s: %v", cmd, err)
		return
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		c.log.Printf("warn: send %s: %v", cmd, err)
		c.connected.Store(false)
	}
}
