// Package hub fans scan and firmware progress events out to websocket
// clients. Events arrive over the scheduler's Redis pub/sub channels; each
// client watches one job, or everything via the live feed.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentinelops/netscout/internal/pkg/ulid"
	"github.com/sentinelops/netscout/internal/scheduler"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS middleware; sockets accept
	// any origin so the dashboard works behind reverse proxies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected websocket watcher. The ID is for log
// correlation only.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub routes job progress events to their watchers. Per-job events also
// reach every live-feed watcher.
type Hub struct {
	mu       sync.RWMutex
	scans    map[string]map[*Client]struct{}
	firmware map[string]map[*Client]struct{}
	live     map[*Client]struct{}

	sched *scheduler.Scheduler
	log   *slog.Logger
}

// New creates a hub over the scheduler's pub/sub substrate.
func New(sched *scheduler.Scheduler, log *slog.Logger) *Hub {
	return &Hub{
		scans:    make(map[string]map[*Client]struct{}),
		firmware: make(map[string]map[*Client]struct{}),
		live:     make(map[*Client]struct{}),
		sched:    sched,
		log:      log,
	}
}

// Run consumes progress events until ctx is cancelled. Call it once, from
// the server's main goroutine group.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.sched.Subscribe(ctx, scheduler.KindScan, scheduler.KindFirmware)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.route(msg.Channel, []byte(msg.Payload))
		}
	}
}

// route delivers one event to the job's watchers and the live feed.
// Channel names follow the scheduler layout "soc:<kind>:<job_id>".
func (h *Hub) route(channel string, payload []byte) {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) != 3 {
		return
	}
	kind, jobID := parts[1], parts[2]

	h.mu.RLock()
	defer h.mu.RUnlock()

	var watchers map[*Client]struct{}
	switch scheduler.JobKind(kind) {
	case scheduler.KindScan:
		watchers = h.scans[jobID]
	case scheduler.KindFirmware:
		watchers = h.firmware[jobID]
	default:
		return
	}

	for c := range watchers {
		c.trySend(payload)
	}
	for c := range h.live {
		c.trySend(payload)
	}
}

// trySend drops the message when the client's buffer is full rather than
// blocking the routing loop on a slow reader.
func (c *Client) trySend(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

// ServeScan upgrades the connection and streams one scan's events.
func (h *Hub) ServeScan(w http.ResponseWriter, r *http.Request, scanID string) {
	h.serve(w, r, func(c *Client) func() {
		h.mu.Lock()
		if h.scans[scanID] == nil {
			h.scans[scanID] = make(map[*Client]struct{})
		}
		h.scans[scanID][c] = struct{}{}
		h.mu.Unlock()

		return func() {
			h.mu.Lock()
			delete(h.scans[scanID], c)
			if len(h.scans[scanID]) == 0 {
				delete(h.scans, scanID)
			}
			close(c.send)
			h.mu.Unlock()
		}
	})
}

// ServeFirmware upgrades the connection and streams one analysis' events.
func (h *Hub) ServeFirmware(w http.ResponseWriter, r *http.Request, analysisID string) {
	h.serve(w, r, func(c *Client) func() {
		h.mu.Lock()
		if h.firmware[analysisID] == nil {
			h.firmware[analysisID] = make(map[*Client]struct{})
		}
		h.firmware[analysisID][c] = struct{}{}
		h.mu.Unlock()

		return func() {
			h.mu.Lock()
			delete(h.firmware[analysisID], c)
			if len(h.firmware[analysisID]) == 0 {
				delete(h.firmware, analysisID)
			}
			close(c.send)
			h.mu.Unlock()
		}
	})
}

// ServeLive upgrades the connection and streams every job's events.
func (h *Hub) ServeLive(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(c *Client) func() {
		h.mu.Lock()
		h.live[c] = struct{}{}
		h.mu.Unlock()

		return func() {
			h.mu.Lock()
			delete(h.live, c)
			close(c.send)
			h.mu.Unlock()
		}
	})
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, register func(*Client) func()) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &Client{id: ulid.New(), conn: conn, send: make(chan []byte, sendBufferSize)}
	unregister := register(client)
	h.log.Debug("websocket client connected",
		slog.String("client_id", client.id),
		slog.String("remote", r.RemoteAddr),
	)

	go client.writePump()
	client.readPump(unregister)
	h.log.Debug("websocket client disconnected", slog.String("client_id", client.id))
}

// readPump consumes client messages until the connection drops. The only
// client-to-server message is the "ping" keepalive, answered with a
// {"type":"pong"} event.
func (c *Client) readPump(unregister func()) {
	defer func() {
		unregister()
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if strings.TrimSpace(string(msg)) == "ping" {
			c.trySend([]byte(`{"type":"pong"}`))
		}
	}
}

// writePump serializes all writes to the connection.
func (c *Client) writePump() {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
