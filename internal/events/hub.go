package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ringCap bounds the catchup replay buffer, mirroring the teacher's
// catchupLimit (pkg/events/manager.go) but sized for an in-memory,
// single-process ring rather than a DB-backed query.
const ringCap = 200

// connection is a single WebSocket client, analogous to the teacher's
// Connection. subscriptions do not apply here - every client receives
// every event, since the coordinator has one fleet, not one channel per
// session.
type connection struct {
	id     string
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub manages WebSocket connections and broadcasts Envelopes to all of
// them, grounded on the teacher's ConnectionManager (pkg/events/manager.go)
// with the PostgreSQL NOTIFY/LISTEN fan-out dropped: this process is the
// only writer and the only broadcaster.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*connection

	writeTimeout time.Duration
	log          *slog.Logger

	seq      atomic.Int64
	ringMu   sync.Mutex
	ring     []Envelope
}

// NewHub constructs a Hub. writeTimeout bounds how long a single client
// write may block (teacher parity: a slow client must never stall
// Broadcast for everyone else).
func NewHub(writeTimeout time.Duration, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		connections:  make(map[string]*connection),
		writeTimeout: writeTimeout,
		log:          log,
	}
}

// HandleConnection manages one WebSocket client's lifecycle, blocking
// until it disconnects. Call from the gin handler after upgrading.
func (h *Hub) HandleConnection(parentCtx context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.NewString(), ws: ws, ctx: ctx, cancel: cancel}

	h.register(c)
	defer h.unregister(c)

	h.sendJSON(c, map[string]string{"type": "connection.established", "connectionId": c.id})

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warn("events: invalid client message", "connectionId", c.id, "error", err)
			continue
		}
		h.handleClientMessage(c, msg)
	}
}

func (h *Hub) handleClientMessage(c *connection, msg ClientMessage) {
	switch msg.Action {
	case "ping":
		h.sendJSON(c, map[string]string{"type": "pong"})
	case "catchup":
		for _, e := range h.catchupSince(msg.SinceSeqID) {
			h.sendEnvelope(c, e)
		}
	}
}

// Broadcast sends an event to every connected client and records it in the
// catchup ring.
func (h *Hub) Broadcast(e Envelope) {
	e.SeqID = h.seq.Add(1)

	h.ringMu.Lock()
	h.ring = append(h.ring, e)
	if len(h.ring) > ringCap {
		h.ring = h.ring[len(h.ring)-ringCap:]
	}
	h.ringMu.Unlock()

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.sendEnvelope(c, e)
	}
}

func (h *Hub) catchupSince(sinceSeqID int64) []Envelope {
	h.ringMu.Lock()
	defer h.ringMu.Unlock()
	var out []Envelope
	for _, e := range h.ring {
		if e.SeqID > sinceSeqID {
			out = append(out, e)
		}
	}
	return out
}

// ActiveConnections returns the number of currently connected clients, for
// the healthz endpoint.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.id] = c
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	delete(h.connections, c.id)
	h.mu.Unlock()
	c.cancel()
	_ = c.ws.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.sendRaw(c, data)
}

func (h *Hub) sendEnvelope(c *connection, e Envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Warn("events: failed to marshal envelope", "type", e.Type, "error", err)
		return
	}
	h.sendRaw(c, data)
}

func (h *Hub) sendRaw(c *connection, data []byte) {
	writeCtx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()
	if err := c.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		h.log.Warn("events: failed to write to client", "connectionId", c.id, "error", err)
	}
}
