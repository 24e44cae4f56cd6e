package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/relay/pkg/schema"
)

// Acceptor routes inbound stream frames into the notification protocol.
// *Service satisfies it.
type Acceptor interface {
	Accept(ctx context.Context, n *schema.Notification) (*Result, error)
}

// Hub tracks connected WebSocket clients. Every accepted notification is
// broadcast to all of them best-effort; dead connections are pruned when
// their read loop exits. Inbound text frames carry one Notification JSON
// object each and are routed through the same Accept path as HTTP.
type Hub struct {
	acceptor Acceptor

	mu          sync.RWMutex
	connections map[string]*client

	writeTimeout time.Duration
}

type client struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub routing inbound frames to acceptor. acceptor may be
// nil for broadcast-only hubs (tests).
func NewHub(acceptor Acceptor, writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		acceptor:     acceptor,
		connections:  make(map[string]*client),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages one WebSocket client after upgrade. Blocks
// until the connection closes.
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	h.register(c)
	defer h.unregister(c)

	h.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.id,
	})

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if msgType != websocket.MessageText {
			h.sendJSON(c, map[string]string{"type": "error", "message": "text frames only"})
			continue
		}
		h.handleFrame(ctx, c, data)
	}
}

// handleFrame parses one inbound frame as a Notification payload and runs
// it through the protocol, acknowledging or rejecting on the same stream.
func (h *Hub) handleFrame(ctx context.Context, c *client, data []byte) {
	var n schema.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		h.sendJSON(c, map[string]string{"type": "error", "message": "invalid JSON frame"})
		return
	}
	if h.acceptor == nil {
		return
	}
	result, err := h.acceptor.Accept(ctx, &n)
	if err != nil {
		h.sendJSON(c, map[string]string{
			"type":    "notification.rejected",
			"id":      n.ID,
			"message": err.Error(),
		})
		return
	}
	h.sendJSON(c, map[string]any{
		"type":   "notification.accepted",
		"id":     n.ID,
		"status": result.Status,
	})
}

// Broadcast sends a serialized notification to every connected client.
// Failures are logged and otherwise ignored; HTTP is the durable path.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := h.sendRaw(c, payload); err != nil {
			slog.Warn("Failed to broadcast to WebSocket client",
				"connection_id", c.id, "error", err)
		}
	}
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close disconnects every client. Called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*client, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range conns {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.connections, c.id)
	h.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) sendJSON(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.id, "error", err)
		return
	}
	if err := h.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.id, "error", err)
	}
}

func (h *Hub) sendRaw(c *client, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
