package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const broadcastWriteBudget = time.Second

// Hub manages active WebSocket subscribers to the activity stream.
type Hub struct {
	mu   sync.RWMutex
	subs map[*websocket.Conn]struct{}
}

// NewHub creates a new subscriber hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*websocket.Conn]struct{})}
}

// Register adds a subscriber connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[conn] = struct{}{}
	slog.Debug("Activity subscriber registered", "subscribers", len(h.subs))
}

// Unregister removes a subscriber connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, conn)
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast sends an event to every subscriber. Each write gets a short
// budget; a connection that cannot keep up is dropped from the hub.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal activity event", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for conn := range h.subs {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), broadcastWriteBudget)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("Dropping activity subscriber", "error", err)
			h.Unregister(conn)
			_ = conn.Close(websocket.StatusPolicyViolation, "write budget exceeded")
		}
	}
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.subs {
		_ = conn.Close(websocket.StatusNormalClosure, "server shutting down")
	}
	h.subs = make(map[*websocket.Conn]struct{})
}
