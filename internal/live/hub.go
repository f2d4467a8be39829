// Package live pushes "state changed" signals to open chat pages over WebSocket.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Event is the message sent to pages.
type Event struct {
	Type  string `json:"type"`
	Agent string `json:"agent,omitempty"`
}

// EventStateChanged tells a page to re-derive its view.
const EventStateChanged = "state_changed"

// Hub tracks open page connections per browser session.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[*websocket.Conn]struct{}
	logger *slog.Logger
}

// NewHub creates a new hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active: make(map[string]map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Register adds a connection for a browser session.
func (h *Hub) Register(sessionKey string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[sessionKey]; !exists {
		h.active[sessionKey] = make(map[*websocket.Conn]struct{})
	}
	h.active[sessionKey][conn] = struct{}{}
	h.logger.Debug("Live connection registered", "session_key", sessionKey, "connections", len(h.active[sessionKey]))
}

// Unregister removes a connection for a browser session.
func (h *Hub) Unregister(sessionKey string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.active[sessionKey]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.active, sessionKey)
	}
	h.logger.Debug("Live connection unregistered", "session_key", sessionKey)
}

// connections returns the number of open connections for a browser session.
func (h *Hub) connections(sessionKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[sessionKey])
}

// StateChanged signals every page of the browser session to re-render.
// Delivery is asynchronous; a slow page never blocks the caller.
func (h *Hub) StateChanged(sessionKey, agent string) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.active[sessionKey]))
	for c := range h.active[sessionKey] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	ev := Event{Type: EventStateChanged, Agent: agent}
	for _, c := range conns {
		go func(c *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if err := wsjson.Write(ctx, c, ev); err != nil {
				h.logger.Debug("Failed to deliver state change", "session_key", sessionKey, "error", err)
			}
		}(c)
	}
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, conns := range h.active {
		for c := range conns {
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(h.active, key)
	}
}
