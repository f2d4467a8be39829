package live

import (
	"context"
	"net/http"

	"github.com/ashureev/agent-console/internal/chat"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type clientMessage struct {
	Type string `json:"type"`
}

// Handler upgrades page connections and registers them with the hub.
type Handler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, allowedOrigin string, isDev bool) *Handler {
	return &Handler{hub: hub, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := chat.KeyFromContext(r.Context())
	if key.Profile == "" || key.Session == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.hub.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "page closed"); closeErr != nil {
			h.hub.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	sessionKey := key.String()
	h.hub.Register(sessionKey, ws)
	defer h.hub.Unregister(sessionKey, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.hub.logger.Debug("Live connection read error", "error", err)
			}
			return
		}
		if msg.Type == "ping" {
			if err := wsjson.Write(ctx, ws, Event{Type: "pong"}); err != nil {
				h.hub.logger.Debug("Failed to send pong", "error", err)
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.hub.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
