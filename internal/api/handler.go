// Package api provides HTTP handlers for the agent console.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Renderer renders a server-side page inside the shared layout.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, name, title string, status int, data any) error
}

// Handler provides common handler utilities.
type Handler struct {
	pages  Renderer
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(pages Renderer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pages: pages, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, status int, data any) {
	if err := h.pages.Render(w, r, name, title, status, data); err != nil {
		h.logger.Error("Failed to render page", "page", name, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}
