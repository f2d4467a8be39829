package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/ashureev/agent-console/internal/chat"
	"github.com/go-chi/chi/v5"
)

const rateLimitedText = "Too many messages. Please wait a moment and try again."

// ChatService is the chat controller as seen by the HTTP layer.
type ChatService interface {
	Select(ctx context.Context, key chat.Key, agent string) (chat.View, error)
	Validate(agent, prompt string) error
	Submit(ctx context.Context, key chat.Key, agent, prompt string) (chat.View, error)
}

// ChatHandler serves the chat page and its JSON API.
type ChatHandler struct {
	*Handler
	chat    ChatService
	limiter *RateLimiter
}

// NewChatHandler creates a chat handler. limiter may be nil to disable rate limiting.
func NewChatHandler(base *Handler, svc ChatService, limiter *RateLimiter) *ChatHandler {
	return &ChatHandler{Handler: base, chat: svc, limiter: limiter}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Page)
	r.Post("/chat", h.SubmitForm)
	r.Get("/api/chat", h.GetView)
	r.Post("/api/chat/messages", h.PostMessage)
}

type messageRequest struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

// Page renders the chat page for the selected agent.
func (h *ChatHandler) Page(w http.ResponseWriter, r *http.Request) {
	view, err := h.chat.Select(r.Context(), chat.KeyFromContext(r.Context()), r.URL.Query().Get("agent"))
	if errors.Is(err, chat.ErrUnknownAgent) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.logger.Error("Failed to select agent", "error", err)
		http.Error(w, "failed to load chat", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "chat.html", "Chat", http.StatusOK, view)
}

// SubmitForm handles the chat form and redirects back to the page.
func (h *ChatHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	agent := r.PostForm.Get("agent")
	prompt := r.PostForm.Get("prompt")
	key := chat.KeyFromContext(r.Context())

	err := h.chat.Validate(agent, prompt)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		// Nothing to send; show the page unchanged.
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case !h.allow(key):
		http.Error(w, rateLimitedText, http.StatusTooManyRequests)
		return
	default:
		if _, err := h.chat.Submit(r.Context(), key, agent, prompt); err != nil {
			h.logger.Error("Chat submit failed", "agent", agent, "error", err)
			http.Error(w, "failed to submit message", http.StatusInternalServerError)
			return
		}
	}

	http.Redirect(w, r, "/?agent="+url.QueryEscape(agent), http.StatusSeeOther)
}

// GetView returns the chat view as JSON.
func (h *ChatHandler) GetView(w http.ResponseWriter, r *http.Request) {
	view, err := h.chat.Select(r.Context(), chat.KeyFromContext(r.Context()), r.URL.Query().Get("agent"))
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// PostMessage runs one chat turn from a JSON request.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chat.Validate(req.Agent, req.Message); err != nil {
		h.writeChatError(w, err)
		return
	}
	key := chat.KeyFromContext(r.Context())
	if !h.allow(key) {
		Error(w, http.StatusTooManyRequests, rateLimitedText)
		return
	}

	view, err := h.chat.Submit(r.Context(), key, req.Agent, req.Message)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// allow charges one chat turn against the profile's rate limit.
func (h *ChatHandler) allow(key chat.Key) bool {
	return h.limiter == nil || h.limiter.Allow(key.Profile)
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrUnknownAgent), errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Chat request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
