package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// InstructionsService reads and overwrites per-agent instruction text.
type InstructionsService interface {
	Fetch(ctx context.Context, agent string) string
	Update(ctx context.Context, agent, content string) error
}

// AgentLister exposes the configured agent set.
type AgentLister interface {
	Names() []string
	Contains(name string) bool
}

// Editor is one agent's instructions form.
type Editor struct {
	Agent   string
	Content string
	Saved   bool
	Error   string
}

// MissionPage is the Mission Control page model.
type MissionPage struct {
	Editors []Editor
}

// MissionHandler serves the Mission Control page.
type MissionHandler struct {
	*Handler
	instructions InstructionsService
	agents       AgentLister
}

// NewMissionHandler creates a Mission Control handler.
func NewMissionHandler(base *Handler, instructions InstructionsService, agents AgentLister) *MissionHandler {
	return &MissionHandler{Handler: base, instructions: instructions, agents: agents}
}

// RegisterRoutes registers Mission Control routes.
func (h *MissionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/mission-control", h.Page)
	r.Post("/mission-control/{agent}", h.Save)
}

// Page renders an editor for every agent.
func (h *MissionHandler) Page(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "mission.html", "Mission Control", http.StatusOK, h.load(r.Context(), nil))
}

// Save overwrites one agent's instructions and re-renders the page.
func (h *MissionHandler) Save(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "agent")
	if !h.agents.Contains(agent) {
		http.Error(w, "unknown agent: "+agent, http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	content := r.PostForm.Get("instructions")

	result := Editor{Agent: agent, Content: content}
	if err := h.instructions.Update(r.Context(), agent, content); err != nil {
		result.Error = err.Error()
	} else {
		result.Saved = true
	}

	h.render(w, r, "mission.html", "Mission Control", http.StatusOK, h.load(r.Context(), &result))
}

// load fetches every agent's instructions concurrently. override replaces
// the fetched editor for its agent.
func (h *MissionHandler) load(ctx context.Context, override *Editor) MissionPage {
	names := h.agents.Names()
	editors := make([]Editor, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		if override != nil && override.Agent == name {
			editors[i] = *override
			continue
		}
		g.Go(func() error {
			editors[i] = Editor{Agent: name, Content: h.instructions.Fetch(gctx, name)}
			return nil
		})
	}
	// Fetch absorbs its own failures into placeholder text.
	_ = g.Wait()

	return MissionPage{Editors: editors}
}
