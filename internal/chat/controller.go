// Package chat implements the chat page state machine: one explicit state per
// browser session, re-derived into a View after every mutation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
	"github.com/ashureev/agent-console/internal/identity"
	"github.com/ashureev/agent-console/internal/orchestrator"
)

var (
	// ErrUnknownAgent is returned for agent names outside the registry.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrEmptyMessage is returned for blank prompts.
	ErrEmptyMessage = errors.New("message is required")
)

// ProfileStore loads and saves the persisted user profile.
type ProfileStore interface {
	Load(ctx context.Context, profileKey string) (domain.UserProfile, error)
	Save(ctx context.Context, profileKey string, p domain.UserProfile) error
}

// Orchestrator delivers a chat turn and never fails outright.
type Orchestrator interface {
	Send(ctx context.Context, agent, message, userID, sessionID string) orchestrator.Reply
}

// HistoryFetcher returns prior turns; on error the slice is empty.
type HistoryFetcher interface {
	Fetch(ctx context.Context, agent, userID, sessionID string) ([]domain.Message, error)
}

// AgentSet is the enumerated set of selectable agents.
type AgentSet interface {
	Names() []string
	Contains(name string) bool
	Default() string
}

// Notifier receives the explicit "state changed, re-derive view" signal.
type Notifier interface {
	StateChanged(sessionKey, agent string)
}

// Key identifies one browser session of one browser profile.
type Key struct {
	Profile string
	Session string
}

func (k Key) String() string {
	return k.Profile + ":" + k.Session
}

// State is everything the chat page knows for one browser session.
type State struct {
	Profile           domain.UserProfile `json:"profile"`
	Transcript        []domain.Message   `json:"transcript"`
	LastSelectedAgent string             `json:"last_selected_agent"`
	Notice            string             `json:"notice,omitempty"`
}

// View is a render-ready copy of a State.
type View struct {
	Agent     string           `json:"agent"`
	Agents    []string         `json:"agents"`
	UserID    string           `json:"user_id"`
	SessionID string           `json:"session_id,omitempty"`
	Messages  []domain.Message `json:"messages"`
	Notice    string           `json:"notice,omitempty"`
}

type entry struct {
	mu       sync.Mutex
	ready    bool
	loaded   bool // profile came from storage and may be saved back
	state    State
	lastUsed time.Time
}

// Controller owns the per-browser-session chat states.
type Controller struct {
	profiles ProfileStore
	orch     Orchestrator
	history  HistoryFetcher
	agents   AgentSet
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[Key]*entry
	now     func() time.Time
}

// NewController creates a chat controller. notifier may be nil.
func NewController(profiles ProfileStore, orch Orchestrator, history HistoryFetcher, agents AgentSet, notifier Notifier, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		profiles: profiles,
		orch:     orch,
		history:  history,
		agents:   agents,
		notifier: notifier,
		logger:   logger,
		entries:  make(map[Key]*entry),
		now:      time.Now,
	}
}

// Select makes agent the current selection. An empty agent keeps the last
// selection (or the registry default on first visit). Switching agents
// replaces the transcript with the remote history of the stored session.
func (c *Controller) Select(ctx context.Context, key Key, agent string) (View, error) {
	e := c.entry(key)
	e.mu.Lock()
	c.ensureReady(ctx, key, e)

	if agent == "" {
		agent = e.state.LastSelectedAgent
		if !c.agents.Contains(agent) {
			agent = c.agents.Default()
		}
	}
	if !c.agents.Contains(agent) {
		e.mu.Unlock()
		return View{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
	}

	changed := c.selectLocked(ctx, e, agent)
	view := c.viewLocked(e, true)
	e.mu.Unlock()

	if changed {
		c.notify(key, agent)
	}
	return view, nil
}

// Validate checks a chat turn without running it.
func (c *Controller) Validate(agent, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyMessage
	}
	if !c.agents.Contains(agent) {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
	}
	return nil
}

// Submit runs one chat turn for agent. The user message is appended before
// the orchestrator is called; the profile is saved after the reply.
func (c *Controller) Submit(ctx context.Context, key Key, agent, prompt string) (View, error) {
	if err := c.Validate(agent, prompt); err != nil {
		return View{}, err
	}

	e := c.entry(key)
	e.mu.Lock()
	c.ensureReady(ctx, key, e)
	c.selectLocked(ctx, e, agent)

	st := &e.state
	st.Transcript = append(st.Transcript, domain.Message{Role: domain.RoleUser, Content: prompt})
	currentSession := st.Profile.SessionFor(agent)

	reply := c.orch.Send(ctx, agent, prompt, st.Profile.UserID, currentSession)
	if sid, ok := reply.NewSessionID(); ok {
		st.Profile.SetSession(agent, sid)
		if sid != currentSession {
			c.logger.Info("Agent session recorded", "agent", agent, "user_id", st.Profile.UserID, "session_id", sid)
		}
	}
	st.Transcript = append(st.Transcript, domain.Message{Role: domain.RoleAssistant, Content: reply.Text()})

	if !e.loaded {
		c.logger.Warn("Skipping profile save, stored profile was not read", "profile_key", key.Profile)
	} else if err := c.profiles.Save(ctx, key.Profile, st.Profile); err != nil {
		c.logger.Error("Failed to persist profile", "profile_key", key.Profile, "error", err)
		st.Notice = fmt.Sprintf("Failed to save your sessions: %v", err)
	}

	view := c.viewLocked(e, false)
	e.mu.Unlock()

	c.notify(key, agent)
	return view, nil
}

// snapshot returns a copy of the state for key, if it exists.
func (c *Controller) snapshot(key Key) (State, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return State{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Profile:           e.state.Profile.Clone(),
		Transcript:        append([]domain.Message(nil), e.state.Transcript...),
		LastSelectedAgent: e.state.LastSelectedAgent,
		Notice:            e.state.Notice,
	}, true
}

// EvictIdle drops browser-session states unused for longer than idle.
func (c *Controller) EvictIdle(idle time.Duration) int {
	cutoff := c.now().Add(-idle)

	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for k, e := range c.entries {
		if !e.lastUsed.Before(cutoff) || !e.mu.TryLock() {
			continue
		}
		delete(c.entries, k)
		e.mu.Unlock()
		evicted++
	}
	return evicted
}

// size returns the number of live browser-session states.
func (c *Controller) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Controller) entry(key Key) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.lastUsed = c.now()
	return e
}

// ensureReady performs the one-time Uninitialized -> Ready transition. If
// the stored profile could not be read, it is retried on later calls.
func (c *Controller) ensureReady(ctx context.Context, key Key, e *entry) {
	if !e.ready {
		e.state = State{Transcript: []domain.Message{}}
		e.ready = true
		c.loadProfile(ctx, key, e)
		c.logger.Info("Chat state initialized", "profile_key", key.Profile, "user_id", e.state.Profile.UserID)
		return
	}
	if !e.loaded {
		c.loadProfile(ctx, key, e)
	}
}

func (c *Controller) loadProfile(ctx context.Context, key Key, e *entry) {
	p, err := c.profiles.Load(ctx, key.Profile)
	if err != nil {
		// Keep the placeholder identity stable across retries.
		if e.state.Profile.UserID == "" {
			e.state.Profile = p
		}
		e.state.Notice = fmt.Sprintf("Failed to load your saved sessions: %v", err)
		return
	}
	e.state.Profile = p
	e.loaded = true
}

// selectLocked resumes agent's history if it differs from the last selection.
func (c *Controller) selectLocked(ctx context.Context, e *entry, agent string) bool {
	st := &e.state
	if st.LastSelectedAgent == agent {
		return false
	}
	st.LastSelectedAgent = agent

	sessionID := st.Profile.SessionFor(agent)
	messages, err := c.history.Fetch(ctx, agent, st.Profile.UserID, sessionID)
	if err != nil {
		st.Notice = fmt.Sprintf("Failed to fetch history from session server: %v", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	st.Transcript = messages
	return true
}

// viewLocked derives a View. A consumed notice is shown only once; Submit
// leaves it in place so the page rendered after the redirect still shows it.
func (c *Controller) viewLocked(e *entry, consume bool) View {
	st := &e.state
	v := View{
		Agent:     st.LastSelectedAgent,
		Agents:    c.agents.Names(),
		UserID:    st.Profile.UserID,
		SessionID: st.Profile.SessionFor(st.LastSelectedAgent),
		Messages:  append([]domain.Message{}, st.Transcript...),
		Notice:    st.Notice,
	}
	if consume {
		st.Notice = ""
	}
	return v
}

func (c *Controller) notify(key Key, agent string) {
	if c.notifier != nil {
		c.notifier.StateChanged(key.String(), agent)
	}
}

// KeyFromContext builds the state key from request identity.
func KeyFromContext(ctx context.Context) Key {
	return Key{
		Profile: identity.ProfileKeyFromContext(ctx),
		Session: identity.SessionKeyFromContext(ctx),
	}
}
