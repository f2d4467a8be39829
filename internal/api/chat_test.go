package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agent-console/internal/chat"
	"github.com/ashureev/agent-console/internal/domain"
	"github.com/ashureev/agent-console/internal/identity"
	"github.com/ashureev/agent-console/web"
	"github.com/go-chi/chi/v5"
)

var testAgents = []string{"greeting_agent", "calc_agent"}

type fakeChat struct {
	mu      sync.Mutex
	agent   string
	prompts []string
	keys    []chat.Key
}

func (f *fakeChat) known(agent string) bool {
	for _, a := range testAgents {
		if a == agent {
			return true
		}
	}
	return false
}

func (f *fakeChat) view() chat.View {
	msgs := []domain.Message{}
	for _, p := range f.prompts {
		msgs = append(msgs,
			domain.Message{Role: domain.RoleUser, Content: p},
			domain.Message{Role: domain.RoleAssistant, Content: "echo: " + p},
		)
	}
	return chat.View{Agent: f.agent, Agents: testAgents, UserID: "console-user-1", Messages: msgs}
}

func (f *fakeChat) Select(_ context.Context, key chat.Key, agent string) (chat.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if agent == "" {
		agent = testAgents[0]
	}
	if !f.known(agent) {
		return chat.View{}, fmt.Errorf("%w: %s", chat.ErrUnknownAgent, agent)
	}
	f.agent = agent
	return f.view(), nil
}

func (f *fakeChat) Validate(agent, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return chat.ErrEmptyMessage
	}
	if !f.known(agent) {
		return fmt.Errorf("%w: %s", chat.ErrUnknownAgent, agent)
	}
	return nil
}

func (f *fakeChat) Submit(_ context.Context, key chat.Key, agent, prompt string) (chat.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if strings.TrimSpace(prompt) == "" {
		return chat.View{}, chat.ErrEmptyMessage
	}
	if !f.known(agent) {
		return chat.View{}, fmt.Errorf("%w: %s", chat.ErrUnknownAgent, agent)
	}
	f.agent = agent
	f.prompts = append(f.prompts, prompt)
	return f.view(), nil
}

func newTestRouter(t *testing.T, svc ChatService, limiter *RateLimiter) chi.Router {
	t.Helper()
	pages, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithKeys(req.Context(), "profile_a", "tab_a")))
		})
	})
	NewChatHandler(NewHandler(pages, nil), svc, limiter).RegisterRoutes(r)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestChatPageRendersSelectedAgent(t *testing.T) {
	svc := &fakeChat{}
	r := newTestRouter(t, svc, nil)

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/?agent=calc_agent", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Chatting with: <strong>calc_agent</strong>") {
		t.Fatalf("expected selected agent in page, got %s", rr.Body.String())
	}
	if got := svc.keys[0]; got != (chat.Key{Profile: "profile_a", Session: "tab_a"}) {
		t.Fatalf("expected request identity key, got %+v", got)
	}
}

func TestChatPageUnknownAgentRedirects(t *testing.T) {
	r := newTestRouter(t, &fakeChat{}, nil)

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/?agent=nope", nil))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestSubmitFormRedirectsToAgent(t *testing.T) {
	svc := &fakeChat{}
	r := newTestRouter(t, svc, nil)

	rr := serve(r, postForm("/chat", url.Values{"agent": {"calc_agent"}, "prompt": {"2+2"}}))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/?agent=calc_agent" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	if len(svc.prompts) != 1 || svc.prompts[0] != "2+2" {
		t.Fatalf("expected prompt submitted, got %v", svc.prompts)
	}
}

func TestSubmitFormEmptyPromptIsIgnored(t *testing.T) {
	svc := &fakeChat{}
	r := newTestRouter(t, svc, nil)

	rr := serve(r, postForm("/chat", url.Values{"agent": {"calc_agent"}, "prompt": {"   "}}))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if len(svc.prompts) != 0 {
		t.Fatalf("expected no submission, got %v", svc.prompts)
	}
}

func TestSubmitFormUnknownAgent(t *testing.T) {
	r := newTestRouter(t, &fakeChat{}, nil)

	rr := serve(r, postForm("/chat", url.Values{"agent": {"nope"}, "prompt": {"hi"}}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPostMessageJSON(t *testing.T) {
	r := newTestRouter(t, &fakeChat{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages",
		strings.NewReader(`{"agent":"calc_agent","message":"2+2"}`))
	rr := serve(r, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var view chat.View
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Agent != "calc_agent" || len(view.Messages) != 2 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Messages[1].Content != "echo: 2+2" {
		t.Fatalf("unexpected reply %q", view.Messages[1].Content)
	}
}

func TestPostMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"empty message", `{"agent":"calc_agent","message":""}`, http.StatusBadRequest},
		{"unknown agent", `{"agent":"nope","message":"hi"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeChat{}, nil)
			rr := serve(r, httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(tt.body)))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestGetViewJSON(t *testing.T) {
	r := newTestRouter(t, &fakeChat{}, nil)

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/api/chat?agent=greeting_agent", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var view chat.View
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Agent != "greeting_agent" || len(view.Agents) != 2 {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	svc := &fakeChat{}
	r := newTestRouter(t, svc, NewRateLimiter(1, 1))

	first := serve(r, postForm("/chat", url.Values{"agent": {"calc_agent"}, "prompt": {"one"}}))
	if first.Code != http.StatusSeeOther {
		t.Fatalf("expected first submit to pass, got %d", first.Code)
	}
	second := serve(r, httptest.NewRequest(http.MethodPost, "/api/chat/messages",
		strings.NewReader(`{"agent":"calc_agent","message":"two"}`)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if len(svc.prompts) != 1 {
		t.Fatalf("expected only one submission, got %v", svc.prompts)
	}
}

func TestInvalidSubmitsDoNotSpendRateLimit(t *testing.T) {
	svc := &fakeChat{}
	r := newTestRouter(t, svc, NewRateLimiter(1, 1))

	for i := 0; i < 3; i++ {
		rr := serve(r, postForm("/chat", url.Values{"agent": {"calc_agent"}, "prompt": {"  "}}))
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("blank submit %d: expected 303, got %d", i, rr.Code)
		}
	}
	rr := serve(r, httptest.NewRequest(http.MethodPost, "/api/chat/messages",
		strings.NewReader(`{"agent":"nope","message":"hi"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown agent, got %d", rr.Code)
	}

	rr = serve(r, postForm("/chat", url.Values{"agent": {"calc_agent"}, "prompt": {"2+2"}}))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected valid submit to pass after invalid ones, got %d", rr.Code)
	}
	if len(svc.prompts) != 1 {
		t.Fatalf("expected one submission, got %v", svc.prompts)
	}
}

func TestRateLimiterPerKeyAndEviction(t *testing.T) {
	l := NewRateLimiter(60, 1)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || l.Allow("a") {
		t.Fatal("expected burst of one for key a")
	}
	if !l.Allow("b") {
		t.Fatal("expected independent bucket for key b")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatal("expected token refill after one second")
	}

	now = now.Add(time.Hour)
	if n := l.EvictIdle(time.Minute); n != 2 {
		t.Fatalf("expected 2 evictions, got %d", n)
	}
}
