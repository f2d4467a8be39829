package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/agent-console/internal/domain"
)

func TestMarkdownRendersAndSanitizes(t *testing.T) {
	got := string(Markdown("**bold** <script>alert(1)</script>\n\n| a | b |\n|---|---|\n| 1 | 2 |"))
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Fatalf("expected markdown rendering, got %q", got)
	}
	if strings.Contains(got, "<script>") {
		t.Fatalf("expected script to be stripped, got %q", got)
	}
	if !strings.Contains(got, "<table>") {
		t.Fatalf("expected GFM table, got %q", got)
	}
}

func TestRenderChatPage(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	data := struct {
		Agent    string
		Agents   []string
		Messages []domain.Message
		Notice   string
	}{
		Agent:  "calc_agent",
		Agents: []string{"greeting_agent", "calc_agent"},
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "2+2"},
			{Role: domain.RoleAssistant, Content: "**4**"},
		},
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := r.Render(rr, req, "chat.html", "Chat", http.StatusOK, data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`<option value="calc_agent" selected>`,
		"Chatting with: <strong>calc_agent</strong>",
		"<strong>4</strong>",
		"Ask calc_agent a question...",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestStaticHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
