package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Orchestrator.Timeout != 90*time.Second {
		t.Errorf("expected orchestrator timeout 90s, got %v", cfg.Orchestrator.Timeout)
	}
	if cfg.SessionServer.Timeout != 30*time.Second {
		t.Errorf("expected history timeout 30s, got %v", cfg.SessionServer.Timeout)
	}
	if strings.Join(cfg.Agents, ",") != "greeting_agent,calc_agent,jarvis_agent" {
		t.Errorf("unexpected default agents: %v", cfg.Agents)
	}
	if cfg.Instructions.UsesGCS() {
		t.Error("expected local instructions directory by default")
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode without FRONTEND_URL")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AGENTS", " calc_agent , ,jarvis_agent")
	t.Setenv("ORCHESTRATOR_TIMEOUT", "5s")
	t.Setenv("INSTRUCTIONS_BUCKET", "agent-context")
	t.Setenv("FRONTEND_URL", "https://console.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if strings.Join(cfg.Agents, ",") != "calc_agent,jarvis_agent" {
		t.Errorf("unexpected agents: %v", cfg.Agents)
	}
	if cfg.Orchestrator.Timeout != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.Orchestrator.Timeout)
	}
	if !cfg.Instructions.UsesGCS() {
		t.Error("expected GCS instructions backend")
	}
	if cfg.IsDevelopment() {
		t.Error("expected production mode for public FRONTEND_URL")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"empty port", "PORT", ""},
		{"relative orchestrator url", "ORCHESTRATOR_URL", "/webhook"},
		{"empty agents", "AGENTS", ","},
		{"zero rate", "CHAT_RATE_PER_MINUTE", "0"},
		{"negative profile ttl", "PROFILE_TTL", "-1h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}
