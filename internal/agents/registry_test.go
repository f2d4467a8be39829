package agents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry([]string{"greeting_agent", " calc_agent ", "", "greeting_agent", "jarvis_agent"})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "greeting_agent,calc_agent,jarvis_agent" {
		t.Fatalf("unexpected names %q", got)
	}
	if r.Default() != "greeting_agent" {
		t.Fatalf("expected first agent as default, got %q", r.Default())
	}
	if !r.Contains("calc_agent") || r.Contains("unknown_agent") {
		t.Fatal("Contains returned wrong result")
	}
}

func TestNewRegistryRejectsInvalid(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error for empty set")
	}
	if _, err := NewRegistry([]string{"../etc"}); err == nil {
		t.Fatal("expected error for invalid name")
	}
}

func TestNamesReturnsCopy(t *testing.T) {
	r, _ := NewRegistry([]string{"a", "b"})
	names := r.Names()
	names[0] = "mutated"
	if r.Names()[0] != "a" {
		t.Fatal("Names must not expose internal slice")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte("agents:\n  - calc_agent\n  - jarvis_agent\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "calc_agent,jarvis_agent" {
		t.Fatalf("unexpected names %q", got)
	}
}

func TestReplaceKeepsCurrentOnError(t *testing.T) {
	r, _ := NewRegistry([]string{"calc_agent"})
	if err := r.Replace([]string{}); err == nil {
		t.Fatal("expected error")
	}
	if !r.Contains("calc_agent") {
		t.Fatal("registry changed after rejected replace")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte("agents: [calc_agent]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Watch(ctx, path, nil); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("agents: [calc_agent, new_agent]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.Contains("new_agent") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("registry was not reloaded, have %v", r.Names())
}
