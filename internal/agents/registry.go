// Package agents holds the enumerated set of agents exposed by the console.
package agents

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// File is the on-disk agents document.
type File struct {
	Agents []string `yaml:"agents"`
}

// Registry is the current agent set. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	names []string
}

// NewRegistry validates names and creates a registry.
func NewRegistry(names []string) (*Registry, error) {
	clean, err := validate(names)
	if err != nil {
		return nil, err
	}
	return &Registry{names: clean}, nil
}

// LoadFile reads a registry from a YAML agents file.
func LoadFile(path string) (*Registry, error) {
	names, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(names)
}

// Names returns a copy of the agent names in display order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Contains reports whether name is a known agent.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.names, name)
}

// Default returns the agent preselected on first visit.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[0]
}

// Replace swaps in a new agent set. Invalid sets are rejected and the
// current set is kept.
func (r *Registry) Replace(names []string) error {
	clean, err := validate(names)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.names = clean
	r.mu.Unlock()
	return nil
}

func readFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file %s: %w", path, err)
	}
	return f.Agents, nil
}

func validate(names []string) ([]string, error) {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !namePattern.MatchString(n) {
			return nil, fmt.Errorf("invalid agent name %q", n)
		}
		if slices.Contains(clean, n) {
			continue
		}
		clean = append(clean, n)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("agent set cannot be empty")
	}
	return clean, nil
}
