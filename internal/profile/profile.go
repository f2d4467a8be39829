// Package profile loads and saves the per-browser UserProfile document.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
	"github.com/ashureev/agent-console/internal/shared"
	"github.com/ashureev/agent-console/internal/store"
	"github.com/google/uuid"
)

// ItemKey is the single local-storage entry holding the serialized profile.
const ItemKey = "user_profile"

const userIDPrefix = "console-user-"

// Store implements the load/save contract on top of a local-storage repository.
type Store struct {
	repo      store.Repository
	logger    *slog.Logger
	newUserID func() string
}

// NewStore creates a profile store.
func NewStore(repo store.Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:      repo,
		logger:    logger,
		newUserID: NewUserID,
	}
}

// NewUserID generates a random client user identifier.
func NewUserID() string {
	return userIDPrefix + uuid.NewString()
}

// Load returns the stored profile. A missing or malformed entry yields a
// fresh profile. A read that still fails after retries returns a fresh
// profile together with the error; callers must not save that profile over
// the stored one.
func (s *Store) Load(ctx context.Context, profileKey string) (domain.UserProfile, error) {
	var (
		raw   string
		found bool
	)
	err := shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, func() error {
		var getErr error
		raw, found, getErr = s.repo.GetItem(ctx, profileKey, ItemKey)
		return getErr
	})
	if err != nil {
		s.logger.Error("Failed to read stored profile", "profile_key", profileKey, "error", err)
		return s.defaults(), fmt.Errorf("load profile: %w", err)
	}
	if !found || raw == "" {
		return s.defaults(), nil
	}

	var p domain.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("Stored profile is malformed, using defaults", "profile_key", profileKey, "error", err)
		return s.defaults(), nil
	}
	if p.UserID == "" {
		p.UserID = s.newUserID()
	}
	if p.AgentSessions == nil {
		p.AgentSessions = make(map[string]string)
	}
	return p, nil
}

// Save serializes the whole profile and overwrites the stored entry.
func (s *Store) Save(ctx context.Context, profileKey string, p domain.UserProfile) error {
	if p.AgentSessions == nil {
		p.AgentSessions = make(map[string]string)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	err = shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, func() error {
		return s.repo.SetItem(ctx, profileKey, ItemKey, string(data))
	})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) defaults() domain.UserProfile {
	return domain.UserProfile{
		UserID:        s.newUserID(),
		AgentSessions: make(map[string]string),
	}
}
