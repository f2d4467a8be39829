// Package history reads prior conversation turns from the agent-session server.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/agent-console/internal/domain"
)

const (
	authorUser  = "USER"
	authorModel = "MODEL"
)

type sessionResponse struct {
	Events []event `json:"events"`
}

type event struct {
	Author  string   `json:"author"`
	Content *content `json:"content"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// Config holds configuration for the history fetcher.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Fetcher retrieves session events and flattens them into transcript messages.
type Fetcher struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewFetcher creates a new history fetcher.
func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Fetch returns the user/assistant turns of a session in server order.
// An empty sessionID returns an empty transcript without a network call.
// On failure the transcript is empty and the error is returned for reporting.
func (f *Fetcher) Fetch(ctx context.Context, agent, userID, sessionID string) ([]domain.Message, error) {
	if sessionID == "" {
		return []domain.Message{}, nil
	}

	messages, err := f.fetch(ctx, agent, userID, sessionID)
	if err != nil {
		f.logger.Error("Failed to fetch history from session server",
			"agent", agent,
			"user_id", userID,
			"session_id", sessionID,
			"error", err)
		return []domain.Message{}, fmt.Errorf("fetch history: %w", err)
	}
	return messages, nil
}

func (f *Fetcher) fetch(ctx context.Context, agent, userID, sessionID string) ([]domain.Message, error) {
	endpoint := fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s",
		f.baseURL,
		url.PathEscape(agent),
		url.PathEscape(userID),
		url.PathEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug("failed to close history response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return normalize(session.Events), nil
}

// normalize keeps user and model events that carry text, mapping them to roles.
// Only the first content part is considered.
func normalize(events []event) []domain.Message {
	messages := make([]domain.Message, 0, len(events))
	for _, ev := range events {
		var role domain.Role
		switch ev.Author {
		case authorUser:
			role = domain.RoleUser
		case authorModel:
			role = domain.RoleAssistant
		default:
			continue
		}
		if ev.Content == nil || len(ev.Content.Parts) == 0 {
			continue
		}
		text := ev.Content.Parts[0].Text
		if text == "" {
			continue
		}
		messages = append(messages, domain.Message{Role: role, Content: text})
	}
	return messages
}
