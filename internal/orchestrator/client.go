// Package orchestrator sends chat turns to the workflow orchestrator webhook.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// NoContentMessage is shown when the orchestrator reply carries no message.
const NoContentMessage = "Error: No message content."

const maxResponseBody = 4 << 20

var (
	// ErrMissingEnvelope is returned when the outer body has no usable "data" string.
	ErrMissingEnvelope = errors.New("'data' key not found")
	// ErrMalformedEnvelope is returned when the "data" string is not a JSON object.
	ErrMalformedEnvelope = errors.New("malformed 'data' envelope")
	// ErrUnexpectedStatus is returned for non-2xx webhook responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Reply is the inner payload of the orchestrator envelope.
type Reply struct {
	Message   *string `json:"message,omitempty"`
	SessionID *string `json:"session_id,omitempty"`
}

// Text returns the reply message, or NoContentMessage when absent.
func (r Reply) Text() string {
	if r.Message == nil {
		return NoContentMessage
	}
	return *r.Message
}

// NewSessionID returns the session ID carried by the reply, if any.
func (r Reply) NewSessionID() (string, bool) {
	if r.SessionID == nil {
		return "", false
	}
	return *r.SessionID, true
}

// ErrorReply builds the synthetic reply used for every failed call.
func ErrorReply(cause error) Reply {
	msg := fmt.Sprintf("Error: Could not reach orchestrator. Details: %v", cause)
	return Reply{Message: &msg}
}

type request struct {
	AgentName string  `json:"agent_name"`
	Message   string  `json:"message"`
	UserID    string  `json:"userId"`
	SessionID *string `json:"session_id"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Config holds configuration for the orchestrator client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client posts chat turns to the orchestrator webhook.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a new orchestrator client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Send delivers one chat turn. An empty sessionID starts a fresh conversation.
// Failures never propagate: they come back as an ErrorReply.
func (c *Client) Send(ctx context.Context, agent, message, userID, sessionID string) Reply {
	reply, err := c.call(ctx, agent, message, userID, sessionID)
	if err != nil {
		c.logger.Error("Failed to reach orchestrator",
			"agent", agent,
			"user_id", userID,
			"session_id", sessionID,
			"error", err)
		return ErrorReply(err)
	}
	return reply
}

func (c *Client) call(ctx context.Context, agent, message, userID, sessionID string) (Reply, error) {
	payload := request{AgentName: agent, Message: message, UserID: userID}
	if sessionID != "" {
		payload.SessionID = &sessionID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close orchestrator response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, fmt.Errorf("%w %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	reply, err := DecodeEnvelope(raw)
	if err != nil {
		return Reply{}, err
	}

	c.logger.Info("Orchestrator replied",
		"agent", agent,
		"user_id", userID,
		"duration", time.Since(start),
		"new_session", reply.SessionID != nil)
	return reply, nil
}

// DecodeEnvelope unwraps {"data": "<json>"} into the inner Reply.
func DecodeEnvelope(raw []byte) (Reply, error) {
	var outer envelope
	if err := json.Unmarshal(raw, &outer); err != nil {
		return Reply{}, fmt.Errorf("decode response: %w", err)
	}

	trimmed := bytes.TrimSpace(outer.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Reply{}, ErrMissingEnvelope
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return Reply{}, fmt.Errorf("%w: data is not a string", ErrMissingEnvelope)
	}
	if strings.TrimSpace(inner) == "" {
		return Reply{}, ErrMissingEnvelope
	}

	var reply Reply
	if err := json.Unmarshal([]byte(inner), &reply); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return reply, nil
}
