// Package instructions reads and overwrites per-agent instruction documents
// in an object store.
package instructions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"
)

// ContentType is the content type written with every instructions document.
const ContentType = "text/plain"

// ErrNotFound is returned by buckets when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Bucket is the minimal object-store surface used for instructions.
type Bucket interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// ObjectKey returns the object path for an agent's instructions.
func ObjectKey(baseFolder, agent string) string {
	return path.Join(baseFolder, agent, agent+"_instructions.txt")
}

// FetchErrorText is the placeholder shown when instructions cannot be loaded.
func FetchErrorText(agent string) string {
	return fmt.Sprintf("Error: Could not load instructions for %s.", agent)
}

// Client fetches and updates instructions. Writes are last-writer-wins.
type Client struct {
	bucket     Bucket
	baseFolder string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates an instructions client over a bucket.
func NewClient(bucket Bucket, baseFolder string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		bucket:     bucket,
		baseFolder: baseFolder,
		timeout:    timeout,
		logger:     logger,
	}
}

// Fetch returns the agent's instructions, or FetchErrorText on any failure.
func (c *Client) Fetch(ctx context.Context, agent string) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := ObjectKey(c.baseFolder, agent)
	data, err := c.bucket.Read(ctx, key)
	if err != nil {
		c.logger.Error("Failed to fetch instructions", "agent", agent, "key", key, "error", err)
		return FetchErrorText(agent)
	}
	return string(data)
}

// Update overwrites the agent's instructions.
func (c *Client) Update(ctx context.Context, agent, content string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := ObjectKey(c.baseFolder, agent)
	if err := c.bucket.Write(ctx, key, []byte(content), ContentType); err != nil {
		c.logger.Error("Failed to update instructions", "agent", agent, "key", key, "error", err)
		return fmt.Errorf("update instructions for %s: %w", agent, err)
	}
	c.logger.Info("Instructions updated", "agent", agent, "key", key, "bytes", len(content))
	return nil
}
