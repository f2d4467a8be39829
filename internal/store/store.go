// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"
)

// Repository is a server-side stand-in for browser local storage: every
// browser profile owns a flat namespace of string items.
type Repository interface {
	// GetItem returns the value stored under itemKey for a profile.
	// found is false when nothing is stored.
	GetItem(ctx context.Context, profileKey, itemKey string) (value string, found bool, err error)

	// SetItem creates or overwrites an item.
	SetItem(ctx context.Context, profileKey, itemKey, value string) error

	// DeleteStaleItems removes items not written within ttl.
	DeleteStaleItems(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
