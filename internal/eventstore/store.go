// Package eventstore persists an append-only journal of build lifecycle
// events so a finished process leaves an auditable trail per build.
package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, buildID, eventType string, payload []byte, metadata map[string]string) error

	// GetByBuildID retrieves all events for a specific build in append order.
	GetByBuildID(ctx context.Context, buildID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// DeleteByBuildID removes all events for a build; used by retention.
	DeleteByBuildID(ctx context.Context, buildID string) error

	// Close closes the store and releases resources.
	Close() error
}
