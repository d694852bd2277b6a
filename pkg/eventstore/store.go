// Package eventstore persists accepted security events. The store is
// append-only and keyed by the derived event ID: replaying an input
// yields the same ID, so the first writer wins and later duplicates are
// discarded.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// ErrNotFound is returned by GetByID for unknown event IDs.
var ErrNotFound = errors.New("security event not found")

// QueryFilter selects events by time range with optional type and risk
// filters. Zero values mean "no constraint"; Limit 0 means no limit.
type QueryFilter struct {
	From      time.Time
	To        time.Time
	EventType models.EventType
	RiskLevel models.RiskLevel
	Limit     int
	Offset    int
}

// Store is the append-only persistence interface. Implementations must
// be safe for concurrent readers and writers.
type Store interface {
	// Append persists the event. It returns false when an event with
	// the same ID already exists; the stored event is left untouched.
	Append(ctx context.Context, se *models.SecurityEvent) (bool, error)

	// GetByID returns the stored event or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.SecurityEvent, error)

	// Query returns matching events ordered by timestamp ascending,
	// ties broken by ID.
	Query(ctx context.Context, f QueryFilter) ([]*models.SecurityEvent, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int, error)
}
