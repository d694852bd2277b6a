// Package vectorstore maintains the index of recent event embeddings
// used for semantic neighbor lookup. The store owns its records: callers
// always receive copies.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// ErrVectorStoreUnavailable wraps transient transport errors from remote
// store implementations. Callers decide whether to skip or retry.
var ErrVectorStoreUnavailable = errors.New("vector store unavailable")

// ErrDimensionMismatch is returned for vectors whose length does not
// match the collection schema.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Point pairs a LogEvent with its embedding for upsert.
type Point struct {
	Event  models.LogEvent
	Vector []float32
}

// SearchResult is one k-NN hit. Score is cosine similarity, monotone in
// similarity.
type SearchResult struct {
	Event models.LogEvent
	Score float64
}

// Store is the vector index contract. Upserts are at-least-once:
// duplicates by unique ID overwrite. An upsert that has returned is
// visible to any subsequent search on the same logical connection.
type Store interface {
	// EnsureCollection idempotently creates the collection with the
	// store's dimension and cosine distance.
	EnsureCollection(ctx context.Context) error

	Upsert(ctx context.Context, e models.LogEvent, vector []float32) error
	BatchUpsert(ctx context.Context, points []Point) error

	// Search returns up to k nearest records by cosine similarity,
	// ordered by descending score with ascending unique ID breaking ties.
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// HasCoverage reports whether the oldest stored record is at least
	// `window` before now.
	HasCoverage(ctx context.Context, window time.Duration) (bool, error)

	// DeleteOlderThan removes records older than now-window. Safe to
	// run concurrently with upserts; idempotent over quiet intervals.
	DeleteOlderThan(ctx context.Context, window time.Duration) (int, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
