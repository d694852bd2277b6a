package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// MemoryStore is an in-process cosine index. It holds the full record
// set behind an RWMutex; searches scan linearly, which is comfortably
// fast for the 24h retention horizon the pipeline keeps (tens of
// thousands of records).
type MemoryStore struct {
	dimension int

	mu      sync.RWMutex
	created bool
	records map[string]*record
}

type record struct {
	event  models.LogEvent
	vector []float32
	norm   float64
}

// NewMemoryStore creates an empty store with the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]*record),
	}
}

// EnsureCollection is idempotent; for the in-memory store it only marks
// the collection created.
func (s *MemoryStore) EnsureCollection(_ context.Context) error {
	s.mu.Lock()
	s.created = true
	s.mu.Unlock()
	return nil
}

// Upsert stores or overwrites the record keyed by the event's unique ID.
func (s *MemoryStore) Upsert(ctx context.Context, e models.LogEvent, vector []float32) error {
	return s.BatchUpsert(ctx, []Point{{Event: e, Vector: vector}})
}

// BatchUpsert stores all points under one lock acquisition. Dimension is
// validated for the whole batch before anything is written.
func (s *MemoryStore) BatchUpsert(_ context.Context, points []Point) error {
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d for %s",
				ErrDimensionMismatch, s.dimension, len(p.Vector), p.Event.UniqueID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		s.records[p.Event.UniqueID] = &record{
			event:  p.Event,
			vector: vec,
			norm:   l2norm(vec),
		}
	}
	return nil
}

// Search scans all records and returns the top k by cosine similarity,
// descending, with ascending unique ID as the stable tie-break.
func (s *MemoryStore) Search(_ context.Context, vector []float32, k int) ([]SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(vector))
	}
	if k < 1 {
		return nil, nil
	}
	qnorm := l2norm(vector)

	type scored struct {
		id    string
		event models.LogEvent
		score float64
	}

	s.mu.RLock()
	hits := make([]scored, 0, len(s.records))
	for id, r := range s.records {
		hits = append(hits, scored{id: id, event: r.event, score: cosine(vector, qnorm, r.vector, r.norm)})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = SearchResult{Event: h.event, Score: h.score}
	}
	return out, nil
}

// HasCoverage reports whether the oldest stored record is at least
// `window` old. An empty store has no coverage.
func (s *MemoryStore) HasCoverage(_ context.Context, window time.Duration) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest time.Time
	for _, r := range s.records {
		if oldest.IsZero() || r.event.Timestamp.Before(oldest) {
			oldest = r.event.Timestamp
		}
	}
	if oldest.IsZero() {
		return false, nil
	}
	return time.Since(oldest) >= window, nil
}

// DeleteOlderThan removes records with timestamps before now-window and
// returns how many were removed.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, r := range s.records {
		if r.event.Timestamp.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
