package eventstore

import (
	"context"
	"sort"
	"sync"

	"github.com/castellan/castellan/pkg/models"
)

// MemoryStore is the in-process store used by default and in tests.
// Events are deep-enough copied on the way in and out so callers can
// never mutate stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*models.SecurityEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*models.SecurityEvent)}
}

// Append stores the event unless its ID is already present.
func (s *MemoryStore) Append(_ context.Context, se *models.SecurityEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[se.ID]; exists {
		return false, nil
	}
	s.events[se.ID] = copyEvent(se)
	return true, nil
}

// GetByID returns a copy of the stored event.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	se, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(se), nil
}

// Query filters, orders, and paginates.
func (s *MemoryStore) Query(_ context.Context, f QueryFilter) ([]*models.SecurityEvent, error) {
	s.mu.RLock()
	matched := make([]*models.SecurityEvent, 0, len(s.events))
	for _, se := range s.events {
		if !f.From.IsZero() && se.Event.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && se.Event.Timestamp.After(f.To) {
			continue
		}
		if f.EventType != "" && se.EventType != f.EventType {
			continue
		}
		if f.RiskLevel != "" && se.RiskLevel != f.RiskLevel {
			continue
		}
		matched = append(matched, se)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].Event.Timestamp, matched[j].Event.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return matched[i].ID < matched[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]*models.SecurityEvent, len(matched))
	for i, se := range matched {
		out[i] = copyEvent(se)
	}
	return out, nil
}

// Count returns the number of stored events.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

func copyEvent(se *models.SecurityEvent) *models.SecurityEvent {
	out := *se
	out.MitreTechniques = append([]string(nil), se.MitreTechniques...)
	out.RecommendedActions = append([]string(nil), se.RecommendedActions...)
	if se.Enrichment != nil {
		e := *se.Enrichment
		e.RiskFactors = append([]string(nil), se.Enrichment.RiskFactors...)
		out.Enrichment = &e
	}
	return &out
}
