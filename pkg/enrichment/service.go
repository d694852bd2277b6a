package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// Service extracts the candidate address from an event and resolves it
// through the cache and provider under a short deadline. Enrich never
// returns an error: a nil result means "no enrichment".
type Service struct {
	provider Provider
	cache    Cache
	deadline time.Duration
}

// NewService creates an enrichment service. deadline bounds each
// provider lookup (default 2s when non-positive).
func NewService(provider Provider, cache Cache, deadline time.Duration) *Service {
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	return &Service{provider: provider, cache: cache, deadline: deadline}
}

// Enrich resolves the event's candidate address. Private addresses are
// labelled locally without a provider round-trip.
func (s *Service) Enrich(ctx context.Context, e models.LogEvent) *models.IPEnrichment {
	addr := ExtractAddress(e)
	if addr == "" {
		return nil
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, addr); ok {
			return cached
		}
	}

	var result *models.IPEnrichment
	if IsPrivate(addr) {
		result = &models.IPEnrichment{IP: addr, IsPrivate: true}
	} else {
		lookupCtx, cancel := context.WithTimeout(ctx, s.deadline)
		defer cancel()

		resolved, err := s.provider.Lookup(lookupCtx, addr)
		if err != nil {
			slog.Debug("Enrichment lookup failed", "addr", addr, "error", err)
			return nil
		}
		result = resolved
	}

	if s.cache != nil {
		s.cache.Set(ctx, addr, result)
	}
	return result
}
