package enrichment

import (
	"context"
	"errors"

	"github.com/castellan/castellan/pkg/models"
)

// ErrEnrichmentUnavailable wraps provider transport failures.
var ErrEnrichmentUnavailable = errors.New("enrichment provider unavailable")

// Provider resolves a public address to geo/ASN metadata. Private
// addresses never reach the provider; the service handles them locally.
type Provider interface {
	Lookup(ctx context.Context, addr string) (*models.IPEnrichment, error)
}

// StaticProvider resolves from a fixed table. It backs deployments
// without a GeoIP collaborator and all of the tests. Unknown addresses
// resolve to a bare record rather than an error.
type StaticProvider struct {
	table map[string]models.IPEnrichment
}

// NewStaticProvider creates a provider over the given table. The map is
// used as-is; callers should not mutate it afterwards.
func NewStaticProvider(table map[string]models.IPEnrichment) *StaticProvider {
	if table == nil {
		table = map[string]models.IPEnrichment{}
	}
	return &StaticProvider{table: table}
}

// Lookup returns a copy of the table entry, or a bare record for
// unknown addresses.
func (p *StaticProvider) Lookup(_ context.Context, addr string) (*models.IPEnrichment, error) {
	if e, ok := p.table[addr]; ok {
		out := e
		out.IP = addr
		return &out, nil
	}
	return &models.IPEnrichment{IP: addr}, nil
}
