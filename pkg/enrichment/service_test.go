package enrichment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/castellan/pkg/models"
)

func TestExtractAddress_AuthEventPrefersSourceField(t *testing.T) {
	e := models.LogEvent{
		Channel: "Security",
		EventID: 4625,
		Message: "An account failed to log on.\n" +
			"Workstation Name: WS-001 at 10.0.0.5\n" +
			"Source Network Address: 203.0.113.7\nSource Port: 52113",
	}
	assert.Equal(t, "203.0.113.7", ExtractAddress(e))
}

func TestExtractAddress_FirstNonLoopback(t *testing.T) {
	e := models.LogEvent{
		Channel: "Application",
		EventID: 1000,
		Message: "connection from 127.0.0.1 then 192.168.1.100 established",
	}
	assert.Equal(t, "192.168.1.100", ExtractAddress(e))
}

func TestExtractAddress_IPv6(t *testing.T) {
	e := models.LogEvent{
		Channel: "Application",
		EventID: 1000,
		Message: "peer 2001:db8::1 connected",
	}
	assert.Equal(t, "2001:db8::1", ExtractAddress(e))
}

func TestExtractAddress_NoAddress(t *testing.T) {
	assert.Equal(t, "", ExtractAddress(models.LogEvent{Message: "nothing here"}))
}

func TestIsPrivate(t *testing.T) {
	assert.True(t, IsPrivate("192.168.1.100"))
	assert.True(t, IsPrivate("10.0.0.1"))
	assert.True(t, IsPrivate("127.0.0.1"))
	assert.True(t, IsPrivate("not-an-ip"))
	assert.False(t, IsPrivate("203.0.113.7"))
}

type countingProvider struct {
	calls  atomic.Int64
	result *models.IPEnrichment
	err    error
}

func (p *countingProvider) Lookup(_ context.Context, addr string) (*models.IPEnrichment, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	out := *p.result
	out.IP = addr
	return &out, nil
}

func TestService_LookupAndCache(t *testing.T) {
	provider := &countingProvider{result: &models.IPEnrichment{
		Country: "Netherlands", CountryCode: "NL", ASN: 64496, IsHighRisk: true,
		RiskFactors: []string{"known scanner"},
	}}
	svc := NewService(provider, NewMemoryCache(time.Minute), time.Second)

	e := models.LogEvent{
		Channel: "Security", EventID: 4625,
		Message: "Source Network Address: 203.0.113.7",
	}

	first := svc.Enrich(context.Background(), e)
	require.NotNil(t, first)
	assert.Equal(t, "203.0.113.7", first.IP)
	assert.Equal(t, "NL", first.CountryCode)
	assert.True(t, first.IsHighRisk)

	second := svc.Enrich(context.Background(), e)
	require.NotNil(t, second)
	assert.EqualValues(t, 1, provider.calls.Load(), "second lookup must come from cache")
}

func TestService_PrivateAddressSkipsProvider(t *testing.T) {
	provider := &countingProvider{result: &models.IPEnrichment{}}
	svc := NewService(provider, NewMemoryCache(time.Minute), time.Second)

	got := svc.Enrich(context.Background(), models.LogEvent{
		Channel: "Application", EventID: 7, Message: "peer 192.168.1.100 connected",
	})
	require.NotNil(t, got)
	assert.True(t, got.IsPrivate)
	assert.EqualValues(t, 0, provider.calls.Load())
}

func TestService_ProviderFailureReturnsNil(t *testing.T) {
	provider := &countingProvider{err: errors.New("boom")}
	svc := NewService(provider, nil, time.Second)

	got := svc.Enrich(context.Background(), models.LogEvent{
		Channel: "Application", EventID: 7, Message: "peer 203.0.113.9 connected",
	})
	assert.Nil(t, got)
}

func TestService_NoAddressReturnsNil(t *testing.T) {
	svc := NewService(NewStaticProvider(nil), nil, time.Second)
	assert.Nil(t, svc.Enrich(context.Background(), models.LogEvent{Message: "no addresses"}))
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(50 * time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "1.2.3.4", &models.IPEnrichment{IP: "1.2.3.4"})
	_, ok := c.Get(ctx, "1.2.3.4")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(ctx, "1.2.3.4")
	assert.False(t, ok)
}
