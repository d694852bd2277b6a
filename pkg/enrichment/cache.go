package enrichment

import (
	"context"
	"sync"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// Cache stores resolved enrichment per address with a TTL. Get misses
// are never errors; a broken cache backend only costs lookups.
type Cache interface {
	Get(ctx context.Context, addr string) (*models.IPEnrichment, bool)
	Set(ctx context.Context, addr string, e *models.IPEnrichment)
}

type memoryEntry struct {
	enrichment models.IPEnrichment
	fetchedAt  time.Time
}

// MemoryCache is a thread-safe in-process cache with TTL expiration.
// Expired entries are cleaned up lazily on Get; no background goroutine.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
}

// NewMemoryCache creates a cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
	}
}

// Get returns a copy of the cached enrichment if present and fresh.
func (c *MemoryCache) Get(_ context.Context, addr string) (*models.IPEnrichment, bool) {
	c.mu.RLock()
	entry, ok := c.entries[addr]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		// Expired — clean up lazily. Re-check under the write lock: a
		// concurrent Set may have replaced the entry with a fresh one.
		c.mu.Lock()
		if current, ok := c.entries[addr]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, addr)
		}
		c.mu.Unlock()
		return nil, false
	}

	out := entry.enrichment
	return &out, true
}

// Set stores a copy of the enrichment with the current timestamp.
func (c *MemoryCache) Set(_ context.Context, addr string, e *models.IPEnrichment) {
	if e == nil {
		return
	}
	c.mu.Lock()
	c.entries[addr] = &memoryEntry{enrichment: *e, fetchedAt: time.Now()}
	c.mu.Unlock()
}
