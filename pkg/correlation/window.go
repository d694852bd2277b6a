package correlation

import (
	"sort"
	"sync"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// entry is the projection of a SecurityEvent kept in the windows. Small
// on purpose: a window holds up to maxEventsPerKey of these.
type entry struct {
	uniqueID  string
	ts        time.Time
	eventType models.EventType
	host      string
	user      string
	dest      string
}

// window is one per-key queue of entries in timestamp-ascending order.
// Each window has its own lock; the engine never holds a lock across
// more than one window.
type window struct {
	mu      sync.Mutex
	entries []entry
}

// add inserts the entry in timestamp order, then evicts entries older
// than retention (relative to the newest timestamp in the window) and
// trims the queue to maxEvents, oldest first.
func (w *window) add(e entry, retention time.Duration, maxEvents int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].ts.After(e.ts)
	})
	w.entries = append(w.entries, entry{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = e

	newest := w.entries[len(w.entries)-1].ts
	cutoff := newest.Add(-retention)
	first := 0
	for first < len(w.entries) && w.entries[first].ts.Before(cutoff) {
		first++
	}
	if over := len(w.entries) - first - maxEvents; over > 0 {
		first += over
	}
	if first > 0 {
		w.entries = append(w.entries[:0], w.entries[first:]...)
	}
}

// snapshot copies the entries at or after since.
func (w *window) snapshot(since time.Time) []entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := sort.Search(len(w.entries), func(i int) bool {
		return !w.entries[i].ts.Before(since)
	})
	out := make([]entry, len(w.entries)-i)
	copy(out, w.entries[i:])
	return out
}

// size returns the current entry count.
func (w *window) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
