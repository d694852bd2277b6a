package collector

import (
	"context"
	"sort"

	"github.com/castellan/castellan/pkg/models"
)

// SliceCollector replays a fixed set of past records by ascending
// timestamp. It is the historical collector used for backfill from an
// in-memory export and throughout the tests.
type SliceCollector struct {
	events []models.LogEvent
}

// NewSliceCollector copies and time-sorts the given records. Records
// without a unique ID get a content hash so replays dedupe.
func NewSliceCollector(events []models.LogEvent) *SliceCollector {
	sorted := make([]models.LogEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	for i, e := range sorted {
		if e.UniqueID == "" {
			sorted[i] = e.WithUniqueID(models.ContentID(e.Host, e.Channel, e.EventID, e.Timestamp, e.Message))
		}
	}
	return &SliceCollector{events: sorted}
}

// Historical reports that this stream is finite.
func (c *SliceCollector) Historical() bool { return true }

// Collect streams the records in timestamp order. Each call replays the
// full set from the beginning.
func (c *SliceCollector) Collect(ctx context.Context) (<-chan models.LogEvent, error) {
	out := make(chan models.LogEvent)
	go func() {
		defer close(out)
		for _, e := range c.events {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
