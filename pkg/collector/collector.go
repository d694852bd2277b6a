// Package collector produces ordered streams of LogEvents from sources:
// live tails that suspend waiting for new records and historical readers
// that iterate past records by ascending timestamp.
package collector

import (
	"context"

	"github.com/castellan/castellan/pkg/models"
)

// Collector exposes a lazy stream of LogEvents. Implementations must be
// restartable: each Collect call opens a fresh stream. The returned
// channel is closed when the source is exhausted or the context is
// cancelled; cancellation must propagate within about a second.
//
// Per-stream timestamps are non-decreasing within a host/channel, but no
// global ordering is promised.
type Collector interface {
	Collect(ctx context.Context) (<-chan models.LogEvent, error)
}

// Historical marks collectors whose streams are finite replays of past
// records. The orchestrator uses one for the startup backfill.
type Historical interface {
	Collector

	// Historical is a marker; finite collectors return true.
	Historical() bool
}
