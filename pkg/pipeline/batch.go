package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castellan/castellan/pkg/vectorstore"
)

// batcher buffers vector upserts and flushes them atomically when the
// buffer reaches its size or the flush timer fires. One lock guards the
// buffer and the flushing flag; the flush itself runs outside the lock.
// A failed flush puts the points back so the next flush retries them.
type batcher struct {
	store   vectorstore.Store
	size    int
	timeout time.Duration
	metrics *Metrics

	mu       sync.Mutex
	buf      []vectorstore.Point
	flushing bool
	timer    *time.Timer
}

func newBatcher(store vectorstore.Store, size int, timeout time.Duration, metrics *Metrics) *batcher {
	return &batcher{
		store:   store,
		size:    size,
		timeout: timeout,
		metrics: metrics,
	}
}

// Add buffers one point. Reaching the batch size triggers a flush on the
// caller's goroutine; the first point into an empty buffer arms the
// timer.
func (b *batcher) Add(ctx context.Context, p vectorstore.Point) {
	b.mu.Lock()
	wasEmpty := len(b.buf) == 0
	b.buf = append(b.buf, p)
	full := len(b.buf) >= b.size
	if wasEmpty && !full {
		b.armTimerLocked()
	}
	b.mu.Unlock()

	if full {
		b.flush(ctx)
	}
}

// armTimerLocked (re)arms the flush timer. Caller holds b.mu.
func (b *batcher) armTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.timeout, func() {
		b.flush(context.Background())
	})
}

// flush drains the buffer into a local slice and upserts it. Flushing is
// mutually exclusive with itself; points arriving during a flush
// accumulate into a fresh buffer.
func (b *batcher) flush(ctx context.Context) {
	b.mu.Lock()
	if b.flushing || len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	b.flushing = true
	points := b.buf
	b.buf = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	err := b.store.BatchUpsert(ctx, points)

	b.mu.Lock()
	b.flushing = false
	if err != nil {
		// Preserve the failed points ahead of anything that arrived
		// meanwhile; the next flush retries them.
		b.buf = append(points, b.buf...)
		if b.timer == nil && len(b.buf) > 0 {
			b.armTimerLocked()
		}
		b.mu.Unlock()
		slog.Warn("Vector batch flush failed, will retry", "points", len(points), "error", err)
		return
	}
	b.mu.Unlock()

	b.metrics.BatchFlush()
	slog.Debug("Vector batch flushed", "points", len(points))
}

// Flush forces out everything buffered, bounded by the context. Used at
// shutdown.
func (b *batcher) Flush(ctx context.Context) {
	for {
		b.flush(ctx)

		b.mu.Lock()
		remaining := len(b.buf)
		inFlight := b.flushing
		b.mu.Unlock()

		if remaining == 0 && !inFlight {
			return
		}
		select {
		case <-ctx.Done():
			slog.Warn("Shutdown flush timed out", "buffered", remaining)
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Len returns the current buffered point count.
func (b *batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
