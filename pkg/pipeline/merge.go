package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/castellan/castellan/pkg/collector"
	"github.com/castellan/castellan/pkg/models"
)

// mergeStreams fans N collector streams into one bounded channel. The
// channel's capacity is the back-pressure boundary: when it is full,
// collectors block. The output channel closes once every source stream
// has ended.
func mergeStreams(ctx context.Context, collectors []collector.Collector, buffer int) <-chan models.LogEvent {
	out := make(chan models.LogEvent, buffer)

	var wg sync.WaitGroup
	for i, c := range collectors {
		stream, err := c.Collect(ctx)
		if err != nil {
			slog.Error("Collector failed to start, skipping", "collector", i, "error", err)
			continue
		}

		wg.Add(1)
		go func(stream <-chan models.LogEvent) {
			defer wg.Done()
			for e := range stream {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}(stream)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
