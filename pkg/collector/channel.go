package collector

import (
	"context"
	"sync"

	"github.com/castellan/castellan/pkg/models"
)

// ChannelCollector is a live collector fed by an external producer via
// Publish. It bridges push sources (socket feeds, test fixtures, agent
// forwarders) into the pull-based Collector contract.
type ChannelCollector struct {
	buffer int

	mu     sync.Mutex
	input  chan models.LogEvent
	closed bool
}

// NewChannelCollector creates a live collector with the given input
// buffer size.
func NewChannelCollector(buffer int) *ChannelCollector {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelCollector{
		buffer: buffer,
		input:  make(chan models.LogEvent, buffer),
	}
}

// Publish offers an event to the stream. It blocks while the buffer is
// full (back-pressure) and returns false once the collector is closed or
// the context is cancelled. Events without a unique ID get a content hash.
func (c *ChannelCollector) Publish(ctx context.Context, e models.LogEvent) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	in := c.input
	c.mu.Unlock()

	if e.UniqueID == "" {
		e = e.WithUniqueID(models.ContentID(e.Host, e.Channel, e.EventID, e.Timestamp, e.Message))
	}

	select {
	case in <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the stream. Publish calls after Close return false.
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.input)
	}
}

// Collect starts the stream. Restart after Close reopens a fresh input.
func (c *ChannelCollector) Collect(ctx context.Context) (<-chan models.LogEvent, error) {
	c.mu.Lock()
	if c.closed {
		c.input = make(chan models.LogEvent, c.buffer)
		c.closed = false
	}
	in := c.input
	c.mu.Unlock()

	out := make(chan models.LogEvent)
	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
