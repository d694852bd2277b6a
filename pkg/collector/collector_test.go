package collector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/castellan/pkg/models"
)

func drain(t *testing.T, ch <-chan models.LogEvent) []models.LogEvent {
	t.Helper()
	var out []models.LogEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("timed out draining collector stream")
		}
	}
}

func TestSliceCollector_OrdersByTimestamp(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	events := []models.LogEvent{
		{Host: "A", Channel: "Security", EventID: 4624, Timestamp: base.Add(2 * time.Minute)},
		{Host: "A", Channel: "Security", EventID: 4625, Timestamp: base},
		{Host: "A", Channel: "Security", EventID: 4672, Timestamp: base.Add(time.Minute)},
	}

	c := NewSliceCollector(events)
	ch, err := c.Collect(context.Background())
	require.NoError(t, err)

	got := drain(t, ch)
	require.Len(t, got, 3)
	assert.Equal(t, 4625, got[0].EventID)
	assert.Equal(t, 4672, got[1].EventID)
	assert.Equal(t, 4624, got[2].EventID)
	assert.True(t, c.Historical())

	// Unique IDs were assigned.
	for _, e := range got {
		assert.NotEmpty(t, e.UniqueID)
	}
}

func TestSliceCollector_Restartable(t *testing.T) {
	c := NewSliceCollector([]models.LogEvent{{Host: "A", Timestamp: time.Now()}})

	for i := 0; i < 2; i++ {
		ch, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Len(t, drain(t, ch), 1)
	}
}

func TestSliceCollector_CancelStopsStream(t *testing.T) {
	events := make([]models.LogEvent, 100)
	for i := range events {
		events[i] = models.LogEvent{Host: "A", Timestamp: time.Now()}
	}
	c := NewSliceCollector(events)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Collect(ctx)
	require.NoError(t, err)

	<-ch // consume one, then cancel without draining
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed promptly
			}
		case <-deadline:
			t.Fatal("stream did not close within 1s of cancellation")
		}
	}
}

func TestChannelCollector_PublishAndCollect(t *testing.T) {
	c := NewChannelCollector(4)
	ch, err := c.Collect(context.Background())
	require.NoError(t, err)

	ok := c.Publish(context.Background(), models.LogEvent{Host: "WS-001", Channel: "Security", EventID: 4625, Timestamp: time.Now()})
	assert.True(t, ok)
	c.Close()

	got := drain(t, ch)
	require.Len(t, got, 1)
	assert.Equal(t, "WS-001", got[0].Host)
	assert.NotEmpty(t, got[0].UniqueID)

	// Publish after close is rejected.
	assert.False(t, c.Publish(context.Background(), models.LogEvent{}))
}

func TestFileCollector_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.jsonl")

	rec := fileRecord{
		Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Host:      "DC-01", Channel: "Security", EventID: 4625,
		Message: "An account failed to log on.",
	}
	line, err := json.Marshal(rec)
	require.NoError(t, err)
	content := string(line) + "\nnot json at all\n" + string(line) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c := NewFileCollector(path)
	ch, err := c.Collect(context.Background())
	require.NoError(t, err)

	got := drain(t, ch)
	assert.Len(t, got, 2)
	// Identical source records hash to the same unique ID — the store
	// dedupes them downstream.
	assert.Equal(t, got[0].UniqueID, got[1].UniqueID)
}

func TestFileCollector_MissingFile(t *testing.T) {
	_, err := NewFileCollector("/does/not/exist.jsonl").Collect(context.Background())
	assert.Error(t, err)
}
