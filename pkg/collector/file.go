package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// fileRecord is one line of a JSONL event-log export, as produced by the
// Windows collector agent (wevtutil / Get-WinEvent dumps).
type fileRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Channel   string    `json:"channel"`
	EventID   int       `json:"event_id"`
	Level     string    `json:"level"`
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
	RecordID  string    `json:"record_id"`
}

// FileCollector is a historical collector reading a JSONL export of a
// Windows event log, one record per line. Malformed lines are logged and
// skipped; the stream continues.
type FileCollector struct {
	path string
}

// NewFileCollector creates a collector for the given JSONL export.
func NewFileCollector(path string) *FileCollector {
	return &FileCollector{path: path}
}

// Historical reports that this stream is finite.
func (c *FileCollector) Historical() bool { return true }

// Collect opens the file and streams its records. The export is assumed
// timestamp-ascending per host/channel, matching how event logs dump.
func (c *FileCollector) Collect(ctx context.Context) (<-chan models.LogEvent, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("opening event export: %w", err)
	}

	out := make(chan models.LogEvent)
	go func() {
		defer close(out)
		defer func() { _ = f.Close() }()

		log := slog.With("path", c.path)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		line := 0
		for scanner.Scan() {
			line++
			var rec fileRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				log.Warn("Skipping malformed export line", "line", line, "error", err)
				continue
			}
			e := models.LogEvent{
				Timestamp: rec.Timestamp,
				Host:      rec.Host,
				Channel:   rec.Channel,
				EventID:   rec.EventID,
				Level:     rec.Level,
				User:      rec.User,
				Message:   rec.Message,
				Raw:       rec.Raw,
				UniqueID:  rec.RecordID,
			}
			if e.UniqueID == "" {
				e = e.WithUniqueID(models.ContentID(e.Host, e.Channel, e.EventID, e.Timestamp, e.Message))
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error("Event export read failed", "line", line, "error", err)
		}
	}()
	return out, nil
}
