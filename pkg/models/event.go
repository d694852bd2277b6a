// Package models defines the core Castellan data model: the immutable
// LogEvent ingested from collectors and the analyzed SecurityEvent emitted
// by the detection pipeline.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// LogEvent is a single record ingested from a Windows event-log source.
// LogEvents are immutable: collectors create them and no later stage
// mutates them. Equality is by UniqueID.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Channel   string    `json:"channel"`
	EventID   int       `json:"event_id"`
	Level     string    `json:"level"`
	User      string    `json:"user"`
	Message   string    `json:"message"`

	// Raw is the opaque original payload (XML or JSON rendering of the
	// source record). Kept verbatim for display and forensics.
	Raw string `json:"raw,omitempty"`

	// UniqueID identifies the record across replays and collector
	// restarts. Collectors must assign one; ContentID is the default
	// derivation when the source has no native record identifier.
	UniqueID string `json:"unique_id"`
}

// ContentID derives a stable unique ID from the identifying fields of a
// record. Replaying the same source record yields the same ID, which is
// what makes downstream persistence dedupe work.
func ContentID(host, channel string, eventID int, ts time.Time, message string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%s", host, channel, eventID, ts.UnixNano(), message)
	return hex.EncodeToString(h.Sum(nil))
}

// WithUniqueID returns a copy of the event with the unique ID set.
// The receiver is not modified.
func (e LogEvent) WithUniqueID(id string) LogEvent {
	e.UniqueID = id
	return e
}
