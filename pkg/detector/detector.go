// Package detector is the deterministic fast path: a static table
// mapping known (channel, event ID) pairs to a provisional security
// verdict. It is a pure function of the LogEvent.
package detector

import (
	"fmt"

	"github.com/castellan/castellan/pkg/models"
)

// Verdict is the provisional classification for a known event pair.
type Verdict struct {
	EventType          models.EventType
	RiskLevel          models.RiskLevel
	Confidence         int
	MitreTechniques    []string
	RecommendedActions []string
	Summary            string
}

// Detector maps (channel, event ID) pairs through the static table.
type Detector struct {
	table map[tableKey]tableEntry
}

type tableKey struct {
	channel string
	eventID int
}

// New creates a detector with the built-in Windows event table.
func New() *Detector {
	return &Detector{table: builtinTable()}
}

// Detect returns the verdict for a known pair, or nil for unknown pairs.
// The returned verdict is a fresh copy; callers may mutate it.
func (d *Detector) Detect(e models.LogEvent) *Verdict {
	entry, ok := d.table[tableKey{channel: e.Channel, eventID: e.EventID}]
	if !ok {
		return nil
	}

	v := &Verdict{
		EventType:          entry.eventType,
		RiskLevel:          entry.riskLevel,
		Confidence:         entry.confidence,
		MitreTechniques:    append([]string(nil), entry.mitre...),
		RecommendedActions: append([]string(nil), entry.actions...),
		Summary:            entry.summary,
	}
	if e.User != "" {
		v.Summary = fmt.Sprintf("%s (user %s on %s)", entry.summary, e.User, e.Host)
	} else if e.Host != "" {
		v.Summary = fmt.Sprintf("%s (host %s)", entry.summary, e.Host)
	}
	return v
}

// Known reports whether the pair is in the table.
func (d *Detector) Known(channel string, eventID int) bool {
	_, ok := d.table[tableKey{channel: channel, eventID: eventID}]
	return ok
}
