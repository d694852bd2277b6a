// Package llm provides the analysis LLM client: given an event and its
// semantic neighbors it returns a structured JSON verdict. The LLM
// contribution is always optional — every failure mode collapses to
// "no LLM contribution" at the orchestrator.
package llm

import (
	"context"
	"errors"

	"github.com/castellan/castellan/pkg/models"
)

// ErrLLMUnavailable wraps timeouts, transport errors, and malformed
// responses. The orchestrator treats it as "no LLM contribution".
var ErrLLMUnavailable = errors.New("llm unavailable")

// Verdict is the structured analysis result. Fields mirror a
// SecurityEvent without identity or provenance flags.
type Verdict struct {
	EventType          models.EventType `json:"event_type"`
	RiskLevel          models.RiskLevel `json:"risk_level"`
	Confidence         int              `json:"confidence"`
	Summary            string           `json:"summary"`
	MitreTechniques    []string         `json:"mitre_techniques"`
	RecommendedActions []string         `json:"recommended_actions"`
}

// Valid reports whether the verdict parsed into usable values. Unknown
// enum values invalidate the verdict rather than flowing downstream.
func (v *Verdict) Valid() bool {
	return v.EventType.IsValid() && v.RiskLevel.IsValid() &&
		v.Confidence >= 0 && v.Confidence <= 100
}

// Client analyzes an event in the context of its nearest neighbors.
type Client interface {
	Analyze(ctx context.Context, event models.LogEvent, neighbors []models.LogEvent) (*Verdict, error)
}
