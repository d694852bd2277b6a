// Package rules fuses the deterministic, LLM, and correlation signals
// for one event into a single SecurityEvent verdict.
package rules

import (
	"math"

	"github.com/castellan/castellan/pkg/correlation"
	"github.com/castellan/castellan/pkg/llm"
	"github.com/castellan/castellan/pkg/models"
)

// correlationConfidenceFloor is the minimum correlation confidence for
// a correlation-derived base verdict.
const correlationConfidenceFloor = 0.7

// scoreUpgradeFloor is the score at which the final risk is raised one
// level.
const scoreUpgradeFloor = 0.9

// Engine wires the correlation engine into fusion. The correlation
// engine is stateful (it owns the sliding windows); fusion itself is a
// pure function of its inputs.
type Engine struct {
	corr *correlation.Engine
}

// NewEngine creates a fusion engine over the given correlation engine.
func NewEngine(corr *correlation.Engine) *Engine {
	return &Engine{corr: corr}
}

// Analyze records the event with the correlation engine and fuses all
// three signals. A nil return means no signal produced a verdict and
// the event is dropped.
func (e *Engine) Analyze(event models.LogEvent, det *models.SecurityEvent, verdict *llm.Verdict, enrich *models.IPEnrichment) *models.SecurityEvent {
	provisional := &models.SecurityEvent{
		Event:      event,
		EventType:  provisionalType(det, verdict),
		Enrichment: enrich,
	}
	res := e.corr.AnalyzeEvent(provisional)
	return Fuse(event, det, verdict, res, enrich)
}

// provisionalType picks the classification the correlation windows see:
// deterministic when available, else the LLM's, else Other.
func provisionalType(det *models.SecurityEvent, verdict *llm.Verdict) models.EventType {
	switch {
	case det != nil:
		return det.EventType
	case verdict != nil:
		return verdict.EventType
	}
	return models.EventTypeOther
}

// Fuse combines the three signals deterministically. The base verdict
// is chosen first-match:
//
//  1. deterministic with high/critical risk,
//  2. correlation match with confidence >= 0.7,
//  3. LLM verdict (enhanced when deterministic also fired),
//  4. deterministic at any risk,
//  5. nothing: nil.
//
// The three scores always come from the correlation result; a max score
// >= 0.9 raises the risk one level, and the final confidence is the
// larger of the base confidence and 100x the correlation score.
func Fuse(event models.LogEvent, det *models.SecurityEvent, verdict *llm.Verdict, res *correlation.Result, enrich *models.IPEnrichment) *models.SecurityEvent {
	var out *models.SecurityEvent

	switch {
	case det != nil && det.RiskLevel.AtLeast(models.RiskHigh):
		out = fromDeterministic(det)

	case res != nil && res.HasCorrelation && res.ConfidenceScore >= correlationConfidenceFloor:
		out = fromCorrelation(res.Primary)

	case verdict != nil:
		out = fromVerdict(verdict)
		if det != nil {
			out.IsEnhanced = true
			out.MitreTechniques = unionMerge(det.MitreTechniques, out.MitreTechniques)
			out.RecommendedActions = unionMerge(det.RecommendedActions, out.RecommendedActions)
		}

	case det != nil:
		out = fromDeterministic(det)

	default:
		return nil
	}

	out.ID = models.DeriveSecurityEventID(event.UniqueID)
	out.Event = event
	out.Enrichment = enrich

	if res != nil {
		out.CorrelationScore = clamp01(res.ConfidenceScore)
		out.BurstScore = clamp01(res.BurstScore)
		out.AnomalyScore = clamp01(res.AnomalyScore)
	}
	if out.MaxScore() >= scoreUpgradeFloor {
		out.RiskLevel = out.RiskLevel.Elevate()
	}
	if c := int(math.Round(100 * out.CorrelationScore)); c > out.Confidence {
		out.Confidence = c
	}
	if out.Confidence > 100 {
		out.Confidence = 100
	}
	return out
}

func fromDeterministic(det *models.SecurityEvent) *models.SecurityEvent {
	return &models.SecurityEvent{
		EventType:          det.EventType,
		RiskLevel:          det.RiskLevel,
		Confidence:         det.Confidence,
		Summary:            det.Summary,
		MitreTechniques:    append([]string(nil), det.MitreTechniques...),
		RecommendedActions: append([]string(nil), det.RecommendedActions...),
		IsDeterministic:    true,
	}
}

func fromCorrelation(m *correlation.Match) *models.SecurityEvent {
	return &models.SecurityEvent{
		EventType:          m.EventType,
		RiskLevel:          m.RiskLevel,
		Confidence:         int(math.Round(100 * m.Confidence)),
		Summary:            m.Summary,
		MitreTechniques:    append([]string(nil), m.MitreTechniques...),
		RecommendedActions: append([]string(nil), m.RecommendedActions...),
		IsCorrelationBased: true,
	}
}

func fromVerdict(v *llm.Verdict) *models.SecurityEvent {
	return &models.SecurityEvent{
		EventType:          v.EventType,
		RiskLevel:          v.RiskLevel,
		Confidence:         v.Confidence,
		Summary:            v.Summary,
		MitreTechniques:    append([]string(nil), v.MitreTechniques...),
		RecommendedActions: append([]string(nil), v.RecommendedActions...),
	}
}

// unionMerge appends items from extra that a is missing, preserving
// order of first appearance.
func unionMerge(a, extra []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
