// Package correlation implements sliding-window pattern detection over
// the recent security-event history: brute-force sequences, lateral
// movement, temporal bursts, and multi-stage privilege-escalation
// chains, plus a per-host rate-anomaly baseline.
package correlation

import (
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// RuleType identifies which window rule produced a match.
type RuleType string

// Rule type constants.
const (
	RuleBruteForce      RuleType = "BruteForce"
	RuleAttackChain     RuleType = "AttackChain"
	RuleLateralMovement RuleType = "LateralMovement"
	RuleBurst           RuleType = "Burst"
)

// priority orders rules for primary-match selection on confidence ties.
func (r RuleType) priority() int {
	switch r {
	case RuleBruteForce:
		return 4
	case RuleAttackChain:
		return 3
	case RuleLateralMovement:
		return 2
	case RuleBurst:
		return 1
	}
	return 0
}

// Match is a single rule firing, carrying everything fusion needs to
// build a correlation-derived verdict.
type Match struct {
	Rule               RuleType
	Confidence         float64
	EventType          models.EventType
	RiskLevel          models.RiskLevel
	Summary            string
	MitreTechniques    []string
	RecommendedActions []string

	// EventIDs are the unique IDs of the window events that formed the
	// pattern, oldest first.
	EventIDs []string
}

// Result is the outcome of analyzing one event against the windows.
type Result struct {
	HasCorrelation  bool
	ConfidenceScore float64
	MatchedRules    []string

	// Primary is the highest-confidence match (rule priority breaks
	// ties); nil when nothing fired.
	Primary *Match

	// BurstScore is the burst rule's confidence, 0 when it did not fire.
	BurstScore float64

	// AnomalyScore is the per-host rate anomaly in [0,1]; 0 until the
	// baseline has enough samples.
	AnomalyScore float64
}

// Chain is a privilege-escalation sequence on one (host, user), possibly
// missing its final step.
type Chain struct {
	Host         string
	User         string
	Steps        []models.EventType
	EventIDs     []string
	MissingSteps int
	Confidence   float64
	Start        time.Time
	End          time.Time
}

// PatternCount pairs a correlation key with how often it matched.
type PatternCount struct {
	Pattern string
	Count   int64
}

// Statistics reports engine counters and the most frequently matched
// correlation keys.
type Statistics struct {
	EventsAnalyzed    int64
	CorrelationsFound int64
	MatchesByRule     map[RuleType]int64
	ActiveKeys        int
	TopPatterns       []PatternCount
}
