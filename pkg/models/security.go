package models

import (
	"github.com/google/uuid"
)

// EventType classifies a security event. The set is closed: classifiers
// must map everything they do not recognize to EventTypeOther.
type EventType string

// Event type constants.
const (
	EventTypeAuthSuccess         EventType = "AuthenticationSuccess"
	EventTypeAuthFailure         EventType = "AuthenticationFailure"
	EventTypePrivilegeEscalation EventType = "PrivilegeEscalation"
	EventTypeProcessCreation     EventType = "ProcessCreation"
	EventTypeNetworkConnection   EventType = "NetworkConnection"
	EventTypeAccountManagement   EventType = "AccountManagement"
	EventTypePolicyChange        EventType = "PolicyChange"
	EventTypeServiceInstallation EventType = "ServiceInstallation"
	EventTypeScheduledTask       EventType = "ScheduledTask"
	EventTypePowerShellExecution EventType = "PowerShellExecution"
	EventTypeOther               EventType = "Other"
)

// IsValid reports whether the event type is one of the closed set.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeAuthSuccess, EventTypeAuthFailure, EventTypePrivilegeEscalation,
		EventTypeProcessCreation, EventTypeNetworkConnection, EventTypeAccountManagement,
		EventTypePolicyChange, EventTypeServiceInstallation, EventTypeScheduledTask,
		EventTypePowerShellExecution, EventTypeOther:
		return true
	}
	return false
}

// RiskLevel grades the severity of a security event.
type RiskLevel string

// Risk level constants, ordered low to critical.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// IsValid reports whether the risk level is recognized.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// rank orders risk levels for comparison. Unknown levels rank lowest.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether r is at or above the given level.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

// Elevate returns the next level up. Critical stays critical.
func (r RiskLevel) Elevate() RiskLevel {
	switch r {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	case RiskHigh:
		return RiskCritical
	}
	return r
}

// securityEventNamespace is the UUIDv5 namespace for deriving stable
// SecurityEvent IDs from LogEvent unique IDs.
var securityEventNamespace = uuid.MustParse("7b1f6f2e-9c94-4e43-8c1a-5a3d1f0c9b21")

// DeriveSecurityEventID returns the stable event ID for a given input
// record. The same unique ID always maps to the same event ID, which is
// what makes store writes first-writer-wins idempotent.
func DeriveSecurityEventID(uniqueID string) string {
	return uuid.NewSHA1(securityEventNamespace, []byte(uniqueID)).String()
}

// SecurityEvent is an analyzed, classified, and scored event. Instances
// are produced by the deterministic detector, the LLM path, or the
// correlation engine; fusion always returns a new value rather than
// updating in place.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Event     LogEvent  `json:"event"`
	EventType EventType `json:"event_type"`
	RiskLevel RiskLevel `json:"risk_level"`

	// Confidence is 0..100.
	Confidence int `json:"confidence"`

	Summary            string   `json:"summary"`
	MitreTechniques    []string `json:"mitre_techniques,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`

	// Enrichment is nil when no address could be resolved.
	Enrichment *IPEnrichment `json:"enrichment,omitempty"`

	// Scores are 0..1 and always populated by fusion (0 when the
	// correlation engine produced nothing).
	CorrelationScore float64 `json:"correlation_score"`
	BurstScore       float64 `json:"burst_score"`
	AnomalyScore     float64 `json:"anomaly_score"`

	IsDeterministic    bool `json:"is_deterministic"`
	IsCorrelationBased bool `json:"is_correlation_based"`
	IsEnhanced         bool `json:"is_enhanced"`
}

// MaxScore returns the largest of the three correlation scalars.
func (s *SecurityEvent) MaxScore() float64 {
	m := s.CorrelationScore
	if s.BurstScore > m {
		m = s.BurstScore
	}
	if s.AnomalyScore > m {
		m = s.AnomalyScore
	}
	return m
}
