package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/castellan/pkg/config"
	"github.com/castellan/castellan/pkg/correlation"
	"github.com/castellan/castellan/pkg/llm"
	"github.com/castellan/castellan/pkg/models"
)

func testEvent() models.LogEvent {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	uid := models.ContentID("DC-01", "Security", 4625, ts, "logon failed")
	return models.LogEvent{
		Timestamp: ts,
		Host:      "DC-01",
		Channel:   "Security",
		EventID:   4625,
		User:      "admin",
		Message:   "logon failed",
		UniqueID:  uid,
	}
}

func detVerdict(risk models.RiskLevel) *models.SecurityEvent {
	return &models.SecurityEvent{
		EventType:          models.EventTypeAuthFailure,
		RiskLevel:          risk,
		Confidence:         70,
		Summary:            "Failed logon",
		MitreTechniques:    []string{"T1110"},
		RecommendedActions: []string{"Review source address"},
	}
}

func llmVerdict() *llm.Verdict {
	return &llm.Verdict{
		EventType:          models.EventTypeAuthFailure,
		RiskLevel:          models.RiskMedium,
		Confidence:         60,
		Summary:            "Suspicious failed logon",
		MitreTechniques:    []string{"T1110.001"},
		RecommendedActions: []string{"Enable MFA"},
	}
}

func emptyResult() *correlation.Result {
	return &correlation.Result{}
}

func TestFuse_DeterministicHighWins(t *testing.T) {
	got := Fuse(testEvent(), detVerdict(models.RiskHigh), llmVerdict(), emptyResult(), nil)

	require.NotNil(t, got)
	assert.True(t, got.IsDeterministic)
	assert.False(t, got.IsEnhanced)
	assert.Equal(t, models.RiskHigh, got.RiskLevel)
	assert.Equal(t, "Failed logon", got.Summary)
	assert.Equal(t, models.DeriveSecurityEventID(testEvent().UniqueID), got.ID)
}

func TestFuse_CorrelationBeatsLLMAndLowDeterministic(t *testing.T) {
	res := &correlation.Result{
		HasCorrelation:  true,
		ConfidenceScore: 0.95,
		MatchedRules:    []string{string(correlation.RuleBruteForce)},
		Primary: &correlation.Match{
			Rule:            correlation.RuleBruteForce,
			Confidence:      0.95,
			EventType:       models.EventTypeAuthFailure,
			RiskLevel:       models.RiskHigh,
			Summary:         "Possible brute-force attack",
			MitreTechniques: []string{"T1110"},
		},
	}

	got := Fuse(testEvent(), detVerdict(models.RiskLow), llmVerdict(), res, nil)

	require.NotNil(t, got)
	assert.True(t, got.IsCorrelationBased)
	assert.False(t, got.IsDeterministic)
	assert.Equal(t, 0.95, got.CorrelationScore)
	// 0.95 >= 0.9 raises high to critical.
	assert.Equal(t, models.RiskCritical, got.RiskLevel)
	assert.Equal(t, 95, got.Confidence)
}

func TestFuse_CorrelationBelowFloorIgnoredAsBase(t *testing.T) {
	res := &correlation.Result{
		HasCorrelation:  true,
		ConfidenceScore: 0.6,
		Primary:         &correlation.Match{Rule: correlation.RuleBurst, Confidence: 0.6},
	}

	got := Fuse(testEvent(), nil, llmVerdict(), res, nil)

	require.NotNil(t, got)
	assert.False(t, got.IsCorrelationBased)
	assert.Equal(t, models.RiskMedium, got.RiskLevel)
	// Scores still carried even when correlation is not the base.
	assert.Equal(t, 0.6, got.CorrelationScore)
	assert.Equal(t, 60, got.Confidence)
}

func TestFuse_EnhancedMergesTechniquesAndActions(t *testing.T) {
	got := Fuse(testEvent(), detVerdict(models.RiskMedium), llmVerdict(), emptyResult(), nil)

	require.NotNil(t, got)
	assert.True(t, got.IsEnhanced)
	assert.False(t, got.IsDeterministic)
	assert.Equal(t, models.RiskMedium, got.RiskLevel)
	assert.Equal(t, "Suspicious failed logon", got.Summary)
	assert.ElementsMatch(t, []string{"T1110", "T1110.001"}, got.MitreTechniques)
	assert.ElementsMatch(t, []string{"Review source address", "Enable MFA"}, got.RecommendedActions)
}

func TestFuse_DeterministicFallback(t *testing.T) {
	got := Fuse(testEvent(), detVerdict(models.RiskLow), nil, emptyResult(), nil)

	require.NotNil(t, got)
	assert.True(t, got.IsDeterministic)
	assert.Equal(t, models.RiskLow, got.RiskLevel)
}

func TestFuse_NoSignalsDropsEvent(t *testing.T) {
	assert.Nil(t, Fuse(testEvent(), nil, nil, emptyResult(), nil))
	assert.Nil(t, Fuse(testEvent(), nil, nil, nil, nil))
}

func TestFuse_RiskUpgradeFromBurstScore(t *testing.T) {
	res := &correlation.Result{BurstScore: 0.92}
	got := Fuse(testEvent(), detVerdict(models.RiskLow), nil, res, nil)

	require.NotNil(t, got)
	assert.Equal(t, models.RiskMedium, got.RiskLevel)
	assert.Equal(t, 0.92, got.BurstScore)
}

func TestFuse_ConfidenceTakesCorrelationFloor(t *testing.T) {
	res := &correlation.Result{ConfidenceScore: 0.88}
	got := Fuse(testEvent(), detVerdict(models.RiskHigh), nil, res, nil)

	require.NotNil(t, got)
	// max(70, round(100*0.88))
	assert.Equal(t, 88, got.Confidence)
}

func TestFuse_AttachesEnrichment(t *testing.T) {
	enrich := &models.IPEnrichment{IP: "203.0.113.7", CountryCode: "NL"}
	got := Fuse(testEvent(), detVerdict(models.RiskHigh), nil, emptyResult(), enrich)

	require.NotNil(t, got)
	require.NotNil(t, got.Enrichment)
	assert.Equal(t, "NL", got.Enrichment.CountryCode)
}

func TestFuse_Deterministic(t *testing.T) {
	// Same inputs, same output.
	res := &correlation.Result{ConfidenceScore: 0.5, BurstScore: 0.4}
	a := Fuse(testEvent(), detVerdict(models.RiskHigh), llmVerdict(), res, nil)
	b := Fuse(testEvent(), detVerdict(models.RiskHigh), llmVerdict(), res, nil)
	assert.Equal(t, a, b)
}

func TestFuse_InputsNotMutated(t *testing.T) {
	det := detVerdict(models.RiskMedium)
	v := llmVerdict()
	_ = Fuse(testEvent(), det, v, emptyResult(), nil)

	assert.Equal(t, []string{"T1110"}, det.MitreTechniques)
	assert.Equal(t, []string{"T1110.001"}, v.MitreTechniques)
}

func TestEngine_AnalyzeConsultsCorrelation(t *testing.T) {
	corr := correlation.NewEngine(config.DefaultCorrelationConfig())
	eng := NewEngine(corr)

	base := time.Now().Add(-10 * time.Minute)
	var got *models.SecurityEvent
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		uid := models.ContentID("DC-02", "Security", 4625, ts, "failed")
		e := models.LogEvent{
			Timestamp: ts, Host: "DC-02", Channel: "Security",
			EventID: 4625, User: "admin", Message: "failed", UniqueID: uid,
		}
		got = eng.Analyze(e, detVerdict(models.RiskLow), nil, nil)
	}

	require.NotNil(t, got)
	assert.True(t, got.IsCorrelationBased)
	assert.Contains(t, got.MitreTechniques, "T1110")
	assert.GreaterOrEqual(t, got.CorrelationScore, 0.9)
}
