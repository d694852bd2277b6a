package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/castellan/pkg/config"
	"github.com/castellan/castellan/pkg/models"
)

func newTestEngine() *Engine {
	return NewEngine(config.DefaultCorrelationConfig())
}

func makeEvent(host, user string, eventType models.EventType, ts time.Time) *models.SecurityEvent {
	uid := models.ContentID(host, "Security", 0, ts, string(eventType)+user)
	return &models.SecurityEvent{
		ID: models.DeriveSecurityEventID(uid),
		Event: models.LogEvent{
			Timestamp: ts,
			Host:      host,
			Channel:   "Security",
			User:      user,
			UniqueID:  uid,
		},
		EventType: eventType,
		RiskLevel: models.RiskLow,
	}
}

func withDest(se *models.SecurityEvent, ip string) *models.SecurityEvent {
	se.Enrichment = &models.IPEnrichment{IP: ip, IsPrivate: true}
	return se
}

func TestBruteForceThenSuccess(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-20 * time.Minute)

	var last *Result
	for i := 0; i < 10; i++ {
		last = eng.AnalyzeEvent(makeEvent("DC-01", "admin", models.EventTypeAuthFailure,
			base.Add(time.Duration(i)*time.Minute)))
	}
	// Ten failures already trip the rule before the success lands.
	require.True(t, last.HasCorrelation)

	res := eng.AnalyzeEvent(makeEvent("DC-01", "admin", models.EventTypeAuthSuccess,
		base.Add(10*time.Minute)))

	require.True(t, res.HasCorrelation)
	require.NotNil(t, res.Primary)
	assert.Equal(t, RuleBruteForce, res.Primary.Rule)
	assert.Contains(t, res.MatchedRules, string(RuleBruteForce))
	assert.GreaterOrEqual(t, res.ConfidenceScore, 0.9)
	assert.Contains(t, res.Primary.MitreTechniques, "T1110")
	assert.True(t, res.Primary.RiskLevel.AtLeast(models.RiskHigh))
	// The success event is part of the matched pattern.
	assert.Contains(t, res.Primary.Summary, "successful logon")
}

func TestBruteForceBelowThreshold(t *testing.T) {
	eng := newTestEngine()
	base := time.Now()

	var res *Result
	for i := 0; i < 4; i++ {
		res = eng.AnalyzeEvent(makeEvent("DC-01", "admin", models.EventTypeAuthFailure,
			base.Add(time.Duration(i)*time.Second)))
	}
	assert.False(t, res.HasCorrelation)
}

func TestBruteForceWindowExpiry(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-40 * time.Minute)

	// Five failures spread over 25 minutes: never five inside 10.
	var res *Result
	for i := 0; i < 5; i++ {
		res = eng.AnalyzeEvent(makeEvent("DC-01", "admin", models.EventTypeAuthFailure,
			base.Add(time.Duration(i*6)*time.Minute)))
	}
	assert.False(t, res.HasCorrelation)
}

func TestLateralMovement(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-10 * time.Minute)

	var res *Result
	for i := 0; i < 4; i++ {
		e := withDest(makeEvent(fmt.Sprintf("WS-%03d", i+1), "svc", models.EventTypeNetworkConnection,
			base.Add(time.Duration(i)*time.Minute)), "192.168.1.100")
		res = eng.AnalyzeEvent(e)
	}

	require.True(t, res.HasCorrelation)
	require.NotNil(t, res.Primary)
	assert.Equal(t, RuleLateralMovement, res.Primary.Rule)
	assert.GreaterOrEqual(t, res.ConfidenceScore, 0.75)
	assert.Contains(t, res.Primary.MitreTechniques, "T1021")
	assert.Len(t, res.Primary.EventIDs, 4)
}

func TestTemporalBurst(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-2 * time.Minute)

	var res *Result
	for i := 0; i < 20; i++ {
		res = eng.AnalyzeEvent(makeEvent("WS-005", "", models.EventTypeProcessCreation,
			base.Add(time.Duration(i*5)*time.Second)))
	}

	require.True(t, res.HasCorrelation)
	assert.Equal(t, RuleBurst, res.Primary.Rule)
	assert.GreaterOrEqual(t, res.BurstScore, 0.8)
	assert.GreaterOrEqual(t, res.ConfidenceScore, 0.8)
	assert.True(t, res.Primary.RiskLevel.AtLeast(models.RiskMedium))
}

func TestAttackChain(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-15 * time.Minute)

	eng.AnalyzeEvent(makeEvent("SRV-01", "backup", models.EventTypeAuthSuccess, base))
	eng.AnalyzeEvent(makeEvent("SRV-01", "backup", models.EventTypePrivilegeEscalation, base.Add(2*time.Minute)))
	res := eng.AnalyzeEvent(makeEvent("SRV-01", "backup", models.EventTypeProcessCreation, base.Add(4*time.Minute)))

	require.True(t, res.HasCorrelation)
	require.NotNil(t, res.Primary)
	assert.Equal(t, RuleAttackChain, res.Primary.Rule)
	assert.Equal(t, 1.0, res.Primary.Confidence)
	assert.Equal(t, models.RiskCritical, res.Primary.RiskLevel)
	assert.Len(t, res.Primary.EventIDs, 3)
}

func TestAttackChainOrderMatters(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-15 * time.Minute)

	// Escalation before the logon: no chain.
	eng.AnalyzeEvent(makeEvent("SRV-02", "backup", models.EventTypePrivilegeEscalation, base))
	eng.AnalyzeEvent(makeEvent("SRV-02", "backup", models.EventTypeAuthSuccess, base.Add(time.Minute)))
	res := eng.AnalyzeEvent(makeEvent("SRV-02", "backup", models.EventTypeProcessCreation, base.Add(2*time.Minute)))

	for _, m := range res.MatchedRules {
		assert.NotEqual(t, string(RuleAttackChain), m)
	}
}

func TestPrimarySelectionPrefersBruteForce(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-4 * time.Minute)

	// Enough same-type failures to trip both burst and brute force at
	// full confidence; brute force must win the tie.
	var res *Result
	for i := 0; i < 20; i++ {
		res = eng.AnalyzeEvent(makeEvent("DC-02", "admin", models.EventTypeAuthFailure,
			base.Add(time.Duration(i*10)*time.Second)))
	}

	require.True(t, res.HasCorrelation)
	assert.Contains(t, res.MatchedRules, string(RuleBurst))
	assert.Equal(t, RuleBruteForce, res.Primary.Rule)
}

func TestPerKeyCap(t *testing.T) {
	cfg := config.DefaultCorrelationConfig()
	cfg.MaxEventsPerKey = 50
	eng := NewEngine(cfg)

	base := time.Now().Add(-30 * time.Minute)
	for i := 0; i < 200; i++ {
		eng.AnalyzeEvent(makeEvent("WS-010", "", models.EventTypeOther,
			base.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, 50, eng.KeySize("WS-010"))
}

func TestUserWindowAccumulatesAcrossHosts(t *testing.T) {
	eng := newTestEngine()
	base := time.Now()

	for i := 0; i < 6; i++ {
		eng.AnalyzeEvent(makeEvent(fmt.Sprintf("WS-%03d", i), "admin",
			models.EventTypeOther, base.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, 6, eng.UserKeySize("admin"))
	assert.Equal(t, 1, eng.KeySize("WS-000"))
}

func TestRetentionEviction(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-3 * time.Hour)

	eng.AnalyzeEvent(makeEvent("WS-011", "", models.EventTypeOther, base))
	eng.AnalyzeEvent(makeEvent("WS-011", "", models.EventTypeOther, base.Add(2*time.Hour)))

	// The two-hour gap exceeds the one-hour retention.
	assert.Equal(t, 1, eng.KeySize("WS-011"))
}

func TestAnomalyColdStart(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-time.Minute)

	var res *Result
	for i := 0; i < 10; i++ {
		res = eng.AnalyzeEvent(makeEvent("WS-020", "", models.EventTypeOther,
			base.Add(time.Duration(i)*time.Second)))
	}
	assert.Zero(t, res.AnomalyScore, "no score before the baseline has enough samples")
}

func TestAnomalySpikeAfterBaseline(t *testing.T) {
	cfg := config.DefaultCorrelationConfig()
	cfg.AnomalyMinSamples = 20
	eng := NewEngine(cfg)

	base := time.Now().Add(-2 * time.Hour)
	ts := base
	// Quiet baseline: one event every five minutes.
	for i := 0; i < 30; i++ {
		eng.AnalyzeEvent(makeEvent("WS-021", "", models.EventTypeOther, ts))
		ts = ts.Add(5 * time.Minute)
	}
	// Spike: forty events inside one minute.
	var res *Result
	for i := 0; i < 40; i++ {
		res = eng.AnalyzeEvent(makeEvent("WS-021", "", models.EventTypeOther,
			ts.Add(time.Duration(i)*time.Second)))
	}
	assert.Greater(t, res.AnomalyScore, 0.5)
}

func TestAnalyzeBatchSortsAndMatches(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-20 * time.Minute)

	var events []*models.SecurityEvent
	for i := 9; i >= 0; i-- { // deliberately out of order
		events = append(events, makeEvent("DC-03", "root", models.EventTypeAuthFailure,
			base.Add(time.Duration(i)*time.Minute)))
	}

	matches := eng.AnalyzeBatch(events, time.Hour)
	require.NotEmpty(t, matches)
	assert.Equal(t, RuleBruteForce, matches[0].Rule)
}

func TestDetectAttackChainsPartial(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-10 * time.Minute)

	events := []*models.SecurityEvent{
		makeEvent("SRV-03", "ops", models.EventTypeAuthSuccess, base),
		makeEvent("SRV-03", "ops", models.EventTypePrivilegeEscalation, base.Add(time.Minute)),
	}

	chains := eng.DetectAttackChains(events, 30*time.Minute)
	require.Len(t, chains, 1)
	assert.Equal(t, "SRV-03", chains[0].Host)
	assert.Equal(t, "ops", chains[0].User)
	assert.Equal(t, 1, chains[0].MissingSteps)
	assert.InDelta(t, 1.0, chains[0].Confidence, 1e-9)
	assert.Len(t, chains[0].EventIDs, 2)
}

func TestStatistics(t *testing.T) {
	eng := newTestEngine()
	base := time.Now().Add(-10 * time.Minute)

	for i := 0; i < 6; i++ {
		eng.AnalyzeEvent(makeEvent("DC-04", "admin", models.EventTypeAuthFailure,
			base.Add(time.Duration(i)*time.Second)))
	}

	stats := eng.Statistics()
	assert.EqualValues(t, 6, stats.EventsAnalyzed)
	assert.Greater(t, stats.CorrelationsFound, int64(0))
	assert.Greater(t, stats.MatchesByRule[RuleBruteForce], int64(0))
	assert.Greater(t, stats.ActiveKeys, 0)
	require.NotEmpty(t, stats.TopPatterns)
	assert.Contains(t, stats.TopPatterns[0].Pattern, "DC-04")
}

func TestConcurrentAnalyze(t *testing.T) {
	eng := newTestEngine()
	base := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			host := fmt.Sprintf("WS-%03d", g)
			for i := 0; i < 100; i++ {
				eng.AnalyzeEvent(makeEvent(host, "user", models.EventTypeAuthFailure,
					base.Add(time.Duration(i)*time.Second)))
			}
		}(g)
	}
	wg.Wait()

	stats := eng.Statistics()
	assert.EqualValues(t, 800, stats.EventsAnalyzed)
}
