package correlation

import (
	"sort"
	"sync"
	"time"

	"github.com/castellan/castellan/pkg/config"
	"github.com/castellan/castellan/pkg/models"
)

// anomalyRateWindow is the sample interval for the per-host rate fed
// into the anomaly baseline.
const anomalyRateWindow = time.Minute

// Engine holds the sliding windows and exposes per-event and batch
// analysis. All operations are safe for concurrent use; locking is
// per window, never across windows.
type Engine struct {
	cfg *config.CorrelationConfig

	mu        sync.RWMutex
	windows   map[string]*window
	baselines map[string]*baseline

	statsMu       sync.Mutex
	analyzed      int64
	found         int64
	matchesByRule map[RuleType]int64
	patterns      map[string]int64
}

// NewEngine creates an engine over the given thresholds and windows.
func NewEngine(cfg *config.CorrelationConfig) *Engine {
	return &Engine{
		cfg:           cfg,
		windows:       make(map[string]*window),
		baselines:     make(map[string]*baseline),
		matchesByRule: make(map[RuleType]int64),
		patterns:      make(map[string]int64),
	}
}

func hostKey(host string) string           { return "host:" + host }
func hostUserKey(host, user string) string { return "hu:" + host + "|" + user }
func userKey(user string) string           { return "user:" + user }
func destKey(dest string) string           { return "dest:" + dest }

func (eng *Engine) window(key string) *window {
	eng.mu.RLock()
	w, ok := eng.windows[key]
	eng.mu.RUnlock()
	if ok {
		return w
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if w, ok = eng.windows[key]; ok {
		return w
	}
	w = &window{}
	eng.windows[key] = w
	return w
}

func (eng *Engine) baseline(key string) *baseline {
	eng.mu.RLock()
	b, ok := eng.baselines[key]
	eng.mu.RUnlock()
	if ok {
		return b
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if b, ok = eng.baselines[key]; ok {
		return b
	}
	b = &baseline{}
	eng.baselines[key] = b
	return b
}

func entryFrom(se *models.SecurityEvent) entry {
	en := entry{
		uniqueID:  se.Event.UniqueID,
		ts:        se.Event.Timestamp,
		eventType: se.EventType,
		host:      se.Event.Host,
		user:      se.Event.User,
	}
	if se.Enrichment != nil {
		en.dest = se.Enrichment.IP
	}
	return en
}

// AnalyzeEvent records the event into the windows and runs all rules
// against the updated state. The returned result is never nil.
func (eng *Engine) AnalyzeEvent(se *models.SecurityEvent) *Result {
	return eng.analyze(se, eng.cfg.EventHistoryRetention)
}

func (eng *Engine) analyze(se *models.SecurityEvent, retention time.Duration) *Result {
	en := entryFrom(se)
	maxEvents := eng.cfg.MaxEventsPerKey

	hostWin := eng.window(hostKey(en.host))
	hostWin.add(en, retention, maxEvents)

	var hostUserWin *window
	if en.user != "" {
		hostUserWin = eng.window(hostUserKey(en.host, en.user))
		hostUserWin.add(en, retention, maxEvents)
		// The window state spans all four key spaces even though the
		// shipped rules only read host, host|user, and destination;
		// UserKeySize exposes the user index to callers.
		eng.window(userKey(en.user)).add(en, retention, maxEvents)
	}
	var destWin *window
	if en.dest != "" {
		destWin = eng.window(destKey(en.dest))
		destWin.add(en, retention, maxEvents)
	}

	var matches []*Match
	hostEntries := hostWin.snapshot(en.ts.Add(-retention))
	if hostUserWin != nil {
		huEntries := hostUserWin.snapshot(en.ts.Add(-retention))
		if m := detectBruteForce(huEntries, en, eng.cfg.BruteForceThreshold, eng.cfg.BruteForceWindow); m != nil {
			matches = append(matches, m)
		}
		if m := detectChain(huEntries, en, eng.cfg.ChainWindow); m != nil {
			matches = append(matches, m)
		}
	}
	if destWin != nil {
		destEntries := destWin.snapshot(en.ts.Add(-retention))
		if m := detectLateralMovement(destEntries, en, eng.cfg.LateralMovementHosts, eng.cfg.LateralMovementWindow); m != nil {
			matches = append(matches, m)
		}
	}
	if m := detectBurst(hostEntries, en, eng.cfg.BurstThreshold, eng.cfg.BurstWindow); m != nil {
		matches = append(matches, m)
	}

	rate := 0
	cutoff := en.ts.Add(-anomalyRateWindow)
	for _, e := range hostEntries {
		if !e.ts.Before(cutoff) {
			rate++
		}
	}
	anomaly := eng.baseline(hostKey(en.host)).observe(
		float64(rate), eng.cfg.AnomalySmoothing, eng.cfg.AnomalyMinSamples)

	res := &Result{AnomalyScore: anomaly}
	for _, m := range matches {
		res.MatchedRules = append(res.MatchedRules, string(m.Rule))
		if m.Rule == RuleBurst {
			res.BurstScore = m.Confidence
		}
		if res.Primary == nil ||
			m.Confidence > res.Primary.Confidence ||
			(m.Confidence == res.Primary.Confidence && m.Rule.priority() > res.Primary.Rule.priority()) {
			res.Primary = m
		}
	}
	if res.Primary != nil {
		res.HasCorrelation = true
		res.ConfidenceScore = res.Primary.Confidence
	}

	eng.recordStats(en, res)
	return res
}

// AnalyzeBatch feeds a slice of events through the engine in timestamp
// order and returns the primary matches found. window overrides the
// configured history retention for the batch, which is what backfill
// wants when replaying a wider time span.
func (eng *Engine) AnalyzeBatch(events []*models.SecurityEvent, window time.Duration) []*Match {
	sorted := make([]*models.SecurityEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Event.Timestamp.Before(sorted[j].Event.Timestamp)
	})

	retention := eng.cfg.EventHistoryRetention
	if window > 0 {
		retention = window
	}

	var out []*Match
	for _, se := range sorted {
		if res := eng.analyze(se, retention); res.Primary != nil {
			out = append(out, res.Primary)
		}
	}
	return out
}

// DetectAttackChains scans the given events for privilege-escalation
// sequences per (host, user), independent of the engine's windows.
// Chains missing only the final process-creation step are reported too.
func (eng *Engine) DetectAttackChains(events []*models.SecurityEvent, window time.Duration) []Chain {
	byKey := make(map[string][]entry)
	for _, se := range events {
		en := entryFrom(se)
		if en.user == "" {
			continue
		}
		k := hostUserKey(en.host, en.user)
		byKey[k] = append(byKey[k], en)
	}

	var keys []string
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var chains []Chain
	for _, k := range keys {
		entries := byKey[k]
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })

		last := entries[len(entries)-1].ts
		ids, times := scanChain(entries, last.Add(-window))
		missing := len(chainSteps) - len(ids)
		// Require at least logon plus escalation.
		if len(ids) < 2 {
			continue
		}
		chains = append(chains, Chain{
			Host:         entries[0].host,
			User:         entries[0].user,
			Steps:        chainSteps[:len(ids)],
			EventIDs:     ids,
			MissingSteps: missing,
			Confidence:   chainConfidence(missing),
			Start:        times[0],
			End:          times[len(times)-1],
		})
	}
	return chains
}

func (eng *Engine) recordStats(en entry, res *Result) {
	eng.statsMu.Lock()
	defer eng.statsMu.Unlock()

	eng.analyzed++
	if !res.HasCorrelation {
		return
	}
	eng.found++
	for _, m := range res.MatchedRules {
		eng.matchesByRule[RuleType(m)]++
	}
	pattern := string(res.Primary.Rule) + " " + en.host
	if en.user != "" {
		pattern += "|" + en.user
	}
	eng.patterns[pattern]++
}

// Statistics returns engine counters and the top ten matched patterns.
func (eng *Engine) Statistics() Statistics {
	eng.mu.RLock()
	activeKeys := len(eng.windows)
	eng.mu.RUnlock()

	eng.statsMu.Lock()
	defer eng.statsMu.Unlock()

	byRule := make(map[RuleType]int64, len(eng.matchesByRule))
	for k, v := range eng.matchesByRule {
		byRule[k] = v
	}
	top := make([]PatternCount, 0, len(eng.patterns))
	for p, c := range eng.patterns {
		top = append(top, PatternCount{Pattern: p, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Pattern < top[j].Pattern
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return Statistics{
		EventsAnalyzed:    eng.analyzed,
		CorrelationsFound: eng.found,
		MatchesByRule:     byRule,
		ActiveKeys:        activeKeys,
		TopPatterns:       top,
	}
}

// KeySize reports the current entry count for a host window. Exposed
// for tests asserting the per-key cap.
func (eng *Engine) KeySize(host string) int {
	return eng.window(hostKey(host)).size()
}

// UserKeySize reports the current entry count for a user window, which
// aggregates one user's activity across hosts.
func (eng *Engine) UserKeySize(user string) int {
	return eng.window(userKey(user)).size()
}
