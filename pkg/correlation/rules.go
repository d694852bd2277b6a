package correlation

import (
	"fmt"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

// detectBruteForce looks for repeated authentication failures on one
// (host, user), optionally followed by a success within the same window.
func detectBruteForce(hostUser []entry, current entry, threshold int, window time.Duration) *Match {
	since := current.ts.Add(-window)

	var failureIDs []string
	var lastFailure time.Time
	for _, e := range hostUser {
		if e.ts.Before(since) || e.eventType != models.EventTypeAuthFailure {
			continue
		}
		failureIDs = append(failureIDs, e.uniqueID)
		if e.ts.After(lastFailure) {
			lastFailure = e.ts
		}
	}
	if len(failureIDs) < threshold {
		return nil
	}

	confidence := minF(1, float64(len(failureIDs))/float64(threshold))
	ids := failureIDs
	succeeded := false
	for _, e := range hostUser {
		if e.eventType == models.EventTypeAuthSuccess && e.ts.After(lastFailure) {
			succeeded = true
			ids = append(ids, e.uniqueID)
			break
		}
	}
	if succeeded {
		confidence = minF(1, confidence+0.2)
	}

	summary := fmt.Sprintf("Possible brute-force attack: %d authentication failures for %q on %s",
		len(failureIDs), current.user, current.host)
	if succeeded {
		summary += ", followed by a successful logon"
	}

	return &Match{
		Rule:            RuleBruteForce,
		Confidence:      confidence,
		EventType:       models.EventTypeAuthFailure,
		RiskLevel:       models.RiskHigh,
		Summary:         summary,
		MitreTechniques: []string{"T1110"},
		RecommendedActions: []string{
			"Lock or reset the targeted account",
			"Review source addresses of the failed logons",
			"Check for successful logons from the same source",
		},
		EventIDs: ids,
	}
}

// detectLateralMovement looks for multiple distinct hosts reaching the
// same destination address within the window.
func detectLateralMovement(dest []entry, current entry, hostThreshold int, window time.Duration) *Match {
	if current.dest == "" {
		return nil
	}
	since := current.ts.Add(-window)

	hosts := make(map[string]struct{})
	var ids []string
	for _, e := range dest {
		if e.ts.Before(since) {
			continue
		}
		hosts[e.host] = struct{}{}
		ids = append(ids, e.uniqueID)
	}
	if len(hosts) < hostThreshold {
		return nil
	}

	return &Match{
		Rule:       RuleLateralMovement,
		Confidence: minF(1, float64(len(hosts))/5),
		EventType:  models.EventTypeNetworkConnection,
		RiskLevel:  models.RiskHigh,
		Summary: fmt.Sprintf("Possible lateral movement: %d hosts connecting to %s",
			len(hosts), current.dest),
		MitreTechniques: []string{"T1021"},
		RecommendedActions: []string{
			"Isolate the destination host",
			"Review remote-service logons across the involved hosts",
		},
		EventIDs: ids,
	}
}

// detectBurst looks for an abnormal count of same-type events on one
// host within a short window.
func detectBurst(host []entry, current entry, threshold int, window time.Duration) *Match {
	since := current.ts.Add(-window)

	var ids []string
	for _, e := range host {
		if e.ts.Before(since) || e.eventType != current.eventType {
			continue
		}
		ids = append(ids, e.uniqueID)
	}
	if len(ids) < threshold {
		return nil
	}

	return &Match{
		Rule:       RuleBurst,
		Confidence: minF(1, float64(len(ids))/float64(2*threshold)),
		EventType:  current.eventType,
		RiskLevel:  models.RiskMedium,
		Summary: fmt.Sprintf("Burst of %d %s events on %s within %s",
			len(ids), current.eventType, current.host, window),
		RecommendedActions: []string{
			"Inspect the host for runaway or scripted activity",
		},
		EventIDs: ids,
	}
}

// chainSteps is the privilege-escalation sequence, in order.
var chainSteps = []models.EventType{
	models.EventTypeAuthSuccess,
	models.EventTypePrivilegeEscalation,
	models.EventTypeProcessCreation,
}

// scanChain finds the longest in-order prefix-respecting occurrence of
// the escalation sequence in the timestamp-ascending entries. Each step
// must be strictly after the previous one.
func scanChain(entries []entry, since time.Time) (stepIDs []string, stepTimes []time.Time) {
	next := 0
	for _, e := range entries {
		if next >= len(chainSteps) {
			break
		}
		if e.ts.Before(since) {
			continue
		}
		if e.eventType != chainSteps[next] {
			continue
		}
		if next > 0 && !e.ts.After(stepTimes[next-1]) {
			continue
		}
		stepIDs = append(stepIDs, e.uniqueID)
		stepTimes = append(stepTimes, e.ts)
		next++
	}
	return stepIDs, stepTimes
}

// chainConfidence maps missing-step count to a confidence value.
func chainConfidence(missing int) float64 {
	return minF(1, 0.8+0.1*float64(3-missing))
}

// detectChain fires only on a complete three-step sequence; partial
// chains are surfaced through DetectAttackChains instead.
func detectChain(hostUser []entry, current entry, window time.Duration) *Match {
	since := current.ts.Add(-window)
	ids, _ := scanChain(hostUser, since)
	if len(ids) < len(chainSteps) {
		return nil
	}

	return &Match{
		Rule:       RuleAttackChain,
		Confidence: chainConfidence(0),
		EventType:  models.EventTypePrivilegeEscalation,
		RiskLevel:  models.RiskCritical,
		Summary: fmt.Sprintf("Privilege-escalation chain for %q on %s: logon, escalation, process creation",
			current.user, current.host),
		MitreTechniques: []string{"T1078", "T1548"},
		RecommendedActions: []string{
			"Terminate the suspicious process tree",
			"Disable the account pending investigation",
		},
		EventIDs: ids,
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
