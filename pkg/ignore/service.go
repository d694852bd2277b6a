// Package ignore suppresses fused security events that match
// allow-listed benign patterns. Applied after fusion, before persistence.
package ignore

import (
	"log/slog"
	"path"
	"strconv"

	"github.com/castellan/castellan/pkg/config"
	"github.com/castellan/castellan/pkg/models"
)

// Service evaluates a fixed rule list. A rule matches when every
// non-empty field matches; an event is ignored when any rule matches.
type Service struct {
	rules []config.IgnoreRule
}

// NewService creates a service over the configured rules.
func NewService(rules []config.IgnoreRule) *Service {
	return &Service{rules: rules}
}

// ShouldIgnore reports whether the event matches any ignore rule.
func (s *Service) ShouldIgnore(se *models.SecurityEvent) bool {
	for i := range s.rules {
		if s.matches(&s.rules[i], se) {
			slog.Debug("Event matched ignore rule",
				"event_id", se.ID,
				"rule", i)
			return true
		}
	}
	return false
}

func (s *Service) matches(r *config.IgnoreRule, se *models.SecurityEvent) bool {
	if r.EventType != "" && r.EventType != string(se.EventType) {
		return false
	}
	if r.MitreTechnique != "" && !containsTechnique(se.MitreTechniques, r.MitreTechnique) {
		return false
	}
	if r.Channel != "" && !globMatch(r.Channel, se.Event.Channel) {
		return false
	}
	if r.EventID != nil && *r.EventID != se.Event.EventID {
		return false
	}
	if r.UserPattern != "" && !globMatch(r.UserPattern, se.Event.User) {
		return false
	}
	return true
}

func containsTechnique(techniques []string, want string) bool {
	for _, t := range techniques {
		if t == want {
			return true
		}
	}
	return false
}

// globMatch matches with path.Match semantics, falling back to exact
// comparison on a malformed pattern.
func globMatch(pattern, value string) bool {
	ok, err := path.Match(pattern, value)
	if err != nil {
		slog.Warn("Malformed ignore pattern, using exact match",
			"pattern", strconv.Quote(pattern))
		return pattern == value
	}
	return ok
}
