package escalation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/event"
)

// derivedCooldown suppresses repeated derived escalations for the same
// session; the direct path is never suppressed.
const derivedCooldown = 15 * time.Minute

// actionURLPrefix is where the dashboard surfaces an escalated session.
const actionURLPrefix = "/escalations/"

// Severity is the ordinal urgency of a notification.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: low < medium < high < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Notification is the human-facing alert derived from an escalation
// decision. It is consumed once by the dispatcher and never persisted.
type Notification struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Severity   Severity  `json:"severity"`
	ActionURL  string    `json:"action_url"`
	BotID      string    `json:"bot_id"`
	SessionKey string    `json:"session_key"`
	CreatedAt  time.Time `json:"created_at"`

	// Secondary requests the SMS-equivalent backstop channel in addition to
	// the observer broadcast. Set on direct call escalations only.
	Secondary bool `json:"-"`
}

// Decision is the outcome of evaluating one event against its session
// context. Notification is non-nil iff Escalate is true.
type Decision struct {
	Escalate     bool
	Reason       string
	Severity     Severity
	Notification *Notification
}

// Detector evaluates escalation rules over events plus rolling per-session
// context. Safe for concurrent use.
type Detector struct {
	mu       sync.Mutex
	rules    config.EscalationConfig
	keywords []string // lowercased copy of rules.NegativeKeywords
	sessions map[string]*session

	now func() time.Time // injectable for deterministic tests
}

// New creates a Detector with the given rule configuration.
func New(rules config.EscalationConfig) *Detector {
	d := &Detector{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
	d.UpdateRules(rules)
	return d
}

// UpdateRules swaps the rule configuration. Existing session context is
// kept; the new thresholds apply from the next Evaluate.
func (d *Detector) UpdateRules(rules config.EscalationConfig) {
	kws := make([]string, 0, len(rules.NegativeKeywords))
	for _, kw := range rules.NegativeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	d.mu.Lock()
	d.rules = rules
	d.keywords = kws
	d.mu.Unlock()
}

// Evaluate folds ev into its session context and returns the escalation
// decision. Events that do not trigger still update the context.
func (d *Detector) Evaluate(ev event.Event) Decision {
	now := d.now()
	s, rules, keywords := d.sessionFor(ev.SessionKey(), now)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.observe(ev, now, rules.SignalWindow)

	// Direct signal: an explicit human-handoff request from the bot.
	if ev.Action == event.ActionCallEscalation && ev.Status == event.StatusSuccess {
		sev := SeverityHigh
		value, ok := event.ParseMoney(ev.Value)
		if !ok {
			value = s.dealValue
		}
		if value > rules.HighValueThreshold {
			sev = SeverityCritical
		}
		return d.decide(s, ev, sev, "call_escalation", true, now)
	}

	// Derived signal: the accumulated context crosses a line on its own.
	if !s.lastDerived.IsZero() && now.Sub(s.lastDerived) < derivedCooldown {
		return Decision{}
	}

	reason := ""
	if mean, ok := s.rollingSentiment(); ok && mean < rules.SentimentThreshold {
		reason = fmt.Sprintf("rolling sentiment %.2f below %.2f", mean, rules.SentimentThreshold)
	}
	if reason == "" {
		if kw := s.matchKeyword(keywords); kw != "" {
			reason = fmt.Sprintf("negative keyword %q", kw)
		}
	}
	if reason == "" &&
		s.dealValue > rules.DerivedValueThreshold &&
		s.duration(now) > rules.MinSessionDuration {
		reason = fmt.Sprintf("deal value %.0f in session for %s", s.dealValue, s.duration(now).Round(time.Second))
	}
	if reason == "" {
		return Decision{}
	}

	sev := SeverityHigh
	if s.dealValue > rules.HighValueThreshold {
		sev = SeverityCritical
	}
	s.lastDerived = now
	return d.decide(s, ev, sev, reason, false, now)
}

// sessionFor returns the live session for key, creating a fresh one when
// none exists or the existing one has idled out (lazy eviction). The current
// rules and keyword set are returned alongside to keep one lock acquisition.
// lastSeen is guarded by the session mutex, so the idle check takes it;
// lock order is always d.mu then s.mu.
func (d *Detector) sessionFor(key string, now time.Time) (*session, config.EscalationConfig, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[key]
	if ok {
		s.mu.Lock()
		idle := now.Sub(s.lastSeen) > d.rules.IdleTimeout
		s.mu.Unlock()
		if idle {
			ok = false
		}
	}
	if !ok {
		s = &session{key: key, lastSeen: now}
		d.sessions[key] = s
	}
	return s, d.rules, d.keywords
}

// decide builds the escalation decision and its notification. Called with
// the session lock held.
func (d *Detector) decide(s *session, ev event.Event, sev Severity, reason string, secondary bool, now time.Time) Decision {
	client := s.clientName
	if client == "" {
		client = ev.BotID
	}
	title := fmt.Sprintf("Escalation: %s", client)
	body := fmt.Sprintf("Session %s needs human attention (%s)", s.key, reason)
	if s.dealValue > 0 {
		body = fmt.Sprintf("%s, estimated value $%.0f", body, s.dealValue)
	}

	return Decision{
		Escalate: true,
		Reason:   reason,
		Severity: sev,
		Notification: &Notification{
			ID:         uuid.NewString(),
			Title:      title,
			Body:       body,
			Severity:   sev,
			ActionURL:  actionURLPrefix + s.key,
			BotID:      ev.BotID,
			SessionKey: s.key,
			CreatedAt:  now,
			Secondary:  secondary,
		},
	}
}

// matchKeyword returns the first configured keyword found in the windowed
// message texts, or "".
func (s *session) matchKeyword(keywords []string) string {
	for _, sig := range s.signals {
		if sig.Text == "" {
			continue
		}
		text := strings.ToLower(sig.Text)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return kw
			}
		}
	}
	return ""
}
