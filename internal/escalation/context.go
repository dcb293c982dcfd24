package escalation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/event"
)

// Signal is one conversational data point retained in a session's sliding
// window.
type Signal struct {
	Sentiment *float64
	Text      string
	At        time.Time
}

// session is the rolling escalation context for one session key. Guarded by
// its own mutex (see Detector.Evaluate) so different keys evaluate
// concurrently while one key stays strictly ordered.
type session struct {
	mu  sync.Mutex
	key string

	signals     []Signal // sliding window, oldest first, capped at SignalWindow
	firstSeen   time.Time
	lastSeen    time.Time
	callSeconds float64 // accumulated sender-reported call time
	dealValue   float64 // max parsed money value seen this session
	clientName  string
	lastDerived time.Time // last derived-path escalation, for cooldown
}

// observe folds ev into the context. Must be called with the session lock held.
func (s *session) observe(ev event.Event, now time.Time, window int) {
	if s.firstSeen.IsZero() {
		s.firstSeen = now
	}
	s.lastSeen = now
	s.callSeconds += ev.CallDurationSec
	if ev.ClientName != "" {
		s.clientName = ev.ClientName
	}
	if v, ok := event.ParseMoney(ev.Value); ok && v > s.dealValue {
		s.dealValue = v
	}

	if ev.SentimentScore == nil && ev.MessageText == "" {
		return
	}
	s.signals = append(s.signals, Signal{
		Sentiment: ev.SentimentScore,
		Text:      ev.MessageText,
		At:        now,
	})
	if len(s.signals) > window {
		// Drop oldest to keep the window bounded.
		s.signals = s.signals[len(s.signals)-window:]
	}
}

// rollingSentiment returns the mean of the sentiment scores in the window
// and whether any were present.
func (s *session) rollingSentiment() (float64, bool) {
	var sum float64
	var n int
	for _, sig := range s.signals {
		if sig.Sentiment != nil {
			sum += *sig.Sentiment
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// duration is the cumulative session span: wall time since the first event
// plus sender-reported call seconds.
func (s *session) duration(now time.Time) time.Duration {
	span := now.Sub(s.firstSeen)
	return span + time.Duration(s.callSeconds*float64(time.Second))
}

// SessionSummary is a read-only view of one active session, exposed on the
// REST API.
type SessionSummary struct {
	Key              string    `json:"key"`
	ClientName       string    `json:"client_name,omitempty"`
	SignalCount      int       `json:"signal_count"`
	RollingSentiment float64   `json:"rolling_sentiment"`
	DealValue        float64   `json:"deal_value"`
	DurationSec      float64   `json:"duration_sec"`
	LastSeen         time.Time `json:"last_seen"`
}

// Sessions returns summaries of all non-idle sessions, for the REST API.
func (d *Detector) Sessions() []SessionSummary {
	d.mu.Lock()
	idle := d.rules.IdleTimeout
	sessions := make([]*session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	now := d.now()
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		if now.Sub(s.lastSeen) <= idle {
			sent, _ := s.rollingSentiment()
			out = append(out, SessionSummary{
				Key:              s.key,
				ClientName:       s.clientName,
				SignalCount:      len(s.signals),
				RollingSentiment: sent,
				DealValue:        s.dealValue,
				DurationSec:      s.duration(now).Seconds(),
				LastSeen:         s.lastSeen,
			})
		}
		s.mu.Unlock()
	}
	return out
}

// Evict removes sessions idle longer than the configured timeout. Returns
// the number removed. lastSeen reads take the session mutex (lock order
// d.mu then s.mu, same as sessionFor).
func (d *Detector) Evict(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := now.Add(-d.rules.IdleTimeout)
	removed := 0
	for key, s := range d.sessions {
		s.mu.Lock()
		idle := !s.lastSeen.After(cutoff)
		s.mu.Unlock()
		if idle {
			delete(d.sessions, key)
			removed++
		}
	}
	return removed
}

// Run starts the background idle-session sweep. It ticks at half the idle
// timeout (minimum 1 second) and blocks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	d.mu.Lock()
	interval := d.rules.IdleTimeout / 2
	d.mu.Unlock()
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := d.Evict(now); n > 0 {
				slog.Debug("escalation: evicted idle sessions", "count", n)
			}
		}
	}
}
