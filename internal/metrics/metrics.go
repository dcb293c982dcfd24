package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/event"
)

// healthWindow is how many recent event statuses feed the rolling system
// health indicator.
const healthWindow = 50

// System health thresholds on the rolling error ratio.
const (
	degradedErrorRatio = 0.25
	criticalErrorRatio = 0.50
)

// Delta describes the change one event applied to the aggregate. A zero
// Delta (Applied == false) means the action mapped to no counters.
type Delta struct {
	Applied         bool     `json:"applied"`
	NewLeads        int64    `json:"new_leads,omitempty"`
	EmailsSent      int64    `json:"emails_sent,omitempty"`
	MeetingsBooked  int64    `json:"meetings_booked,omitempty"`
	Escalations     int64    `json:"escalations,omitempty"`
	PipelineUpdates int64    `json:"pipeline_updates,omitempty"`
	Errors          int64    `json:"errors,omitempty"`
	UrgentAttention bool     `json:"urgent_attention,omitempty"`
	ProcessingMs    *float64 `json:"processing_ms,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// Snapshot is a copy of the live aggregate taken after a delta was applied.
type Snapshot struct {
	LeadsCaptured   int64 `json:"leads_captured"`
	EmailsSent      int64 `json:"emails_sent"`
	MeetingsBooked  int64 `json:"meetings_booked"`
	Escalations     int64 `json:"escalations"`
	PipelineUpdates int64 `json:"pipeline_updates"`
	ErrorsTotal     int64 `json:"errors_total"`
	EventsTotal     int64 `json:"events_total"`

	QueueDepths map[event.Action]int `json:"queue_depths"`

	AvgProcessingMs  float64 `json:"avg_processing_ms"`
	LastProcessingMs float64 `json:"last_processing_ms"`
	AvgConfidence    float64 `json:"avg_confidence"`

	UrgentAttention bool      `json:"urgent_attention"`
	SystemHealth    string    `json:"system_health"` // healthy | degraded | critical
	UpdatedAt       time.Time `json:"updated_at"`
}

// Aggregator owns the shared live metrics. Safe for concurrent use; all
// mutation goes through Apply.
type Aggregator struct {
	mu sync.Mutex

	leads, emails, meetings, escalations, pipeline int64
	errs, events                                   int64
	queueDepths                                    map[event.Action]int

	procSum, procLast float64
	procCount         int64
	confSum           float64
	confCount         int64

	urgent bool

	// recentErrors is a ring of the last healthWindow event outcomes.
	recentErrors []bool
	recentPos    int

	prom *collectors
	now  func() time.Time // injectable for deterministic tests
}

// New creates an Aggregator with zeroed counters. Prometheus mirroring is
// disabled until EnablePrometheus is called.
func New() *Aggregator {
	return &Aggregator{
		queueDepths:  make(map[event.Action]int),
		recentErrors: make([]bool, 0, healthWindow),
		now:          time.Now,
	}
}

// Apply maps ev.Action to a deterministic delta, applies it to the aggregate
// and returns the delta together with the post-update snapshot. Validated
// actions the aggregator does not map are a logged no-op delta, never fatal.
func (a *Aggregator) Apply(ev event.Event) (Delta, Snapshot) {
	d := deltaFor(ev)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.events++
	a.leads += d.NewLeads
	a.emails += d.EmailsSent
	a.meetings += d.MeetingsBooked
	a.escalations += d.Escalations
	a.pipeline += d.PipelineUpdates
	a.errs += d.Errors
	if d.UrgentAttention {
		a.urgent = true
	}
	if ev.QueueDepth != nil {
		a.queueDepths[ev.Action] = *ev.QueueDepth
	}
	if d.ProcessingMs != nil {
		a.procSum += *d.ProcessingMs
		a.procLast = *d.ProcessingMs
		a.procCount++
	}
	if d.Confidence != nil {
		a.confSum += *d.Confidence
		a.confCount++
	}
	a.recordOutcome(ev.Status == event.StatusError)

	if !d.Applied {
		slog.Warn("metrics: unmapped action applied as no-op", "action", ev.Action, "bot_id", ev.BotID)
	}
	if a.prom != nil {
		a.prom.observe(ev, d)
	}
	return d, a.snapshotLocked()
}

// Snapshot returns a copy of the current aggregate without applying a delta.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// ClearUrgent drops the urgent-attention flag. Called by operators through
// the admin surface once a critical escalation has been picked up.
func (a *Aggregator) ClearUrgent() {
	a.mu.Lock()
	a.urgent = false
	a.mu.Unlock()
}

func (a *Aggregator) recordOutcome(isError bool) {
	if len(a.recentErrors) < healthWindow {
		a.recentErrors = append(a.recentErrors, isError)
		return
	}
	a.recentErrors[a.recentPos] = isError
	a.recentPos = (a.recentPos + 1) % healthWindow
}

func (a *Aggregator) snapshotLocked() Snapshot {
	s := Snapshot{
		LeadsCaptured:    a.leads,
		EmailsSent:       a.emails,
		MeetingsBooked:   a.meetings,
		Escalations:      a.escalations,
		PipelineUpdates:  a.pipeline,
		ErrorsTotal:      a.errs,
		EventsTotal:      a.events,
		QueueDepths:      make(map[event.Action]int, len(a.queueDepths)),
		LastProcessingMs: a.procLast,
		UrgentAttention:  a.urgent,
		SystemHealth:     a.healthLocked(),
		UpdatedAt:        a.now(),
	}
	for k, v := range a.queueDepths {
		s.QueueDepths[k] = v
	}
	if a.procCount > 0 {
		s.AvgProcessingMs = a.procSum / float64(a.procCount)
	}
	if a.confCount > 0 {
		s.AvgConfidence = a.confSum / float64(a.confCount)
	}
	return s
}

func (a *Aggregator) healthLocked() string {
	if len(a.recentErrors) == 0 {
		return "healthy"
	}
	errCount := 0
	for _, e := range a.recentErrors {
		if e {
			errCount++
		}
	}
	ratio := float64(errCount) / float64(len(a.recentErrors))
	switch {
	case ratio >= criticalErrorRatio:
		return "critical"
	case ratio >= degradedErrorRatio:
		return "degraded"
	default:
		return "healthy"
	}
}

// deltaFor maps an action to its counter delta. The switch is exhaustive
// over the closed action set; a new action must be added here deliberately.
func deltaFor(ev event.Event) Delta {
	d := Delta{
		ProcessingMs: ev.ProcessingTimeMs,
		Confidence:   ev.ConfidenceScore,
	}
	if ev.Status == event.StatusError {
		d.Errors = 1
	}
	switch ev.Action {
	case event.ActionLeadCaptured:
		d.Applied = true
		if ev.Status != event.StatusError {
			d.NewLeads = 1
		}
	case event.ActionEmailSent:
		d.Applied = true
		if ev.Status != event.StatusError {
			d.EmailsSent = 1
		}
	case event.ActionMeetingBooked:
		d.Applied = true
		if ev.Status != event.StatusError {
			d.MeetingsBooked = 1
		}
	case event.ActionCallEscalation:
		d.Applied = true
		d.Escalations = 1
		d.UrgentAttention = true
	case event.ActionPipelineUpdate:
		d.Applied = true
		if ev.Status != event.StatusError {
			d.PipelineUpdates = 1
		}
	}
	return d
}
