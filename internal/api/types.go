package api

import "github.com/pulseboard/pulseboard/internal/escalation"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State           string `json:"state"` // healthy | degraded | critical
	UrgentAttention bool   `json:"urgent_attention"`
	EventsTotal     int64  `json:"events_total"`
	ErrorsTotal     int64  `json:"errors_total"`
	Observers       int    `json:"observers"`
	DroppedMessages int64  `json:"dropped_messages"`
	GeneratedAt     string `json:"generated_at"` // RFC3339
}

// EscalationsResponse is the payload for GET /api/v1/escalations.
type EscalationsResponse struct {
	Sessions    []escalation.SessionSummary `json:"sessions"`
	GeneratedAt string                      `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
