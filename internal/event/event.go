package event

import (
	"strconv"
	"strings"
	"time"
)

// Type classifies the kind of sender that produced an event.
type Type string

const (
	TypeBotAction        Type = "bot_action"
	TypeCRMSync          Type = "crm_sync"
	TypeLeadCapture      Type = "lead_capture"
	TypeAutomationStatus Type = "automation_status"
)

// Valid reports whether t is a member of the closed event type set.
func (t Type) Valid() bool {
	switch t {
	case TypeBotAction, TypeCRMSync, TypeLeadCapture, TypeAutomationStatus:
		return true
	}
	return false
}

// Status is the sender-reported outcome of the automation step.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusProcessing Status = "processing"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusError, StatusProcessing:
		return true
	}
	return false
}

// Action determines downstream handling of an event.
type Action string

const (
	ActionLeadCaptured   Action = "lead_captured"
	ActionEmailSent      Action = "email_sent"
	ActionMeetingBooked  Action = "meeting_booked"
	ActionCallEscalation Action = "call_escalation"
	ActionPipelineUpdate Action = "pipeline_update"
)

// Valid reports whether a is a member of the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionLeadCaptured, ActionEmailSent, ActionMeetingBooked,
		ActionCallEscalation, ActionPipelineUpdate:
		return true
	}
	return false
}

// Event is an immutable webhook event as received from a bot or automation
// runner. The sender-supplied Timestamp is used for display ordering only and
// is not trusted for causal ordering.
type Event struct {
	Type      Type      `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	BotID     string    `json:"botId"`
	Status    Status    `json:"status"`
	Action    Action    `json:"action"`

	// Optional fields. Pointer types distinguish absent from zero.
	LeadID           string   `json:"leadId,omitempty"`
	ConfidenceScore  *float64 `json:"confidenceScore,omitempty"`
	ProcessingTimeMs *float64 `json:"processingTimeMs,omitempty"`
	Value            string   `json:"value,omitempty"` // money string, e.g. "$75,000"
	ClientName       string   `json:"clientName,omitempty"`
	ErrorDetails     string   `json:"errorDetails,omitempty"`
	QueueDepth       *int     `json:"queueDepth,omitempty"`
	ScenarioID       string   `json:"scenarioId,omitempty"`

	// Conversational signals consumed by the escalation detector.
	SentimentScore  *float64 `json:"sentimentScore,omitempty"` // -1..1
	MessageText     string   `json:"messageText,omitempty"`
	CallDurationSec float64  `json:"callDurationSec,omitempty"`
}

// SessionKey returns the key scoping rolling escalation context for this
// event: botId, refined by scenarioId when the sender supplies one.
func (e Event) SessionKey() string {
	if e.ScenarioID != "" {
		return e.BotID + ":" + e.ScenarioID
	}
	return e.BotID
}

// ParseMoney parses a money string like "$75,000" or "120000.50" into a
// float64. Returns 0 and false when the string is empty or not a number.
func ParseMoney(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
