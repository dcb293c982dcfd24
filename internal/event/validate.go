package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload is wrapped by every validation failure returned from
// Parse. Callers match it with errors.Is and surface HTTP 400.
var ErrInvalidPayload = errors.New("invalid payload")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// Parse decodes raw JSON into an Event and validates it. The zero Event and a
// non-nil error are returned on any failure; no state is mutated.
func Parse(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, invalidf("malformed json: %v", err)
	}
	if err := e.validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (e Event) validate() error {
	if e.Type == "" {
		return invalidf("eventType is required")
	}
	if !e.Type.Valid() {
		return invalidf("unknown eventType %q", e.Type)
	}
	if e.BotID == "" {
		return invalidf("botId is required")
	}
	if e.Status == "" {
		return invalidf("status is required")
	}
	if !e.Status.Valid() {
		return invalidf("unknown status %q", e.Status)
	}
	if e.Action == "" {
		return invalidf("action is required")
	}
	if !e.Action.Valid() {
		return invalidf("unknown action %q", e.Action)
	}
	if e.ConfidenceScore != nil && (*e.ConfidenceScore < 0 || *e.ConfidenceScore > 1) {
		return invalidf("confidenceScore %v outside [0,1]", *e.ConfidenceScore)
	}
	if e.ProcessingTimeMs != nil && *e.ProcessingTimeMs < 0 {
		return invalidf("processingTimeMs %v is negative", *e.ProcessingTimeMs)
	}
	if e.QueueDepth != nil && *e.QueueDepth < 0 {
		return invalidf("queueDepth %d is negative", *e.QueueDepth)
	}
	if e.SentimentScore != nil && (*e.SentimentScore < -1 || *e.SentimentScore > 1) {
		return invalidf("sentimentScore %v outside [-1,1]", *e.SentimentScore)
	}
	if e.CallDurationSec < 0 {
		return invalidf("callDurationSec %v is negative", e.CallDurationSec)
	}
	if e.Value != "" {
		if _, ok := ParseMoney(e.Value); !ok {
			return invalidf("value %q is not a money amount", e.Value)
		}
	}
	return nil
}
