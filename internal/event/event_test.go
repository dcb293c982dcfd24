package event

import (
	"errors"
	"testing"
)

func validJSON() []byte {
	return []byte(`{
		"eventType": "lead_capture",
		"timestamp": "2026-01-02T15:04:05Z",
		"botId": "bot-7",
		"status": "success",
		"action": "lead_captured",
		"confidenceScore": 0.92
	}`)
}

func TestParse_Valid(t *testing.T) {
	ev, err := Parse(validJSON())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Type != TypeLeadCapture {
		t.Errorf("Type: got %q, want lead_capture", ev.Type)
	}
	if ev.BotID != "bot-7" {
		t.Errorf("BotID: got %q, want bot-7", ev.BotID)
	}
	if ev.Action != ActionLeadCaptured {
		t.Errorf("Action: got %q, want lead_captured", ev.Action)
	}
	if ev.ConfidenceScore == nil || *ev.ConfidenceScore != 0.92 {
		t.Errorf("ConfidenceScore: got %v, want 0.92", ev.ConfidenceScore)
	}
}

func TestParse_Deterministic(t *testing.T) {
	a, err := Parse(validJSON())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := Parse(validJSON())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Type != b.Type || a.BotID != b.BotID || a.Action != b.Action || a.Status != b.Status {
		t.Errorf("identical input parsed differently: %+v vs %+v", a, b)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing eventType", `{"botId":"b","status":"success","action":"email_sent"}`},
		{"unknown eventType", `{"eventType":"nope","botId":"b","status":"success","action":"email_sent"}`},
		{"missing botId", `{"eventType":"bot_action","status":"success","action":"email_sent"}`},
		{"missing status", `{"eventType":"bot_action","botId":"b","action":"email_sent"}`},
		{"unknown status", `{"eventType":"bot_action","botId":"b","status":"maybe","action":"email_sent"}`},
		{"missing action", `{"eventType":"bot_action","botId":"b","status":"success"}`},
		{"unknown action", `{"eventType":"bot_action","botId":"b","status":"success","action":"self_destruct"}`},
		{"confidence above 1", `{"eventType":"bot_action","botId":"b","status":"success","action":"email_sent","confidenceScore":1.1}`},
		{"confidence below 0", `{"eventType":"bot_action","botId":"b","status":"success","action":"email_sent","confidenceScore":-0.1}`},
		{"negative processing time", `{"eventType":"bot_action","botId":"b","status":"success","action":"email_sent","processingTimeMs":-5}`},
		{"negative queue depth", `{"eventType":"bot_action","botId":"b","status":"success","action":"email_sent","queueDepth":-1}`},
		{"sentiment out of range", `{"eventType":"bot_action","botId":"b","status":"success","action":"email_sent","sentimentScore":-2}`},
		{"non-money value", `{"eventType":"bot_action","botId":"b","status":"success","action":"email_sent","value":"lots"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body))
			if err == nil {
				t.Fatal("Parse: expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("error %v does not wrap ErrInvalidPayload", err)
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"75000", 75000, true},
		{"$75,000", 75000, true},
		{"120000.50", 120000.50, true},
		{" $1,234.56 ", 1234.56, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-100", 0, false},
		{"$", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseMoney(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseMoney(%q): got (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSessionKey(t *testing.T) {
	ev := Event{BotID: "bot-1"}
	if k := ev.SessionKey(); k != "bot-1" {
		t.Errorf("SessionKey: got %q, want bot-1", k)
	}
	ev.ScenarioID = "scn-9"
	if k := ev.SessionKey(); k != "bot-1:scn-9" {
		t.Errorf("SessionKey: got %q, want bot-1:scn-9", k)
	}
}

func TestParse_OptionalFieldsAbsent(t *testing.T) {
	ev, err := Parse([]byte(`{"eventType":"crm_sync","botId":"b","status":"processing","action":"pipeline_update"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.ConfidenceScore != nil || ev.ProcessingTimeMs != nil || ev.QueueDepth != nil || ev.SentimentScore != nil {
		t.Errorf("optional fields: expected all nil, got %+v", ev)
	}
}
