package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/escalation"
	"github.com/pulseboard/pulseboard/internal/event"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/ws"
)

func newAPI(t *testing.T) (*httptest.Server, *metrics.Aggregator, *escalation.Detector) {
	t.Helper()
	agg := metrics.New()
	det := escalation.New(config.Defaults().Escalation)
	hub := ws.New(agg, time.Hour, 16)
	srv := httptest.NewServer(api.New(agg, det, hub))
	t.Cleanup(srv.Close)
	return srv, agg, det
}

func get(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func applyEvent(t *testing.T, agg *metrics.Aggregator, action event.Action, status event.Status) {
	t.Helper()
	agg.Apply(event.Event{
		Type:   event.TypeBotAction,
		BotID:  "bot-1",
		Status: status,
		Action: action,
	})
}

func TestHealth(t *testing.T) {
	srv, agg, _ := newAPI(t)
	applyEvent(t, agg, event.ActionLeadCaptured, event.StatusSuccess)
	for i := 0; i < 6; i++ {
		applyEvent(t, agg, event.ActionEmailSent, event.StatusSuccess)
	}
	applyEvent(t, agg, event.ActionEmailSent, event.StatusError)

	var h api.HealthResponse
	resp := get(t, srv, "/api/v1/health", &h)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	// 1 error out of 8 recent statuses stays under the degraded ratio.
	if h.State != "healthy" {
		t.Errorf("state: got %q, want healthy", h.State)
	}
	if h.EventsTotal != 8 {
		t.Errorf("events_total: got %d, want 8", h.EventsTotal)
	}
	if h.ErrorsTotal != 1 {
		t.Errorf("errors_total: got %d, want 1", h.ErrorsTotal)
	}
	if h.Observers != 0 {
		t.Errorf("observers: got %d, want 0", h.Observers)
	}
	if h.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
}

func TestHealth_UrgentAttention(t *testing.T) {
	srv, agg, _ := newAPI(t)
	applyEvent(t, agg, event.ActionCallEscalation, event.StatusSuccess)

	var h api.HealthResponse
	get(t, srv, "/api/v1/health", &h)
	if !h.UrgentAttention {
		t.Error("urgent_attention: got false, want true")
	}
}

func TestMetrics(t *testing.T) {
	srv, agg, _ := newAPI(t)
	applyEvent(t, agg, event.ActionLeadCaptured, event.StatusSuccess)
	applyEvent(t, agg, event.ActionMeetingBooked, event.StatusSuccess)

	var snap metrics.Snapshot
	resp := get(t, srv, "/api/v1/metrics", &snap)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if snap.LeadsCaptured != 1 {
		t.Errorf("leads_captured: got %d, want 1", snap.LeadsCaptured)
	}
	if snap.MeetingsBooked != 1 {
		t.Errorf("meetings_booked: got %d, want 1", snap.MeetingsBooked)
	}
	if snap.EventsTotal != 2 {
		t.Errorf("events_total: got %d, want 2", snap.EventsTotal)
	}
}

func TestEscalations_SortedByRecency(t *testing.T) {
	srv, _, det := newAPI(t)

	det.Evaluate(event.Event{
		Type: event.TypeBotAction, BotID: "bot-old",
		Status: event.StatusSuccess, Action: event.ActionEmailSent,
	})
	time.Sleep(5 * time.Millisecond)
	det.Evaluate(event.Event{
		Type: event.TypeBotAction, BotID: "bot-new",
		Status: event.StatusSuccess, Action: event.ActionEmailSent,
		ClientName: "Globex",
	})

	var out api.EscalationsResponse
	resp := get(t, srv, "/api/v1/escalations", &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if len(out.Sessions) != 2 {
		t.Fatalf("sessions: got %d, want 2", len(out.Sessions))
	}
	if out.Sessions[0].Key != "bot-new" {
		t.Errorf("first session: got %q, want bot-new", out.Sessions[0].Key)
	}
	if out.Sessions[0].ClientName != "Globex" {
		t.Errorf("client_name: got %q, want Globex", out.Sessions[0].ClientName)
	}
}

func TestEscalations_EmptyIsJSONArray(t *testing.T) {
	srv, _, _ := newAPI(t)

	var out api.EscalationsResponse
	get(t, srv, "/api/v1/escalations", &out)
	if out.Sessions == nil {
		t.Error("sessions: got null, want []")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newAPI(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/metrics", "/api/v1/escalations"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, resp.StatusCode)
		}
	}
}
