package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/escalation"
	"github.com/pulseboard/pulseboard/internal/event"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/notify"
	"github.com/pulseboard/pulseboard/internal/ws"
)

// maxBodyBytes caps an inbound webhook payload.
const maxBodyBytes = 1 << 20

// Gateway orchestrates the intake pipeline and exposes the webhook routes.
type Gateway struct {
	mux  *http.ServeMux
	agg  *metrics.Aggregator
	det  *escalation.Detector
	disp *notify.Dispatcher
	hub  *ws.Hub

	limiter RateLimiter
	limit   int
	window  time.Duration
}

// New wires the gateway to its pipeline stages. A nil limiter falls back to
// the in-process rate limiter.
func New(agg *metrics.Aggregator, det *escalation.Detector, disp *notify.Dispatcher, hub *ws.Hub, rl config.RateLimitConfig, limiter RateLimiter) *Gateway {
	if limiter == nil {
		limiter = NewMemoryLimiter()
	}
	g := &Gateway{
		mux:     http.NewServeMux(),
		agg:     agg,
		det:     det,
		disp:    disp,
		hub:     hub,
		limiter: limiter,
		limit:   rl.Requests,
		window:  rl.Window,
	}
	g.mux.HandleFunc("/webhook/intake", g.recovered(g.withRateLimit(g.handleIntake)))
	g.mux.HandleFunc("/webhook/performance", g.recovered(g.withRateLimit(g.handlePerformance)))
	g.mux.HandleFunc("/webhook/make-status", g.recovered(g.withRateLimit(g.handleMakeStatus)))
	return g
}

// ServeHTTP delegates to the underlying mux.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

// Close releases the rate limiter.
func (g *Gateway) Close() {
	if g.limiter != nil {
		g.limiter.Close()
	}
}

// handleIntake is the main webhook pipeline.
func (g *Gateway) handleIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ev, err := event.Parse(raw)
	if err != nil {
		if errors.Is(err, event.ErrInvalidPayload) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}

	delta, snap := g.agg.Apply(ev)
	decision := g.det.Evaluate(ev)

	if decision.Escalate {
		// Primary delivery is synchronous and non-blocking; the secondary
		// channel runs detached so it never holds the response open.
		g.disp.Deliver(r.Context(), *decision.Notification)
	}

	g.hub.Publish(ws.Message{Type: ws.MetricsUpdate, Payload: snap})
	g.hub.Publish(ws.Message{Type: ws.LiveActivity, Payload: activityPayload(ev, delta)})
	if ev.QueueDepth != nil {
		g.hub.Publish(ws.Message{Type: ws.QueueUpdate, Payload: map[string]any{
			"action": ev.Action,
			"depth":  *ev.QueueDepth,
		}})
	}
	if ev.Status == event.StatusError {
		g.hub.Publish(ws.Message{Type: ws.AutomationError, Payload: map[string]any{
			"source": "webhook_intake",
			"bot_id": ev.BotID,
			"action": ev.Action,
			"error":  ev.ErrorDetails,
		}})
	}

	eventID := uuid.NewString()
	slog.Info("gateway: event accepted",
		"event_id", eventID,
		"bot_id", ev.BotID,
		"action", ev.Action,
		"status", ev.Status,
		"escalated", decision.Escalate,
	)
	jsonResp(w, http.StatusOK, map[string]any{
		"success":      true,
		"processed_at": time.Now().UTC().Format(time.RFC3339Nano),
		"event_id":     eventID,
	})
}

// activityPayload is the LIVE_ACTIVITY view of an accepted event.
func activityPayload(ev event.Event, delta metrics.Delta) map[string]any {
	p := map[string]any{
		"event_type": ev.Type,
		"bot_id":     ev.BotID,
		"action":     ev.Action,
		"status":     ev.Status,
		"delta":      delta,
	}
	if ev.ClientName != "" {
		p["client_name"] = ev.ClientName
	}
	if ev.LeadID != "" {
		p["lead_id"] = ev.LeadID
	}
	if ev.ConfidenceScore != nil {
		p["confidence_score"] = *ev.ConfidenceScore
	}
	return p
}

// handlePerformance accepts best-effort performance telemetry. It is
// broadcast but participates in neither metrics nor escalation.
func (g *Gateway) handlePerformance(w http.ResponseWriter, r *http.Request) {
	g.handleSideChannel(w, r, "performance", func(body map[string]any) ws.Message {
		if depth, ok := numberField(body, "queueDepth", "queue_depth"); ok {
			body["depth"] = depth
			return ws.Message{Type: ws.QueueUpdate, Payload: body}
		}
		return ws.Message{Type: ws.LiveActivity, Payload: body}
	})
}

// handleMakeStatus accepts scenario status pings from the automation runner.
func (g *Gateway) handleMakeStatus(w http.ResponseWriter, r *http.Request) {
	g.handleSideChannel(w, r, "make-status", func(body map[string]any) ws.Message {
		if s, _ := body["status"].(string); s == "error" {
			return ws.Message{Type: ws.AutomationError, Payload: body}
		}
		return ws.Message{Type: ws.LiveActivity, Payload: body}
	})
}

func (g *Gateway) handleSideChannel(w http.ResponseWriter, r *http.Request, source string, classify func(map[string]any) ws.Message) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// "null" decodes without error but leaves the map nil.
	if body == nil {
		jsonErr(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	body["source"] = source
	g.hub.Publish(classify(body))
	jsonResp(w, http.StatusOK, map[string]any{"success": true})
}

func numberField(body map[string]any, names ...string) (float64, bool) {
	for _, name := range names {
		if v, ok := body[name].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// recovered isolates per-request failures: a panic in any pipeline stage is
// answered with 500 and the process keeps serving.
func (g *Gateway) recovered(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("gateway: panic recovered",
					"path", r.URL.Path, "panic", rec)
				jsonErr(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next(w, r)
	}
}

// --- JSON helpers ------------------------------------------------------------

func jsonResp(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, map[string]any{"success": false, "error": msg})
}
