package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/pulseboard/pulseboard/internal/escalation"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/ws"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	agg *metrics.Aggregator
	det *escalation.Detector
	hub *ws.Hub
	mux *http.ServeMux
}

// New creates a Handler wired to the live components and registers all routes.
func New(agg *metrics.Aggregator, det *escalation.Detector, hub *ws.Hub) http.Handler {
	h := &Handler{agg: agg, det: det, hub: hub, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/metrics", h.metrics)
	h.mux.HandleFunc("/api/v1/escalations", h.escalations)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /api/v1/health — rolling health and connection counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.agg.Snapshot()
	jsonResp(w, http.StatusOK, HealthResponse{
		State:           snap.SystemHealth,
		UrgentAttention: snap.UrgentAttention,
		EventsTotal:     snap.EventsTotal,
		ErrorsTotal:     snap.ErrorsTotal,
		Observers:       h.hub.Count(),
		DroppedMessages: h.hub.Dropped(),
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// metrics returns GET /api/v1/metrics — the full live aggregate.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.agg.Snapshot())
}

// escalations returns GET /api/v1/escalations — active session summaries,
// most recently active first.
func (h *Handler) escalations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessions := h.det.Sessions()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastSeen.After(sessions[j].LastSeen)
	})
	jsonResp(w, http.StatusOK, EscalationsResponse{
		Sessions:    sessions,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// --- JSON helpers ------------------------------------------------------------

func jsonResp(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, errorResponse{Error: msg})
}
