package ws

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/metrics"
)

// Buffer policy tests work against the hub internals directly: an observer
// with a full buffer loses its oldest message, never the newest, and never
// blocks Publish.

func TestEnqueue_DropsOldestWhenFull(t *testing.T) {
	h := New(metrics.New(), 0, 2)
	c := &client{send: make(chan []byte, 2)}
	h.clients[c] = struct{}{}

	h.Publish(Message{Type: LiveActivity, Payload: map[string]any{"seq": 1}})
	h.Publish(Message{Type: LiveActivity, Payload: map[string]any{"seq": 2}})
	h.Publish(Message{Type: LiveActivity, Payload: map[string]any{"seq": 3}})

	if got := h.Dropped(); got != 1 {
		t.Errorf("Dropped: got %d, want 1", got)
	}
	if got := c.dropped.Load(); got != 1 {
		t.Errorf("client dropped: got %d, want 1", got)
	}

	// Oldest (seq 1) was evicted; seq 2 and 3 remain in order.
	for _, want := range []float64{2, 3} {
		var m Message
		raw := <-c.send
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		seq := m.Payload.(map[string]any)["seq"].(float64)
		if seq != want {
			t.Errorf("seq: got %v, want %v", seq, want)
		}
	}
}

func TestEnqueue_NeverBlocks(t *testing.T) {
	h := New(nil, 0, 1)
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	// No reader on the other end. Publish must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Message{Type: Heartbeat})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow observer")
	}

	if got := h.Dropped(); got != 99 {
		t.Errorf("Dropped: got %d, want 99", got)
	}
	if len(c.send) != 1 {
		t.Errorf("buffered: got %d, want 1", len(c.send))
	}
}

func TestEnqueue_MirrorsDropsToPrometheus(t *testing.T) {
	agg := metrics.New().EnablePrometheus()
	h := New(agg, 0, 1)
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	h.Publish(Message{Type: Heartbeat})
	h.Publish(Message{Type: Heartbeat})

	rec := httptest.NewRecorder()
	agg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "pulseboard_observers_dropped_total 1") {
		t.Errorf("exposition missing dropped counter:\n%s", body)
	}
}
