package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulseboard/pulseboard/internal/event"
)

var processingBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// collectors mirrors applied deltas into a Prometheus registry.
type collectors struct {
	registry *prometheus.Registry

	eventsTotal      *prometheus.CounterVec
	escalationsTotal prometheus.Counter
	queueDepth       *prometheus.GaugeVec
	processingMs     prometheus.Histogram
	observersDropped prometheus.Counter
}

// EnablePrometheus attaches a fresh registry to the aggregator and returns
// the aggregator for chaining. Must be called before the first Apply.
func (a *Aggregator) EnablePrometheus() *Aggregator {
	c := &collectors{registry: prometheus.NewRegistry()}

	c.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Name:      "events_total",
		Help:      "Accepted webhook events by action and status",
	}, []string{"action", "status"})

	c.escalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Name:      "escalations_total",
		Help:      "Call escalation events received",
	})

	c.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pulseboard",
		Name:      "queue_depth",
		Help:      "Last reported queue depth per action",
	}, []string{"action"})

	c.processingMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulseboard",
		Name:      "processing_ms",
		Help:      "Sender-reported processing time in milliseconds",
		Buckets:   processingBuckets,
	})

	c.observersDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Name:      "observers_dropped_total",
		Help:      "Broadcast messages dropped due to full observer buffers",
	})

	c.registry.MustRegister(
		c.eventsTotal, c.escalationsTotal, c.queueDepth, c.processingMs, c.observersDropped,
	)

	a.mu.Lock()
	a.prom = c
	a.mu.Unlock()
	return a
}

// Handler serves the Prometheus exposition endpoint. Returns a 404 handler
// when Prometheus mirroring is disabled.
func (a *Aggregator) Handler() http.Handler {
	a.mu.Lock()
	c := a.prom
	a.mu.Unlock()
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserverDropped counts one broadcast message lost to a full observer
// buffer. No-op when Prometheus mirroring is disabled.
func (a *Aggregator) ObserverDropped() {
	a.mu.Lock()
	c := a.prom
	a.mu.Unlock()
	if c != nil {
		c.observersDropped.Inc()
	}
}

// observe is called with the aggregator mutex held.
func (c *collectors) observe(ev event.Event, d Delta) {
	c.eventsTotal.WithLabelValues(string(ev.Action), string(ev.Status)).Inc()
	if d.Escalations > 0 {
		c.escalationsTotal.Add(float64(d.Escalations))
	}
	if ev.QueueDepth != nil {
		c.queueDepth.WithLabelValues(string(ev.Action)).Set(float64(*ev.QueueDepth))
	}
	if d.ProcessingMs != nil {
		c.processingMs.Observe(*d.ProcessingMs)
	}
}
