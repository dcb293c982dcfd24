package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/escalation"
	"github.com/pulseboard/pulseboard/internal/ws"
)

// secondaryAttempts is the total number of delivery attempts on the
// secondary channel: the initial call plus one retry.
const secondaryAttempts = 2

// Publisher is the subset of the broadcast hub the dispatcher uses.
type Publisher interface {
	Publish(ws.Message)
}

// SecondaryStatus reports what happened (or will happen) on the secondary
// channel for one notification.
type SecondaryStatus string

const (
	// SecondarySkipped — the notification did not request the secondary
	// channel, or no gateway URL is configured.
	SecondarySkipped SecondaryStatus = "skipped"

	// SecondaryQueued — delivery is running asynchronously; the outcome is
	// logged and, on failure, broadcast as AUTOMATION_ERROR.
	SecondaryQueued SecondaryStatus = "queued"

	// SecondaryDelivered — the gateway accepted the message.
	SecondaryDelivered SecondaryStatus = "delivered"

	// SecondaryDegraded — all attempts failed; the alert reached connected
	// observers only.
	SecondaryDegraded SecondaryStatus = "degraded"
)

// DeliveryResult is the outcome of one Deliver call.
type DeliveryResult struct {
	Primary   bool
	Secondary SecondaryStatus
}

// Dispatcher routes notifications to the broadcast hub and, when requested,
// to the secondary SMS-equivalent channel. Safe for concurrent use.
type Dispatcher struct {
	hub    Publisher
	client *http.Client

	mu  sync.Mutex
	cfg config.NotificationsConfig

	wg       sync.WaitGroup
	degraded atomic.Int64
}

// New creates a Dispatcher publishing to hub with the given channel config.
func New(hub Publisher, cfg config.NotificationsConfig) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Deliver pushes n to all connected observers and, for notifications that
// request it, starts the asynchronous secondary delivery. Deliver never
// blocks on the secondary channel.
func (d *Dispatcher) Deliver(ctx context.Context, n escalation.Notification) DeliveryResult {
	d.hub.Publish(ws.Message{
		Type:      ws.CriticalNotification,
		Timestamp: n.CreatedAt,
		Payload:   n,
	})

	res := DeliveryResult{Primary: true, Secondary: SecondarySkipped}
	if !n.Secondary {
		return res
	}

	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	url := cfg.SMSURL()
	if url == "" {
		slog.Warn("notify: secondary channel requested but no gateway URL configured",
			"notification_id", n.ID)
		return res
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Detached from the request context: the webhook response must not
		// wait for the secondary channel.
		d.sendSecondary(context.Background(), url, n)
	}()
	res.Secondary = SecondaryQueued
	return res
}

// Degraded returns how many notifications ended in SecondaryDegraded.
func (d *Dispatcher) Degraded() int64 {
	return d.degraded.Load()
}

// Close waits for in-flight secondary deliveries to finish.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

// sendSecondary posts n to the gateway URL with at most one retry. The
// notification ID is identical across attempts so the receiving side can
// deduplicate. Returns the final status.
func (d *Dispatcher) sendSecondary(ctx context.Context, url string, n escalation.Notification) SecondaryStatus {
	d.mu.Lock()
	backoff := d.cfg.RetryBackoff
	timeout := d.cfg.Timeout
	d.mu.Unlock()

	var err error
	for attempt := 1; attempt <= secondaryAttempts; attempt++ {
		if err = d.post(ctx, url, timeout, n); err == nil {
			slog.Debug("notify: secondary delivered",
				"notification_id", n.ID, "attempt", attempt)
			return SecondaryDelivered
		}
		slog.Warn("notify: secondary delivery attempt failed",
			"notification_id", n.ID, "attempt", attempt, "err", err)

		if attempt < secondaryAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				err = ctx.Err()
				attempt = secondaryAttempts
			}
		}
	}

	d.degraded.Add(1)
	slog.Error("notify: secondary channel degraded, alert reached connected observers only",
		"notification_id", n.ID, "err", err)
	d.hub.Publish(ws.Message{
		Type: ws.AutomationError,
		Payload: map[string]any{
			"source":          "notification_dispatcher",
			"notification_id": n.ID,
			"error":           fmt.Sprintf("secondary delivery failed: %v", err),
		},
	})
	return SecondaryDegraded
}

func (d *Dispatcher) post(ctx context.Context, url string, timeout time.Duration, n escalation.Notification) error {
	body, _ := json.Marshal(map[string]any{
		"id":       n.ID,
		"title":    n.Title,
		"body":     n.Body,
		"severity": n.Severity,
	})

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// UpdateConfig swaps the channel configuration, applied from the next
// delivery.
func (d *Dispatcher) UpdateConfig(cfg config.NotificationsConfig) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}
