package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulseboard/pulseboard/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MessageType tags a broadcast message for client-side dispatch.
type MessageType string

const (
	MetricsUpdate        MessageType = "METRICS_UPDATE"
	LiveActivity         MessageType = "LIVE_ACTIVITY"
	CriticalNotification MessageType = "CRITICAL_NOTIFICATION"
	QueueUpdate          MessageType = "QUEUE_UPDATE"
	AutomationError      MessageType = "AUTOMATION_ERROR"
	Heartbeat            MessageType = "HEARTBEAT"
)

// Message is the JSON envelope sent to observers.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// Hub manages observer connections and fans out broadcast messages.
type Hub struct {
	metrics   *metrics.Aggregator
	heartbeat time.Duration
	bufSize   int

	mu      sync.RWMutex
	clients map[*client]struct{}

	dropped atomic.Int64 // messages dropped hub-wide due to full buffers
}

// client represents one connected observer.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Int64
}

// New creates a Hub reading snapshots from agg, sending heartbeats every
// heartbeat interval, with a per-observer buffer of bufSize messages.
func New(agg *metrics.Aggregator, heartbeat time.Duration, bufSize int) *Hub {
	return &Hub{
		metrics:   agg,
		heartbeat: heartbeat,
		bufSize:   bufSize,
		clients:   make(map[*client]struct{}),
	}
}

// Run starts the heartbeat ticker. Heartbeats are sent on a fixed interval
// per observer, independent of event arrival, so clients can detect
// staleness. Run blocks until ctx is cancelled, then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.heartbeat)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.Publish(Message{Type: Heartbeat})
		}
	}
}

// Publish fans msg out to every connected observer. It never blocks: an
// observer whose buffer is full loses its oldest buffered message, not the
// new one, and its degraded counter is incremented. A zero msg.Timestamp is
// stamped with the current time.
func (h *Hub) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws: marshal broadcast message", "type", msg.Type, "err", err)
		return
	}

	// Hold the read lock across the whole iteration so unregister (which
	// closes send channels) cannot interleave with enqueue.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.enqueue(c, data)
	}
}

// enqueue places data on c's buffer, evicting the oldest entry when full.
// Lossy-but-fresh: the observer always ends up with the newest message.
func (h *Hub) enqueue(c *client, data []byte) {
	for {
		select {
		case c.send <- data:
			return
		default:
		}
		select {
		case <-c.send:
			c.dropped.Add(1)
			h.dropped.Add(1)
			if h.metrics != nil {
				h.metrics.ObserverDropped()
			}
		default:
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the
// observer. The current metrics snapshot is sent immediately on connect so
// the dashboard has data right away. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.bufSize),
	}
	h.register(c)
	defer h.unregister(c)

	if h.metrics != nil {
		snap := Message{
			Type:      MetricsUpdate,
			Timestamp: time.Now().UTC(),
			Payload:   h.metrics.Snapshot(),
		}
		if data, err := json.Marshal(snap); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the total number of messages dropped hub-wide because an
// observer's buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages
// (pong, close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
