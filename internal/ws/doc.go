// Package ws implements the WebSocket broadcast hub for pulseboard.
//
// Hub maintains the set of connected dashboard observers and fans typed
// messages out to all of them. Publish never blocks on a slow observer: each
// observer has a bounded outbound buffer and, when it is full, the oldest
// buffered message is dropped in favour of the new one (dashboards care
// about current state, not perfect history). Drops are counted per observer
// and hub-wide.
//
// Hub.Run(ctx) emits a HEARTBEAT message on a fixed interval regardless of
// event arrival, then closes all connections when ctx is cancelled.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and sends the
// current metrics snapshot immediately on connect.
//
// Message format sent to clients:
//
//	{
//	  "type": "METRICS_UPDATE",
//	  "timestamp": "2026-01-02T15:04:05Z",
//	  "payload": { /* type-specific */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The WebSocket endpoint is mounted at /ws/stream by the server.
package ws
