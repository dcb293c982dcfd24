// Package gateway is the HTTP entry point for inbound webhook events.
//
// POST /webhook/intake runs the full pipeline synchronously on the request
// goroutine: validate → apply metrics → evaluate escalation → dispatch
// notification → broadcast. The 200 acknowledgment is written only after
// metrics and broadcast completed; only the secondary notification channel
// runs detached from the response. Validation failures return 400 with no
// state mutated. Panics are caught at the request boundary and answered with
// 500 — one poisoned request never takes down the process or other in-flight
// requests.
//
// POST /webhook/performance and POST /webhook/make-status are a lower
// guarantee side channel: any JSON object is accepted and broadcast, without
// touching metrics or escalation state.
//
// All webhook endpoints sit behind a fixed-window per-IP rate limiter,
// in-process by default or Redis-backed when configured.
package gateway
