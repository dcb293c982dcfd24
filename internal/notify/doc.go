// Package notify delivers escalation notifications to humans.
//
// The primary channel is a CRITICAL_NOTIFICATION broadcast to the hub's
// observer set — best-effort, fire-and-forget, and non-blocking. For direct
// call escalations a secondary SMS-equivalent channel is attempted as a
// durability backstop, because the primary channel only reaches observers
// with the dashboard open. The secondary call is bounded by a timeout and
// retried at most once with backoff; a final failure is surfaced to
// operators as an AUTOMATION_ERROR broadcast, never as a blocked pipeline.
//
// The same notification ID is reused on the retry, so a retried delivery is
// idempotent on the receiving side.
package notify
