// Package metrics maintains the process-wide live metrics aggregate.
//
// Aggregator is the single owner of the shared LiveMetrics state: every
// accepted event is applied through Apply under one mutex, so concurrent
// deltas never interleave mid-update. Apply returns the post-update snapshot
// for broadcast. Counters are at-least-once: a retried webhook is counted
// again — these are dashboard counters, not a ledger.
//
// The same deltas are mirrored to a Prometheus registry for scraping via
// Handler.
package metrics
