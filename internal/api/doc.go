// Package api serves the read-only REST endpoints for the dashboard.
//
// Routes:
//
//	GET /api/v1/health      — rolling system health plus observer counts
//	GET /api/v1/metrics     — full live metrics snapshot
//	GET /api/v1/escalations — active escalation session summaries
//
// All responses are JSON. The endpoints read through the component contracts
// (aggregator snapshot, detector session summaries, hub counters) and never
// touch shared state directly.
package api
