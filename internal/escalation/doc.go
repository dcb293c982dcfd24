// Package escalation decides when an automated conversation needs a human.
//
// Detector keeps a rolling context per session key (botId, refined by
// scenarioId) and evaluates two trigger paths on every event:
//
//  1. Direct — a call_escalation action with status success always escalates.
//     Severity is critical above the configured high-value threshold,
//     high otherwise. Direct escalations request the secondary channel.
//  2. Derived — the accumulated context escalates on its own when the
//     rolling sentiment drops below the threshold, a negative keyword shows
//     up in recent messages, or a high-value deal has been in session past
//     the configured duration.
//
// Evaluation is pure in-memory logic with no I/O. Access is concurrent
// across session keys and serialized within one key, so events for a single
// bot apply to its context strictly in arrival order. Sessions idle past the
// configured timeout are dropped lazily on access and by the Run sweep, so
// context memory stays bounded.
package escalation
