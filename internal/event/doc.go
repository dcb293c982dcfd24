// Package event defines the inbound webhook event model and its validator.
//
// Parse converts a raw JSON body into a typed Event or fails with an error
// wrapping ErrInvalidPayload. The enumerations for event type, status, and
// action are closed: unknown values are rejected at the boundary so the rest
// of the pipeline can switch over them exhaustively.
//
// Parse has no side effects and never blocks.
package event
