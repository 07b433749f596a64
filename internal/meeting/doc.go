// Package meeting defines the canonical meeting record and the pure functions
// that turn provider-shaped calendar events into it.
//
// The flow is always the same regardless of where the events came from:
//
//	raw events -> Normalize -> Bucket -> Payload
//
// Normalization is evaluated against a caller-supplied "now" so that results are
// deterministic and easy to test. Events that lack a usable start or end are
// dropped, never defaulted.
//
// All-day events are coerced to midnight UTC of their date. No timezone or
// recurrence handling is attempted.
package meeting
