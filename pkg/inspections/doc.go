// Package inspections implements the inspection lifecycle.
//
// An inspection moves through a fixed set of statuses:
//
//	draft -> pending_review -> approved | rejected
//	any   -> completed (administrative finalization)
//
// Status strings from clients are parsed strictly; unrecognized values
// are validation errors, never silently coerced. The submit endpoint
// additionally accepts "submitted" as an alias of pending_review because
// older mobile clients send it.
//
// Submitting a draft runs ordered side effects: a reviewer is chosen by
// the least-loaded balancer, the transition is persisted with
// submitted_at set, then export, notification, and AI detection run in
// the background. Background effects are best-effort: their failures are
// recorded (sync status, logs) but never fail or roll back the submit.
package inspections
