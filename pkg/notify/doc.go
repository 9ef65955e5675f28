// Package notify implements workflow notification fan-out.
//
// A trigger names an event and a target (one user, a list of users, or a
// role). For each resolved recipient the service writes an in-app
// notification row, then fans out to the recipient's active push
// subscriptions: preference flags are consulted (a missing preference
// record means send, fail-open), quiet hours are compared as UTC "HH:MM"
// wall-clock windows that may wrap midnight, and every attempt lands in
// an append-only dispatch log as sent, failed, or filtered.
//
// Delivery is strictly best-effort. Provider errors are logged and
// recorded; a permanent endpoint failure deactivates that subscription;
// nothing propagates back to the workflow operation that triggered the
// event.
package notify
