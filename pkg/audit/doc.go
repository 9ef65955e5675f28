// Package audit keeps an append-only trail of who changed what.
//
// Mutating HTTP requests are captured by middleware and written to the
// audit_events table together with the acting principal, the entity
// touched, and the response status. Services can also record richer
// events directly, with before/after snapshots of the entity. The
// trail is written best effort so a failed insert never fails the
// request that caused it, and there is no update or delete path.
package audit
