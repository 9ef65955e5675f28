// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys shared across packages must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: auth.Middleware (pkg/auth/middleware.go)
	// Required by: All protected API endpoints, RBAC middleware
	// Type: *auth.Principal
	PrincipalKey Key = "principal"
)
