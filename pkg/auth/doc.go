// Package auth implements session-based authentication.
//
// Users log in with their email and a numeric PIN. PINs are stored as
// bcrypt hashes; successful login mints an opaque random token whose
// SHA-256 hash is persisted as the session key, so a database leak never
// exposes usable tokens. The token travels in an HTTP-only cookie (with a
// Bearer-header fallback for non-browser clients).
//
// The package also owns the signature PIN: a secondary PIN that unlocks a
// user's stored signature image when countersigning an inspection. The
// signature PIN is one-time-set and failed attempts trip a temporary
// lockout.
//
// Typical wiring:
//
//	svc := auth.NewService(store, auth.Options{SessionTTL: 12 * time.Hour}, logger)
//	router.Use(auth.Middleware(svc))
package auth
