package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy of a session token (256 bits).
const tokenBytes = 32

// GenerateSessionToken mints an opaque session token and its storage hash.
// The plaintext token is returned to the client exactly once; only the
// SHA-256 hash is ever persisted.
func GenerateSessionToken() (token, tokenHash string, err error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken computes the SHA-256 hex digest used as the session lookup key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
