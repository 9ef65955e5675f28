package auth

import (
	"context"

	"github.com/fieldsafe/fieldsafe/pkg/contextkeys"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
