package rbac

import (
	"net/http"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
)

// Middleware enforces role and capability requirements on routes. It
// assumes auth.Middleware already ran and placed the principal in the
// request context; a missing principal is a 401, a failed requirement a
// 403.
type Middleware struct {
	checker *Checker
}

// NewMiddleware creates the RBAC middleware.
func NewMiddleware(checker *Checker) *Middleware {
	return &Middleware{checker: checker}
}

// RequireRole passes when the caller's role is one of the listed roles.
func (m *Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
				return
			}
			for _, role := range roles {
				if Role(principal.Role) == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteError(w, apperr.Forbidden("role %q is not permitted here", principal.Role))
		})
	}
}

// RequirePermission passes when the caller's effective permission set
// grants the listed capabilities. With requireAll=false any one granted
// capability suffices; with requireAll=true every capability must be
// granted. The 403 names the capability that was missing.
func (m *Middleware) RequirePermission(caps []Capability, requireAll bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
				return
			}
			set, err := m.checker.PermissionsFor(r.Context(), principal.UserID, Role(principal.Role))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			if requireAll {
				for _, cap := range caps {
					if !set.Has(cap) {
						httputil.WriteError(w, apperr.Forbidden("missing capability %q", cap))
						return
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			for _, cap := range caps {
				if set.Has(cap) {
					next.ServeHTTP(w, r)
					return
				}
			}
			missing := ""
			if len(caps) > 0 {
				missing = string(caps[0])
			}
			httputil.WriteError(w, apperr.Forbidden("missing capability %q", missing))
		})
	}
}
