package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
)

// TokenFromRequest extracts the session token from the session cookie or,
// failing that, from a Bearer Authorization header.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Middleware authenticates every request and stores the principal in the
// request context. Requests without a valid session get a 401.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, svc.Options().CookieName)
			if token == "" {
				httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
				return
			}
			principal, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			ctx := WithPrincipal(r.Context(), principal)
			ctx = observability.WithUserID(ctx, strconv.FormatInt(principal.UserID, 10))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
