package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/rbac"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

const (
	stateCookieName = "fieldsafe_sso_state"
	stateTTL        = 10 * time.Minute
)

// Handlers serves the SSO login and callback endpoints.
type Handlers struct {
	provider    IdentityProvider
	auth        *auth.Service
	store       storage.Store
	successPath string
	secure      bool
	logger      *observability.Logger
}

// NewHandlers creates the SSO handlers. successPath is where the
// browser lands after a completed login; empty selects "/".
func NewHandlers(provider IdentityProvider, authSvc *auth.Service, store storage.Store, successPath string, secure bool, logger *observability.Logger) *Handlers {
	if successPath == "" {
		successPath = "/"
	}
	return &Handlers{
		provider:    provider,
		auth:        authSvc,
		store:       store,
		successPath: successPath,
		secure:      secure,
		logger:      logger,
	}
}

// RegisterRoutes mounts the SSO endpoints on an unauthenticated router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/sso/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/auth/sso/callback", h.Callback).Methods(http.MethodGet)
}

// Login starts the authorization-code flow.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		httputil.WriteError(w, apperr.Internal("failed to start SSO login", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/sso",
		MaxAge:   int(stateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the flow: verify state, exchange the code, resolve
// the user and mint a session.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteError(w, apperr.Unauthenticated("SSO state mismatch"))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth/sso",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteError(w, apperr.Unauthenticated("missing authorization code"))
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WithError(err).Warn("SSO code exchange failed")
		httputil.WriteError(w, apperr.Unauthenticated("SSO login failed"))
		return
	}

	user, err := h.resolveUser(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	_, token, err := h.auth.CreateSessionFor(r.Context(), user)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	http.SetCookie(w, h.auth.SessionCookie(token))
	http.Redirect(w, r, h.successPath, http.StatusFound)
}

// resolveUser maps a verified identity to a local account. Match order:
// previously linked subject, then verified email, then first-login
// provisioning as an employee.
func (h *Handlers) resolveUser(ctx context.Context, identity *Identity) (*storage.User, error) {
	user, err := h.store.GetUserBySSOSubject(ctx, identity.Subject)
	if err == nil {
		return user, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	if identity.Email == "" || !identity.Verified {
		return nil, apperr.Unauthenticated("identity provider did not return a verified email")
	}

	user, err = h.store.GetUserByEmail(ctx, identity.Email)
	if err == nil {
		user.SSOSubject = identity.Subject
		if updateErr := h.store.UpdateUser(ctx, user); updateErr != nil {
			return nil, fmt.Errorf("failed to link SSO subject: %w", updateErr)
		}
		h.logger.WithField("user_id", user.ID).Info("linked existing account to SSO subject")
		return user, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	user = &storage.User{
		Email:      identity.Email,
		FullName:   identity.Name,
		Role:       string(rbac.RoleEmployee),
		SSOSubject: identity.Subject,
		Active:     true,
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to provision SSO user: %w", err)
	}
	h.logger.WithField("user_id", user.ID).WithField("email", identity.Email).Info("provisioned employee account from SSO login")
	return user, nil
}

func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate SSO state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
