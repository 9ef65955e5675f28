package auth

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
)

// Handlers exposes the auth HTTP endpoints.
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates auth handlers.
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterPublicRoutes registers the endpoints that work without a session.
func (h *Handlers) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
}

// RegisterRoutes registers the endpoints that require a session.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
	r.HandleFunc("/auth/pin", h.ChangePIN).Methods(http.MethodPut)
	r.HandleFunc("/auth/signature", h.SetSignature).Methods(http.MethodPost)
	r.HandleFunc("/auth/signature/verify", h.VerifySignature).Methods(http.MethodPost)
}

type loginRequest struct {
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

// Login handles POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.PIN == "" {
		httputil.WriteError(w, apperr.Validation("email and pin are required"))
		return
	}

	principal, token, err := h.service.LoginWithPIN(r.Context(), req.Email, req.PIN)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	http.SetCookie(w, h.service.SessionCookie(token))
	httputil.WriteSuccess(w, map[string]interface{}{
		"user":  principal,
		"token": token,
	})
}

// Logout handles POST /auth/logout. Always succeeds.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r, h.service.Options().CookieName)
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.WithError(err).Warn("failed to delete session on logout")
	}
	http.SetCookie(w, h.service.ExpiredCookie())
	httputil.WriteSuccessMessage(w, "logged out", nil)
}

// Me handles GET /auth/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
		return
	}
	httputil.WriteSuccess(w, principal)
}

type changePINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

// ChangePIN handles PUT /auth/pin for the logged-in user.
func (h *Handlers) ChangePIN(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
		return
	}
	var req changePINRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.service.SetPIN(r.Context(), principal.UserID, req.CurrentPIN, req.NewPIN, false); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "PIN updated", nil)
}

type setSignatureRequest struct {
	SignatureKey string `json:"signature_key"`
	PIN          string `json:"pin"`
}

// SetSignature handles POST /auth/signature. The signature image is
// uploaded separately; this call binds its storage key to a one-time PIN.
func (h *Handlers) SetSignature(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
		return
	}
	var req setSignatureRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.service.SetSignature(r.Context(), principal.UserID, req.SignatureKey, req.PIN); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "signature saved", nil)
}

type verifySignatureRequest struct {
	PIN string `json:"pin"`
}

// VerifySignature handles POST /auth/signature/verify and returns the
// signature image key on success.
func (h *Handlers) VerifySignature(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
		return
	}
	var req verifySignatureRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	key, err := h.service.VerifySignaturePIN(r.Context(), principal.UserID, req.PIN)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"signature_key": key})
}
