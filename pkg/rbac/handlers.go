package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Handlers exposes the admin permission-override endpoints.
type Handlers struct {
	store   storage.UserStore
	checker *Checker
	logger  *observability.Logger
}

// NewHandlers creates the RBAC admin handlers.
func NewHandlers(store storage.UserStore, checker *Checker, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, checker: checker, logger: logger}
}

// RegisterRoutes registers the override endpoints. Mount behind
// RequirePermission(manage_users).
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/admin/users/{id}/permissions", h.GetPermissions).Methods(http.MethodGet)
	r.HandleFunc("/admin/users/{id}/permissions/{capability}", h.SetOverride).Methods(http.MethodPut)
	r.HandleFunc("/admin/users/{id}/permissions/{capability}", h.DeleteOverride).Methods(http.MethodDelete)
}

type permissionsResponse struct {
	Role      string                        `json:"role"`
	RoleSet   PermissionSet                 `json:"role_permissions"`
	Overrides []*storage.PermissionOverride `json:"overrides"`
	Effective PermissionSet                 `json:"effective_permissions"`
}

// GetPermissions handles GET /admin/users/{id}/permissions.
func (h *Handlers) GetPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	overrides, err := h.store.ListPermissionOverrides(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	effective, err := h.checker.PermissionsFor(r.Context(), userID, Role(user.Role))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if overrides == nil {
		overrides = []*storage.PermissionOverride{}
	}
	httputil.WriteSuccess(w, permissionsResponse{
		Role:      user.Role,
		RoleSet:   RolePermissions(Role(user.Role)),
		Overrides: overrides,
		Effective: effective,
	})
}

type setOverrideRequest struct {
	Allowed bool `json:"allowed"`
}

// SetOverride handles PUT /admin/users/{id}/permissions/{capability}.
func (h *Handlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	capName, ok := httputil.ParsePathStringOrError(w, r, "capability")
	if !ok {
		return
	}
	cap, err := ParseCapability(capName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.store.GetUser(r.Context(), userID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req setOverrideRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	override := &storage.PermissionOverride{
		UserID:     userID,
		Capability: string(cap),
		Allowed:    req.Allowed,
	}
	if err := h.store.SetPermissionOverride(r.Context(), override); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.checker.Invalidate(userID)
	h.logger.WithField("user_id", userID).
		WithField("capability", string(cap)).
		WithField("allowed", req.Allowed).
		Info("permission override set")
	httputil.WriteSuccess(w, override)
}

// DeleteOverride handles DELETE /admin/users/{id}/permissions/{capability}.
func (h *Handlers) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	capName, ok := httputil.ParsePathStringOrError(w, r, "capability")
	if !ok {
		return
	}
	cap, err := ParseCapability(capName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.store.DeletePermissionOverride(r.Context(), userID, string(cap)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.checker.Invalidate(userID)
	httputil.WriteNoContent(w)
}
