package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/audit"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/rbac"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// CreateUser provisions an account. The user sets a PIN on first login
// or signs in via SSO.
func (h *CRUDHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.FullName == "" {
		httputil.WriteError(w, apperr.Validation("email and full_name are required"))
		return
	}
	if _, err := rbac.ParseRole(req.Role); err != nil {
		httputil.WriteError(w, err)
		return
	}

	user := &storage.User{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
		Active:   true,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		httputil.WriteError(w, err)
		return
	}

	after, _ := json.Marshal(user)
	h.record(r, &audit.Event{
		Action:     audit.ActionUserCreate,
		EntityType: "users",
		EntityID:   strconv.FormatInt(user.ID, 10),
		After:      after,
	})
	httputil.WriteCreated(w, user)
}

// ListUsers returns accounts, optionally filtered by role or active state.
func (h *CRUDHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := httputil.ParseQueryString(r, "role", "")
	if role != "" {
		if _, err := rbac.ParseRole(role); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	activeOnly, err := httputil.ParseQueryBool(r, "active", false)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("active must be a boolean"))
		return
	}

	users, err := h.store.ListUsers(r.Context(), role, activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if users == nil {
		users = []*storage.User{}
	}
	httputil.WriteSuccess(w, users)
}

// GetUser returns one account.
func (h *CRUDHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

type updateUserRequest struct {
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// UpdateUser changes the name or role of an account.
func (h *CRUDHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	before, _ := json.Marshal(user)

	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Role != "" {
		if _, err := rbac.ParseRole(req.Role); err != nil {
			httputil.WriteError(w, err)
			return
		}
		user.Role = req.Role
	}
	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Role != "" && h.checker != nil {
		h.checker.Invalidate(id)
	}

	after, _ := json.Marshal(user)
	h.record(r, &audit.Event{
		Action:     audit.ActionUserUpdate,
		EntityType: "users",
		EntityID:   strconv.FormatInt(id, 10),
		Before:     before,
		After:      after,
	})
	httputil.WriteSuccess(w, user)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetUserActive deactivates or reactivates an account. Deactivation
// kills the user's ability to log in but keeps their history.
func (h *CRUDHandlers) SetUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.store.SetUserActive(r.Context(), id, req.Active); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.checker != nil {
		h.checker.Invalidate(id)
	}

	action := audit.ActionUserDeactivate
	if req.Active {
		action = audit.ActionUserUpdate
	}
	h.record(r, &audit.Event{
		Action:     action,
		EntityType: "users",
		EntityID:   strconv.FormatInt(id, 10),
	})
	httputil.WriteSuccessMessage(w, "user updated", nil)
}
