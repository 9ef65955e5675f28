package rbac

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

func newHandlersFixture(t *testing.T) (*fakeUserStore, *Checker, *mux.Router) {
	t.Helper()
	store := newFakeUserStore()
	checker := newTestChecker(t, store)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	router := mux.NewRouter()
	NewHandlers(store, checker, logger).RegisterRoutes(router)
	return store, checker, router
}

func TestGetPermissionsHandler(t *testing.T) {
	store, _, router := newHandlersFixture(t)
	store.users[7] = &storage.User{ID: 7, Role: "inspector", Active: true}
	store.overrides[7] = []*storage.PermissionOverride{
		{UserID: 7, Capability: "view_analytics", Allowed: true},
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/7/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool                `json:"success"`
		Data    permissionsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "inspector", body.Data.Role)
	assert.False(t, body.Data.RoleSet.ViewAnalytics)
	assert.True(t, body.Data.Effective.ViewAnalytics)
	require.Len(t, body.Data.Overrides, 1)
}

func TestGetPermissionsHandlerUnknownUser(t *testing.T) {
	_, _, router := newHandlersFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/99/permissions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetOverrideHandler(t *testing.T) {
	store, checker, router := newHandlersFixture(t)
	store.users[7] = &storage.User{ID: 7, Role: "employee", Active: true}

	// Prime the cache so the handler has something to invalidate.
	_, err := checker.PermissionsFor(httptest.NewRequest(http.MethodGet, "/", nil).Context(), 7, RoleEmployee)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/admin/users/7/permissions/view_analytics",
		strings.NewReader(`{"allowed": true}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.overrides[7], 1)

	set, err := checker.PermissionsFor(req.Context(), 7, RoleEmployee)
	require.NoError(t, err)
	assert.True(t, set.Has(CapViewAnalytics))
}

func TestSetOverrideHandlerUnknownCapability(t *testing.T) {
	store, _, router := newHandlersFixture(t)
	store.users[7] = &storage.User{ID: 7, Role: "employee", Active: true}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/admin/users/7/permissions/time_travel",
		strings.NewReader(`{"allowed": true}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOverrideHandler(t *testing.T) {
	store, _, router := newHandlersFixture(t)
	store.users[7] = &storage.User{ID: 7, Role: "employee", Active: true}
	store.overrides[7] = []*storage.PermissionOverride{
		{UserID: 7, Capability: "view_analytics", Allowed: true},
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/users/7/permissions/view_analytics", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.overrides[7])
}
