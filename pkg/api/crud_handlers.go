package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldsafe/fieldsafe/pkg/audit"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/rbac"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// CRUDHandlers serves the management endpoints for users, assets,
// locations, and form templates.
type CRUDHandlers struct {
	store   storage.Store
	checker *rbac.Checker
	audit   *audit.Recorder
	logger  *observability.Logger
}

// NewCRUDHandlers creates the CRUD handlers. The checker is invalidated
// on role and activation changes so a demotion takes effect on the next
// request. The audit recorder may be nil when the trail is disabled.
func NewCRUDHandlers(store storage.Store, checker *rbac.Checker, recorder *audit.Recorder, logger *observability.Logger) *CRUDHandlers {
	return &CRUDHandlers{store: store, checker: checker, audit: recorder, logger: logger}
}

// RegisterReadRoutes mounts the read endpoints every authenticated user
// can reach.
func (h *CRUDHandlers) RegisterReadRoutes(r *mux.Router) {
	r.HandleFunc("/assets", h.ListAssets).Methods(http.MethodGet)
	r.HandleFunc("/assets/{id:[0-9]+}", h.GetAsset).Methods(http.MethodGet)
	r.HandleFunc("/locations", h.ListLocations).Methods(http.MethodGet)
	r.HandleFunc("/locations/{id:[0-9]+}", h.GetLocation).Methods(http.MethodGet)
	r.HandleFunc("/templates", h.ListTemplates).Methods(http.MethodGet)
	r.HandleFunc("/templates/active", h.GetActiveTemplate).Methods(http.MethodGet)
	r.HandleFunc("/templates/{id:[0-9]+}", h.GetTemplate).Methods(http.MethodGet)
}

// RegisterFormRoutes mounts the template mutations, gated on the
// manage_forms capability.
func (h *CRUDHandlers) RegisterFormRoutes(r *mux.Router) {
	r.HandleFunc("/templates", h.CreateTemplate).Methods(http.MethodPost)
	r.HandleFunc("/templates/{id:[0-9]+}", h.UpdateTemplate).Methods(http.MethodPut)
	r.HandleFunc("/templates/{id:[0-9]+}/active", h.SetTemplateActive).Methods(http.MethodPut)
}

// RegisterAdminRoutes mounts the admin-only mutations.
func (h *CRUDHandlers) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/admin/users", h.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/admin/users", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("/admin/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
	r.HandleFunc("/admin/users/{id:[0-9]+}", h.UpdateUser).Methods(http.MethodPut)
	r.HandleFunc("/admin/users/{id:[0-9]+}/active", h.SetUserActive).Methods(http.MethodPut)

	r.HandleFunc("/admin/assets", h.CreateAsset).Methods(http.MethodPost)
	r.HandleFunc("/admin/assets/{id:[0-9]+}", h.UpdateAsset).Methods(http.MethodPut)
	r.HandleFunc("/admin/assets/{id:[0-9]+}/active", h.SetAssetActive).Methods(http.MethodPut)

	r.HandleFunc("/admin/locations", h.CreateLocation).Methods(http.MethodPost)
	r.HandleFunc("/admin/locations/{id:[0-9]+}", h.UpdateLocation).Methods(http.MethodPut)
	r.HandleFunc("/admin/locations/{id:[0-9]+}", h.DeleteLocation).Methods(http.MethodDelete)
}

func (h *CRUDHandlers) record(r *http.Request, event *audit.Event) {
	if h.audit != nil {
		h.audit.Record(r.Context(), event)
	}
}
