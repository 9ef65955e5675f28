package inspections

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
	"github.com/fieldsafe/fieldsafe/pkg/storage/postgres"
)

// maxImageBytes caps a single uploaded inspection photo.
const maxImageBytes = 10 << 20

// Handlers exposes the inspection HTTP endpoints.
type Handlers struct {
	service *Service
	images  *postgres.ImageClient
	logger  *observability.Logger
}

// NewHandlers creates inspection handlers. images may be nil when object
// storage is not configured; uploads then return an error.
func NewHandlers(service *Service, images *postgres.ImageClient, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, images: images, logger: logger}
}

// RegisterRoutes registers the inspection endpoints. Capability gates are
// applied by the caller when mounting.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/inspections", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/inspections", h.List).Methods(http.MethodGet)
	r.HandleFunc("/inspections/images", h.UploadImage).Methods(http.MethodPost)
	r.HandleFunc("/inspections/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/inspections/{id}", h.UpdateDraft).Methods(http.MethodPut)
	r.HandleFunc("/inspections/{id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/inspections/{id}/submit", h.Submit).Methods(http.MethodPost)
	r.HandleFunc("/inspections/{id}/sync-log", h.SyncLog).Methods(http.MethodGet)
}

// RegisterReviewRoutes registers the endpoints gated on review
// capabilities.
func (h *Handlers) RegisterReviewRoutes(r *mux.Router) {
	r.HandleFunc("/inspections/pending", h.ListPending).Methods(http.MethodGet)
	r.HandleFunc("/inspections/{id}/review", h.Review).Methods(http.MethodPost)
	r.HandleFunc("/inspections/{id}/complete", h.Complete).Methods(http.MethodPost)
}

func principalOrError(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
		return nil, false
	}
	return principal, true
}

// Create handles POST /inspections.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var input CreateInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	inspection, err := h.service.Create(r.Context(), principal, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, inspection)
}

type listResponse struct {
	Items []*storage.Inspection `json:"items"`
	Total int64                 `json:"total"`
}

// List handles GET /inspections with optional status, type, and paging
// query parameters.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	assetID, err := httputil.ParseQueryInt64(r, "asset_id", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := storage.InspectionFilter{
		Status:         httputil.ParseQueryString(r, "status", ""),
		InspectionType: httputil.ParseQueryString(r, "type", ""),
		AssetID:        assetID,
		Limit:          limit,
		Offset:         offset,
	}
	items, total, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if items == nil {
		items = []*storage.Inspection{}
	}
	httputil.WriteSuccess(w, listResponse{Items: items, Total: total})
}

// ListPending handles GET /inspections/pending.
func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, total, err := h.service.ListPending(r.Context(), principal, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if items == nil {
		items = []*storage.Inspection{}
	}
	httputil.WriteSuccess(w, listResponse{Items: items, Total: total})
}

// Get handles GET /inspections/{id}.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	inspection, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, inspection)
}

// UpdateDraft handles PUT /inspections/{id}.
func (h *Handlers) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var input UpdateInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	inspection, err := h.service.UpdateDraft(r.Context(), principal, id, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, inspection)
}

type submitRequest struct {
	Status string `json:"status,omitempty"`
}

// Submit handles POST /inspections/{id}/submit. The body is optional; a
// status field, when present, must be pending_review or its legacy alias
// submitted.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req submitRequest
	if r.ContentLength > 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
	}
	inspection, err := h.service.Submit(r.Context(), principal, id, req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, inspection)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

// Review handles POST /inspections/{id}/review.
func (h *Handlers) Review(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	inspection, err := h.service.Review(r.Context(), principal, id, req.Decision, req.Comment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, inspection)
}

// Complete handles POST /inspections/{id}/complete.
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	inspection, err := h.service.Complete(r.Context(), principal, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, inspection)
}

// Delete handles DELETE /inspections/{id}.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// SyncLog handles GET /inspections/{id}/sync-log.
func (h *Handlers) SyncLog(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.service.SyncLog(r.Context(), principal, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*storage.SyncLogEntry{}
	}
	httputil.WriteSuccess(w, entries)
}

// UploadImage handles POST /inspections/images. The multipart field
// "image" is stored in object storage and the returned key is attached to
// a draft by the client.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := principalOrError(w, r); !ok {
		return
	}
	if h.images == nil {
		httputil.WriteError(w, apperr.Internal("image storage is not configured", nil))
		return
	}
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		httputil.WriteError(w, apperr.Validation("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.WriteError(w, apperr.Validation("image file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key, err := h.images.PutImage(r.Context(), "inspections", file, contentType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{"key": key})
}
