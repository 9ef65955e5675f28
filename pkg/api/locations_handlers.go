package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/audit"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

type locationRequest struct {
	Name string `json:"name"`
	Site string `json:"site"`
}

// CreateLocation adds a site or building.
func (h *CRUDHandlers) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteError(w, apperr.Validation("name is required"))
		return
	}

	location := &storage.Location{
		Name: strings.TrimSpace(req.Name),
		Site: strings.TrimSpace(req.Site),
	}
	if err := h.store.CreateLocation(r.Context(), location); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionLocationCreate,
		EntityType: "locations",
		EntityID:   strconv.FormatInt(location.ID, 10),
	})
	httputil.WriteCreated(w, location)
}

// ListLocations returns every location.
func (h *CRUDHandlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.store.ListLocations(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if locations == nil {
		locations = []*storage.Location{}
	}
	httputil.WriteSuccess(w, locations)
}

// GetLocation returns one location.
func (h *CRUDHandlers) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	location, err := h.store.GetLocation(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, location)
}

// UpdateLocation renames a location.
func (h *CRUDHandlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req locationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteError(w, apperr.Validation("name is required"))
		return
	}

	location, err := h.store.GetLocation(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	location.Name = strings.TrimSpace(req.Name)
	location.Site = strings.TrimSpace(req.Site)
	if err := h.store.UpdateLocation(r.Context(), location); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionLocationUpdate,
		EntityType: "locations",
		EntityID:   strconv.FormatInt(id, 10),
	})
	httputil.WriteSuccess(w, location)
}

// DeleteLocation removes a location. Locations with assets still
// attached are refused by the store's foreign key.
func (h *CRUDHandlers) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteLocation(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionLocationUpdate,
		EntityType: "locations",
		EntityID:   strconv.FormatInt(id, 10),
	})
	httputil.WriteNoContent(w)
}
