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

type assetRequest struct {
	Tag        string `json:"tag"`
	Name       string `json:"name"`
	AssetType  string `json:"asset_type"`
	LocationID *int64 `json:"location_id,omitempty"`
}

func (req *assetRequest) validate() error {
	if strings.TrimSpace(req.Tag) == "" || strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("tag and name are required")
	}
	return nil
}

// CreateAsset registers a piece of equipment.
func (h *CRUDHandlers) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	asset := &storage.Asset{
		Tag:        strings.TrimSpace(req.Tag),
		Name:       strings.TrimSpace(req.Name),
		AssetType:  req.AssetType,
		LocationID: req.LocationID,
		Active:     true,
	}
	if err := h.store.CreateAsset(r.Context(), asset); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionAssetCreate,
		EntityType: "assets",
		EntityID:   strconv.FormatInt(asset.ID, 10),
	})
	httputil.WriteCreated(w, asset)
}

// ListAssets returns equipment, optionally scoped to a location.
func (h *CRUDHandlers) ListAssets(w http.ResponseWriter, r *http.Request) {
	locationID, err := httputil.ParseQueryInt64(r, "location_id", 0)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid location_id"))
		return
	}
	activeOnly, err := httputil.ParseQueryBool(r, "active", false)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("active must be a boolean"))
		return
	}

	assets, err := h.store.ListAssets(r.Context(), locationID, activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if assets == nil {
		assets = []*storage.Asset{}
	}
	httputil.WriteSuccess(w, assets)
}

// GetAsset returns one piece of equipment.
func (h *CRUDHandlers) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	asset, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, asset)
}

// UpdateAsset replaces the mutable fields of an asset.
func (h *CRUDHandlers) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req assetRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	asset, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	asset.Tag = strings.TrimSpace(req.Tag)
	asset.Name = strings.TrimSpace(req.Name)
	asset.AssetType = req.AssetType
	asset.LocationID = req.LocationID
	if err := h.store.UpdateAsset(r.Context(), asset); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionAssetUpdate,
		EntityType: "assets",
		EntityID:   strconv.FormatInt(id, 10),
	})
	httputil.WriteSuccess(w, asset)
}

// SetAssetActive retires or restores an asset.
func (h *CRUDHandlers) SetAssetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.store.SetAssetActive(r.Context(), id, req.Active); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionAssetUpdate,
		EntityType: "assets",
		EntityID:   strconv.FormatInt(id, 10),
	})
	httputil.WriteSuccessMessage(w, "asset updated", nil)
}
