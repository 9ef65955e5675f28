package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/audit"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/inspections"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

type templateRequest struct {
	Name           string          `json:"name"`
	InspectionType string          `json:"inspection_type"`
	Schema         json.RawMessage `json:"schema"`
}

func (req *templateRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("name is required")
	}
	if _, err := inspections.ParseType(req.InspectionType); err != nil {
		return err
	}
	if len(req.Schema) == 0 || !json.Valid(req.Schema) {
		return apperr.Validation("schema must be a JSON document")
	}
	return nil
}

// CreateTemplate adds a new form template version.
func (h *CRUDHandlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	template := &storage.FormTemplate{
		Name:           strings.TrimSpace(req.Name),
		InspectionType: req.InspectionType,
		Schema:         req.Schema,
		Active:         true,
	}
	if err := h.store.CreateTemplate(r.Context(), template); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionTemplateCreate,
		EntityType: "templates",
		EntityID:   strconv.FormatInt(template.ID, 10),
	})
	httputil.WriteCreated(w, template)
}

// ListTemplates returns templates, optionally for one inspection type.
func (h *CRUDHandlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	inspectionType := httputil.ParseQueryString(r, "type", "")
	if inspectionType != "" {
		if _, err := inspections.ParseType(inspectionType); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	templates, err := h.store.ListTemplates(r.Context(), inspectionType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if templates == nil {
		templates = []*storage.FormTemplate{}
	}
	httputil.WriteSuccess(w, templates)
}

// GetTemplate returns one template.
func (h *CRUDHandlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	template, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, template)
}

// GetActiveTemplate returns the current form for an inspection type.
func (h *CRUDHandlers) GetActiveTemplate(w http.ResponseWriter, r *http.Request) {
	inspectionType := httputil.ParseQueryString(r, "type", "")
	if _, err := inspections.ParseType(inspectionType); err != nil {
		httputil.WriteError(w, err)
		return
	}
	template, err := h.store.GetActiveTemplate(r.Context(), inspectionType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, template)
}

// UpdateTemplate replaces the name and schema of a template.
func (h *CRUDHandlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req templateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	template, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	template.Name = strings.TrimSpace(req.Name)
	template.InspectionType = req.InspectionType
	template.Schema = req.Schema
	if err := h.store.UpdateTemplate(r.Context(), template); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionTemplateUpdate,
		EntityType: "templates",
		EntityID:   strconv.FormatInt(id, 10),
	})
	httputil.WriteSuccess(w, template)
}

// SetTemplateActive toggles whether a template is offered for new
// inspections.
func (h *CRUDHandlers) SetTemplateActive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.store.SetTemplateActive(r.Context(), id, req.Active); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(r, &audit.Event{
		Action:     audit.ActionTemplateUpdate,
		EntityType: "templates",
		EntityID:   strconv.FormatInt(id, 10),
	})
	httputil.WriteSuccessMessage(w, "template updated", nil)
}
