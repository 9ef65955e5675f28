package audit

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
)

// Handlers serves the admin view of the audit trail.
type Handlers struct {
	store *Store
}

// NewHandlers creates the audit handlers.
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes mounts the trail listing on an admin-gated router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/admin/audit", h.List).Methods(http.MethodGet)
}

type listResponse struct {
	Items []*Event `json:"items"`
	Total int64    `json:"total"`
}

// List returns trail entries, newest first.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	actorID, err := httputil.ParseQueryInt64(r, "actor_id", 0)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid actor_id"))
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid limit"))
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid offset"))
		return
	}

	filter := Filter{
		ActorID:    actorID,
		Action:     Action(httputil.ParseQueryString(r, "action", "")),
		EntityType: httputil.ParseQueryString(r, "entity_type", ""),
		EntityID:   httputil.ParseQueryString(r, "entity_id", ""),
		Limit:      limit,
		Offset:     offset,
	}
	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteError(w, apperr.Validation("since must be RFC 3339"))
			return
		}
		filter.Since = parsed
	}

	events, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []*Event{}
	}
	httputil.WriteSuccess(w, listResponse{Items: events, Total: total})
}
