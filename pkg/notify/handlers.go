package notify

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Handlers exposes the notification HTTP endpoints. Every endpoint
// operates on the logged-in user's own notifications.
type Handlers struct {
	store  storage.Store
	logger *observability.Logger
}

// NewHandlers creates notification handlers.
func NewHandlers(store storage.Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes registers the notification endpoints.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.MarkAllRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/read", h.MarkRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/preferences", h.GetPreferences).Methods(http.MethodGet)
	r.HandleFunc("/notifications/preferences", h.UpdatePreferences).Methods(http.MethodPut)
	r.HandleFunc("/notifications/subscribe", h.Subscribe).Methods(http.MethodPost)
	r.HandleFunc("/notifications/unsubscribe", h.Unsubscribe).Methods(http.MethodPost)
}

func principalOrError(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.Unauthenticated("authentication required"))
		return nil, false
	}
	return principal, true
}

// List handles GET /notifications.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	unreadOnly, err := httputil.ParseQueryBool(r, "unread", false)
	if err != nil {
		httputil.WriteError(w, err)
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
	items, err := h.store.ListNotifications(r.Context(), principal.UserID, unreadOnly, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if items == nil {
		items = []*storage.Notification{}
	}
	httputil.WriteSuccess(w, items)
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	count, err := h.store.CountUnreadNotifications(r.Context(), principal.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int{"unread": count})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.MarkNotificationRead(r.Context(), id, principal.UserID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "notification marked read", nil)
}

// MarkAllRead handles POST /notifications/read-all. Idempotent: a second
// call marks zero rows and still succeeds.
func (h *Handlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	marked, err := h.store.MarkAllNotificationsRead(r.Context(), principal.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"marked": marked})
}

// GetPreferences handles GET /notifications/preferences. A user with no
// stored record gets the fail-open defaults.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	pref, err := h.store.GetPreference(r.Context(), principal.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if pref == nil {
		pref = &storage.NotificationPreference{
			UserID:             principal.UserID,
			NotifyOnAssignment: true,
			NotifyOnApproval:   true,
			NotifyOnRejection:  true,
			NotifyOnComment:    true,
		}
	}
	httputil.WriteSuccess(w, pref)
}

type preferencesRequest struct {
	NotifyOnAssignment bool   `json:"notify_on_assignment"`
	NotifyOnApproval   bool   `json:"notify_on_approval"`
	NotifyOnRejection  bool   `json:"notify_on_rejection"`
	NotifyOnComment    bool   `json:"notify_on_comment"`
	QuietHoursStart    string `json:"quiet_hours_start"`
	QuietHoursEnd      string `json:"quiet_hours_end"`
}

// UpdatePreferences handles PUT /notifications/preferences.
func (h *Handlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req preferencesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if (req.QuietHoursStart == "") != (req.QuietHoursEnd == "") {
		httputil.WriteError(w, apperr.Validation("quiet hours require both start and end"))
		return
	}
	if req.QuietHoursStart != "" {
		if _, ok := parseClock(req.QuietHoursStart); !ok {
			httputil.WriteError(w, apperr.Validation("quiet_hours_start must be HH:MM"))
			return
		}
		if _, ok := parseClock(req.QuietHoursEnd); !ok {
			httputil.WriteError(w, apperr.Validation("quiet_hours_end must be HH:MM"))
			return
		}
	}

	pref := &storage.NotificationPreference{
		UserID:             principal.UserID,
		NotifyOnAssignment: req.NotifyOnAssignment,
		NotifyOnApproval:   req.NotifyOnApproval,
		NotifyOnRejection:  req.NotifyOnRejection,
		NotifyOnComment:    req.NotifyOnComment,
		QuietHoursStart:    req.QuietHoursStart,
		QuietHoursEnd:      req.QuietHoursEnd,
	}
	if err := h.store.UpsertPreference(r.Context(), pref); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, pref)
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Auth     string `json:"auth"`
	P256DH   string `json:"p256dh"`
}

// Subscribe handles POST /notifications/subscribe. Re-subscribing an
// existing endpoint reactivates it with fresh keys.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req subscribeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.Auth == "" || req.P256DH == "" {
		httputil.WriteError(w, apperr.Validation("endpoint, auth, and p256dh are required"))
		return
	}
	sub := &storage.PushSubscription{
		UserID:   principal.UserID,
		Endpoint: req.Endpoint,
		Auth:     req.Auth,
		P256DH:   req.P256DH,
		Active:   true,
	}
	if err := h.store.CreateSubscription(r.Context(), sub); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles POST /notifications/unsubscribe.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req unsubscribeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		httputil.WriteError(w, apperr.Validation("endpoint is required"))
		return
	}
	if err := h.store.DeactivateSubscriptionByEndpoint(r.Context(), principal.UserID, req.Endpoint); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "unsubscribed", nil)
}
