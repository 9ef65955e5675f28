package audit

import (
	"encoding/json"
	"time"
)

// Action identifies what happened.
type Action string

const (
	ActionLogin            Action = "auth.login"
	ActionLogout           Action = "auth.logout"
	ActionPINChange        Action = "auth.pin_change"
	ActionSignatureSet     Action = "auth.signature_set"
	ActionPermissionGrant  Action = "authz.permission_grant"
	ActionPermissionRevoke Action = "authz.permission_revoke"

	ActionInspectionCreate   Action = "inspection.create"
	ActionInspectionUpdate   Action = "inspection.update"
	ActionInspectionSubmit   Action = "inspection.submit"
	ActionInspectionReview   Action = "inspection.review"
	ActionInspectionComplete Action = "inspection.complete"
	ActionInspectionDelete   Action = "inspection.delete"

	ActionUserCreate     Action = "admin.user_create"
	ActionUserUpdate     Action = "admin.user_update"
	ActionUserDeactivate Action = "admin.user_deactivate"

	ActionAssetCreate    Action = "admin.asset_create"
	ActionAssetUpdate    Action = "admin.asset_update"
	ActionLocationCreate Action = "admin.location_create"
	ActionLocationUpdate Action = "admin.location_update"
	ActionTemplateCreate Action = "admin.template_create"
	ActionTemplateUpdate Action = "admin.template_update"

	// ActionHTTPRequest is the generic action recorded by the
	// middleware for mutating requests with no dedicated event.
	ActionHTTPRequest Action = "http.request"
)

// Outcome of an audited action.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// Event is one audit trail entry.
type Event struct {
	ID         int64           `json:"id"`
	Action     Action          `json:"action"`
	Status     string          `json:"status"`
	ActorID    *int64          `json:"actor_id,omitempty"`
	ActorEmail string          `json:"actor_email,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Method     string          `json:"method,omitempty"`
	Path       string          `json:"path,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter narrows a trail listing. Zero fields are ignored.
type Filter struct {
	ActorID    int64
	Action     Action
	EntityType string
	EntityID   string
	Since      time.Time
	Limit      int
	Offset     int
}
