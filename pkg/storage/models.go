package storage

import (
	"encoding/json"
	"time"
)

// User is an account that can log in and act on inspections.
// Role is stored as a plain string; pkg/rbac owns the valid values.
type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	FullName         string     `json:"full_name"`
	Role             string     `json:"role"`
	PINHash          string     `json:"-"`
	SSOSubject       string     `json:"-"`
	SignatureKey     string     `json:"signature_key,omitempty"`
	SignaturePINHash string     `json:"-"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeactivatedAt    *time.Time `json:"deactivated_at,omitempty"`
}

// PermissionOverride grants or revokes a single capability for one user,
// on top of their role's fixed set.
type PermissionOverride struct {
	UserID     int64     `json:"user_id"`
	Capability string    `json:"capability"`
	Allowed    bool      `json:"allowed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is a server-side login session. Only the SHA-256 hash of the
// opaque token is stored; the raw token lives in the client cookie.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Inspection is a single safety-inspection record.
// Status and SyncStatus are stored as strings at the database edge;
// pkg/inspections owns the enums and their transitions.
type Inspection struct {
	ID             int64           `json:"id"`
	InspectionType string          `json:"inspection_type"`
	Status         string          `json:"status"`
	InspectorID    int64           `json:"inspector_id"`
	ReviewerID     *int64          `json:"reviewer_id,omitempty"`
	AssetID        *int64          `json:"asset_id,omitempty"`
	LocationID     *int64          `json:"location_id,omitempty"`
	FormData       json.RawMessage `json:"form_data"`
	SignatureKey   string          `json:"signature_key,omitempty"`
	ImageKeys      []string        `json:"image_keys,omitempty"`
	Detections     json.RawMessage `json:"detections,omitempty"`
	ReviewComment  string          `json:"review_comment,omitempty"`
	SyncStatus     string          `json:"sharepoint_sync_status"`
	SyncAttempts   int             `json:"sync_attempts"`
	LastSyncError  string          `json:"last_sync_error,omitempty"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// InspectionFilter narrows ListInspections. Zero values mean "no filter".
type InspectionFilter struct {
	Status         string
	InspectionType string
	InspectorID    int64
	ReviewerID     int64
	AssetID        int64
	Limit          int
	Offset         int
}

// SyncLogEntry records one export attempt for an inspection. Append-only.
type SyncLogEntry struct {
	ID           int64     `json:"id"`
	InspectionID int64     `json:"inspection_id"`
	Attempt      int       `json:"attempt"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Notification is an in-app notification row for one user.
type Notification struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	EventType    string     `json:"event_type"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	InspectionID *int64     `json:"inspection_id,omitempty"`
	Read         bool       `json:"read"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NotificationPreference holds per-category flags and an optional
// quiet-hours window. A missing row means "send everything" (fail-open);
// stores return nil rather than an error for that case.
type NotificationPreference struct {
	UserID             int64     `json:"user_id"`
	NotifyOnAssignment bool      `json:"notify_on_assignment"`
	NotifyOnApproval   bool      `json:"notify_on_approval"`
	NotifyOnRejection  bool      `json:"notify_on_rejection"`
	NotifyOnComment    bool      `json:"notify_on_comment"`
	QuietHoursStart    string    `json:"quiet_hours_start,omitempty"` // "HH:MM" UTC
	QuietHoursEnd      string    `json:"quiet_hours_end,omitempty"`   // "HH:MM" UTC
	UpdatedAt          time.Time `json:"updated_at"`
}

// PushSubscription is one device endpoint for a user. Soft-deactivated on
// unsubscribe or permanent delivery failure, never deleted.
type PushSubscription struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Endpoint      string     `json:"endpoint"`
	Auth          string     `json:"-"`
	P256DH        string     `json:"-"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// DispatchLogEntry records one delivery attempt to one subscription.
// Append-only; rows are never updated.
type DispatchLogEntry struct {
	ID             int64     `json:"id"`
	DispatchID     string    `json:"dispatch_id"`
	NotificationID *int64    `json:"notification_id,omitempty"`
	SubscriptionID int64     `json:"subscription_id"`
	UserID         int64     `json:"user_id"`
	EventType      string    `json:"event_type"`
	Status         string    `json:"status"` // sent, failed, filtered
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Asset is a piece of inspectable equipment (extinguisher, first-aid kit).
type Asset struct {
	ID         int64     `json:"id"`
	Tag        string    `json:"tag"`
	Name       string    `json:"name"`
	AssetType  string    `json:"asset_type"`
	LocationID *int64    `json:"location_id,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Location is a site or building where assets live.
type Location struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Site      string    `json:"site"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FormTemplate defines the fields of one inspection type. Schema is an
// opaque JSON document consumed by clients; the server does not interpret it.
type FormTemplate struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	InspectionType string          `json:"inspection_type"`
	Schema         json.RawMessage `json:"schema"`
	Version        int             `json:"version"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
