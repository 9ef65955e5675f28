package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the full persistence surface of the application.
type Store interface {
	UserStore
	SessionStore
	InspectionStore
	NotificationStore
	AssetStore
	LocationStore
	TemplateStore

	HealthCheck(ctx context.Context) error
	Close() error
}

// UserStore manages users, their credentials, and permission overrides.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserBySSOSubject(ctx context.Context, subject string) (*User, error)
	ListUsers(ctx context.Context, role string, activeOnly bool) ([]*User, error)
	UpdateUser(ctx context.Context, user *User) error
	SetUserActive(ctx context.Context, id int64, active bool) error
	SetPINHash(ctx context.Context, id int64, pinHash string) error

	// SetSignature stores the signature image key and its PIN lock. The PIN
	// is one-time-set; a second call returns a conflict.
	SetSignature(ctx context.Context, id int64, signatureKey, pinHash string) error

	ListPermissionOverrides(ctx context.Context, userID int64) ([]*PermissionOverride, error)
	SetPermissionOverride(ctx context.Context, override *PermissionOverride) error
	DeletePermissionOverride(ctx context.Context, userID int64, capability string) error
}

// SessionStore manages login sessions keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, tokenHash string) (*Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// InspectionStore manages inspection records and their status transitions.
// The transition methods carry the expected current status in the UPDATE's
// WHERE clause; zero rows affected means another writer got there first and
// the call returns an invalid-state error.
type InspectionStore interface {
	CreateInspection(ctx context.Context, inspection *Inspection) error
	GetInspection(ctx context.Context, id int64) (*Inspection, error)
	ListInspections(ctx context.Context, filter InspectionFilter) ([]*Inspection, int64, error)

	// UpdateInspectionDraft replaces the mutable form fields. Only rows
	// still in draft are touched.
	UpdateInspectionDraft(ctx context.Context, inspection *Inspection) error

	SubmitInspection(ctx context.Context, id int64, reviewerID *int64, at time.Time) error
	ReviewInspection(ctx context.Context, id, reviewerID int64, status, comment string, at time.Time) error
	CompleteInspection(ctx context.Context, id int64, at time.Time) error
	DeleteInspection(ctx context.Context, id int64) error

	CountPendingForReviewer(ctx context.Context, reviewerID int64) (int, error)

	SetDetections(ctx context.Context, id int64, detections json.RawMessage) error

	// Export bookkeeping. UpdateSyncStatus bumps the attempt counter;
	// AppendSyncLog records the attempt durably.
	UpdateSyncStatus(ctx context.Context, id int64, status, syncError string) error
	AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error
	ListSyncLog(ctx context.Context, inspectionID int64) ([]*SyncLogEntry, error)
	ListSyncBacklog(ctx context.Context, maxAttempts, limit int) ([]*Inspection, error)
}

// NotificationStore manages notifications, preferences, subscriptions,
// and the dispatch log.
type NotificationStore interface {
	CreateNotification(ctx context.Context, notification *Notification) error
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)

	// GetPreference returns (nil, nil) when the user has no record; callers
	// treat that as "send everything".
	GetPreference(ctx context.Context, userID int64) (*NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *NotificationPreference) error

	CreateSubscription(ctx context.Context, sub *PushSubscription) error
	ListActiveSubscriptions(ctx context.Context, userID int64) ([]*PushSubscription, error)
	DeactivateSubscription(ctx context.Context, id int64) error
	DeactivateSubscriptionByEndpoint(ctx context.Context, userID int64, endpoint string) error
	CountActiveSubscriptions(ctx context.Context) (int, error)

	AppendDispatchLog(ctx context.Context, entry *DispatchLogEntry) error
}

// AssetStore manages inspectable equipment.
type AssetStore interface {
	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, id int64) (*Asset, error)
	ListAssets(ctx context.Context, locationID int64, activeOnly bool) ([]*Asset, error)
	UpdateAsset(ctx context.Context, asset *Asset) error
	SetAssetActive(ctx context.Context, id int64, active bool) error
}

// LocationStore manages sites and buildings.
type LocationStore interface {
	CreateLocation(ctx context.Context, location *Location) error
	GetLocation(ctx context.Context, id int64) (*Location, error)
	ListLocations(ctx context.Context) ([]*Location, error)
	UpdateLocation(ctx context.Context, location *Location) error
	DeleteLocation(ctx context.Context, id int64) error
}

// TemplateStore manages form templates per inspection type.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, template *FormTemplate) error
	GetTemplate(ctx context.Context, id int64) (*FormTemplate, error)
	GetActiveTemplate(ctx context.Context, inspectionType string) (*FormTemplate, error)
	ListTemplates(ctx context.Context, inspectionType string) ([]*FormTemplate, error)
	UpdateTemplate(ctx context.Context, template *FormTemplate) error
	SetTemplateActive(ctx context.Context, id int64, active bool) error
}

// Config for the storage backend
type Config struct {
	// PostgreSQL config
	PostgresURL       string
	PostgresMaxConns  int
	PostgresIdleConns int
	PostgresTimeout   time.Duration

	// S3 config (inspection photos and signature images)
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config (session cache)
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Cache config
	CacheEnabled        bool
	SessionCacheTTL     time.Duration
	PermissionCacheSize int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:    20,
		PostgresIdleConns:   2,
		PostgresTimeout:     10 * time.Second,
		RedisDB:             0,
		RedisPoolSize:       10,
		CacheEnabled:        true,
		SessionCacheTTL:     5 * time.Minute,
		PermissionCacheSize: 1024,
	}
}
