package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

func (s *Store) CreateNotification(ctx context.Context, notification *storage.Notification) error {
	query := `
		INSERT INTO notifications (user_id, event_type, title, body, inspection_id, is_read, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		notification.UserID,
		notification.EventType,
		notification.Title,
		notification.Body,
		nullInt64(notification.InspectionID),
		nullTime(notification.ExpiresAt),
		time.Now().UTC(),
	).Scan(&notification.ID, &notification.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications newest first. Expired
// rows are filtered out, not deleted.
func (s *Store) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*storage.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, event_type, title, body, inspection_id, is_read, expires_at, created_at
		FROM notifications
		WHERE user_id = $1
		  AND (NOT $2 OR is_read = FALSE)
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := s.db.QueryContext(ctx, query, userID, unreadOnly, time.Now().UTC(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*storage.Notification
	for rows.Next() {
		var (
			n            storage.Notification
			inspectionID sql.NullInt64
			expiresAt    sql.NullTime
		)
		err := rows.Scan(&n.ID, &n.UserID, &n.EventType, &n.Title, &n.Body,
			&inspectionID, &n.Read, &expiresAt, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.InspectionID = int64Ptr(inspectionID)
		n.ExpiresAt = timePtr(expiresAt)
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notifications, nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND is_read = FALSE
		  AND (expires_at IS NULL OR expires_at > $2)
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, time.Now().UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flags one notification. The user id guard keeps a
// user from flagging someone else's rows.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("notification %d not found", id)
	}
	return nil
}

// MarkAllNotificationsRead flags every unread row. Zero rows affected is
// not an error; the call is idempotent.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// GetPreference returns (nil, nil) when the user has no preference record.
func (s *Store) GetPreference(ctx context.Context, userID int64) (*storage.NotificationPreference, error) {
	query := `
		SELECT user_id, notify_on_assignment, notify_on_approval, notify_on_rejection,
		       notify_on_comment, quiet_hours_start, quiet_hours_end, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`

	var p storage.NotificationPreference
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.NotifyOnAssignment,
		&p.NotifyOnApproval,
		&p.NotifyOnRejection,
		&p.NotifyOnComment,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preference: %w", err)
	}
	return &p, nil
}

func (s *Store) UpsertPreference(ctx context.Context, pref *storage.NotificationPreference) error {
	query := `
		INSERT INTO notification_preferences
			(user_id, notify_on_assignment, notify_on_approval, notify_on_rejection,
			 notify_on_comment, quiet_hours_start, quiet_hours_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			notify_on_assignment = EXCLUDED.notify_on_assignment,
			notify_on_approval = EXCLUDED.notify_on_approval,
			notify_on_rejection = EXCLUDED.notify_on_rejection,
			notify_on_comment = EXCLUDED.notify_on_comment,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			updated_at = EXCLUDED.updated_at
	`

	pref.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		pref.UserID,
		pref.NotifyOnAssignment,
		pref.NotifyOnApproval,
		pref.NotifyOnRejection,
		pref.NotifyOnComment,
		pref.QuietHoursStart,
		pref.QuietHoursEnd,
		pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert notification preference: %w", err)
	}
	return nil
}

// CreateSubscription registers a device endpoint. Re-subscribing an existing
// endpoint reactivates it with fresh keys.
func (s *Store) CreateSubscription(ctx context.Context, sub *storage.PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (user_id, endpoint, auth, p256dh, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (user_id, endpoint) DO UPDATE SET
			auth = EXCLUDED.auth,
			p256dh = EXCLUDED.p256dh,
			is_active = TRUE,
			deactivated_at = NULL
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		sub.UserID, sub.Endpoint, sub.Auth, sub.P256DH, time.Now().UTC(),
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create push subscription: %w", err)
	}
	sub.Active = true
	return nil
}

func (s *Store) ListActiveSubscriptions(ctx context.Context, userID int64) ([]*storage.PushSubscription, error) {
	query := `
		SELECT id, user_id, endpoint, auth, p256dh, is_active, created_at, deactivated_at
		FROM push_subscriptions
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*storage.PushSubscription
	for rows.Next() {
		var (
			sub           storage.PushSubscription
			deactivatedAt sql.NullTime
		)
		err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.Auth, &sub.P256DH,
			&sub.Active, &sub.CreatedAt, &deactivatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		sub.DeactivatedAt = timePtr(deactivatedAt)
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) DeactivateSubscription(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET is_active = FALSE, deactivated_at = $2 WHERE id = $1 AND is_active`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate push subscription: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("active push subscription %d not found", id)
	}
	return nil
}

func (s *Store) DeactivateSubscriptionByEndpoint(ctx context.Context, userID int64, endpoint string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET is_active = FALSE, deactivated_at = $3 WHERE user_id = $1 AND endpoint = $2 AND is_active`,
		userID, endpoint, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate push subscription: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("active push subscription not found")
	}
	return nil
}

func (s *Store) CountActiveSubscriptions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM push_subscriptions WHERE is_active = TRUE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count push subscriptions: %w", err)
	}
	return count, nil
}

// AppendDispatchLog records one delivery attempt. Rows are never updated.
func (s *Store) AppendDispatchLog(ctx context.Context, entry *storage.DispatchLogEntry) error {
	query := `
		INSERT INTO notification_dispatch_log
			(dispatch_id, notification_id, subscription_id, user_id, event_type, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		entry.DispatchID,
		nullInt64(entry.NotificationID),
		entry.SubscriptionID,
		entry.UserID,
		entry.EventType,
		entry.Status,
		entry.Detail,
		time.Now().UTC(),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append dispatch log: %w", err)
	}
	return nil
}
