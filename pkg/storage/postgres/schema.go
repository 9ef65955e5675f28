package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements holds the DDL applied at startup. Statements are
// idempotent so restarting against an existing database is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		full_name VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL,
		pin_hash VARCHAR(100) NOT NULL DEFAULT '',
		sso_subject VARCHAR(255) NOT NULL DEFAULT '',
		signature_key VARCHAR(255) NOT NULL DEFAULT '',
		signature_pin_hash VARCHAR(100) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		deactivated_at TIMESTAMP WITH TIME ZONE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_sso_subject
		ON users (sso_subject) WHERE sso_subject <> ''`,

	`CREATE TABLE IF NOT EXISTS permission_overrides (
		user_id BIGINT NOT NULL REFERENCES users(id),
		capability VARCHAR(50) NOT NULL,
		allowed BOOLEAN NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (user_id, capability)
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		token_hash VARCHAR(64) PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at)`,

	`CREATE TABLE IF NOT EXISTS locations (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		site VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (name, site)
	)`,

	`CREATE TABLE IF NOT EXISTS assets (
		id BIGSERIAL PRIMARY KEY,
		tag VARCHAR(100) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		asset_type VARCHAR(50) NOT NULL,
		location_id BIGINT REFERENCES locations(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS form_templates (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		inspection_type VARCHAR(50) NOT NULL,
		schema JSONB NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (inspection_type, version)
	)`,

	`CREATE TABLE IF NOT EXISTS inspections (
		id BIGSERIAL PRIMARY KEY,
		inspection_type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		inspector_id BIGINT NOT NULL REFERENCES users(id),
		reviewer_id BIGINT REFERENCES users(id),
		asset_id BIGINT REFERENCES assets(id),
		location_id BIGINT REFERENCES locations(id),
		form_data JSONB NOT NULL DEFAULT '{}',
		signature_key VARCHAR(255) NOT NULL DEFAULT '',
		image_keys JSONB NOT NULL DEFAULT '[]',
		detections JSONB,
		review_comment TEXT NOT NULL DEFAULT '',
		sync_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		last_sync_error TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMP WITH TIME ZONE,
		reviewed_at TIMESTAMP WITH TIME ZONE,
		completed_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_status ON inspections (status)`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_reviewer
		ON inspections (reviewer_id) WHERE status = 'pending_review'`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_inspector ON inspections (inspector_id)`,

	`CREATE TABLE IF NOT EXISTS inspection_sync_log (
		id BIGSERIAL PRIMARY KEY,
		inspection_id BIGINT NOT NULL REFERENCES inspections(id),
		attempt INTEGER NOT NULL,
		status VARCHAR(20) NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		event_type VARCHAR(50) NOT NULL,
		title VARCHAR(255) NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		inspection_id BIGINT REFERENCES inspections(id),
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_unread
		ON notifications (user_id) WHERE is_read = FALSE`,

	`CREATE TABLE IF NOT EXISTS notification_preferences (
		user_id BIGINT PRIMARY KEY REFERENCES users(id),
		notify_on_assignment BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_approval BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_rejection BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_comment BOOLEAN NOT NULL DEFAULT TRUE,
		quiet_hours_start VARCHAR(5) NOT NULL DEFAULT '',
		quiet_hours_end VARCHAR(5) NOT NULL DEFAULT '',
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS push_subscriptions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		endpoint TEXT NOT NULL,
		auth VARCHAR(255) NOT NULL DEFAULT '',
		p256dh VARCHAR(255) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		deactivated_at TIMESTAMP WITH TIME ZONE,
		UNIQUE (user_id, endpoint)
	)`,

	`CREATE TABLE IF NOT EXISTS notification_dispatch_log (
		id BIGSERIAL PRIMARY KEY,
		dispatch_id VARCHAR(36) NOT NULL,
		notification_id BIGINT,
		subscription_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
}

// ensureSchema applies the DDL. Safe to run on every startup.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
