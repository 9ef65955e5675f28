package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists audit events in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle and creates the trail table when it
// does not exist yet.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			action VARCHAR(60) NOT NULL,
			status VARCHAR(20) NOT NULL,
			actor_id BIGINT,
			actor_email VARCHAR(255) NOT NULL DEFAULT '',
			actor_role VARCHAR(20) NOT NULL DEFAULT '',
			entity_type VARCHAR(40) NOT NULL DEFAULT '',
			entity_id VARCHAR(60) NOT NULL DEFAULT '',
			method VARCHAR(10) NOT NULL DEFAULT '',
			path VARCHAR(500) NOT NULL DEFAULT '',
			status_code INT NOT NULL DEFAULT 0,
			request_id VARCHAR(60) NOT NULL DEFAULT '',
			before_state JSONB,
			after_state JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_actor
			ON audit_events (actor_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_entity
			ON audit_events (entity_type, entity_id, created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing handle without touching the schema.
// Used by tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert appends one event to the trail.
func (s *Store) Insert(ctx context.Context, event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			action, status, actor_id, actor_email, actor_role,
			entity_type, entity_id, method, path, status_code,
			request_id, before_state, after_state, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		event.Action, event.Status, event.ActorID, event.ActorEmail, event.ActorRole,
		event.EntityType, event.EntityID, event.Method, event.Path, event.StatusCode,
		event.RequestID, nullableJSON(event.Before), nullableJSON(event.After), event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// List returns trail entries matching the filter, newest first, with
// the total match count for paging.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Event, int64, error) {
	where := `
		WHERE ($1 = 0 OR actor_id = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR entity_type = $3)
		  AND ($4 = '' OR entity_id = $4)
		  AND ($5 = TIMESTAMP 'epoch' OR created_at >= $5)
	`
	since := filter.Since
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}
	args := []interface{}{filter.ActorID, string(filter.Action), filter.EntityType, filter.EntityID, since}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, status, actor_id, actor_email, actor_role,
		       entity_type, entity_id, method, path, status_code,
		       request_id, before_state, after_state, created_at
		FROM audit_events`+where+`
		ORDER BY created_at DESC, id DESC LIMIT $6 OFFSET $7`,
		append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var actorID sql.NullInt64
		var before, after []byte
		if err := rows.Scan(
			&event.ID, &event.Action, &event.Status, &actorID, &event.ActorEmail, &event.ActorRole,
			&event.EntityType, &event.EntityID, &event.Method, &event.Path, &event.StatusCode,
			&event.RequestID, &before, &after, &event.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if actorID.Valid {
			event.ActorID = &actorID.Int64
		}
		event.Before = before
		event.After = after
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, total, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
