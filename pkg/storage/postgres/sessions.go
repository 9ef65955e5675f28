package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

func (s *Store) CreateSession(ctx context.Context, session *storage.Session) error {
	query := `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		session.TokenHash, session.UserID, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if s.sessionCache != nil {
		s.sessionCache.Set(ctx, session)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, tokenHash string) (*storage.Session, error) {
	if s.sessionCache != nil {
		if session, err := s.sessionCache.Get(ctx, tokenHash); err == nil && session != nil {
			if s.metrics != nil {
				s.metrics.CacheHitsTotal.WithLabelValues("sessions").Inc()
			}
			return session, nil
		}
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.WithLabelValues("sessions").Inc()
		}
	}

	query := `
		SELECT token_hash, user_id, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1
	`

	var session storage.Session
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.TokenHash, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return nil, notFound(err, "session not found")
	}

	if s.sessionCache != nil {
		s.sessionCache.Set(ctx, &session)
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if s.sessionCache != nil {
		s.sessionCache.Invalidate(ctx, tokenHash)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry. Run by the
// maintenance cron job.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
