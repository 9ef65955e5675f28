package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

const userColumns = `id, email, full_name, role, pin_hash, sso_subject,
	signature_key, signature_pin_hash, is_active, created_at, updated_at, deactivated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*storage.User, error) {
	var u storage.User
	var deactivatedAt sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.Role,
		&u.PINHash,
		&u.SSOSubject,
		&u.SignatureKey,
		&u.SignaturePINHash,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
		&deactivatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.DeactivatedAt = timePtr(deactivatedAt)
	return &u, nil
}

// CreateUser inserts a new user. Duplicate email returns a conflict.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	query := `
		INSERT INTO users (email, full_name, role, pin_hash, sso_subject, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		user.Email,
		user.FullName,
		user.Role,
		user.PINHash,
		user.SSOSubject,
		user.Active,
		now,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if isUniqueViolation(err) {
		return apperr.Conflict("user with email %s already exists", user.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "user %d not found", id)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, notFound(err, "user with email %s not found", email)
	}
	return user, nil
}

func (s *Store) GetUserBySSOSubject(ctx context.Context, subject string) (*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE sso_subject = $1 AND sso_subject <> ''`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, subject))
	if err != nil {
		return nil, notFound(err, "user with subject %s not found", subject)
	}
	return user, nil
}

// ListUsers returns users ordered by id. Empty role means all roles.
func (s *Store) ListUsers(ctx context.Context, role string, activeOnly bool) ([]*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE ($1 = '' OR role = $1)
		  AND (NOT $2 OR is_active)
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, role, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*storage.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// UpdateUser replaces the admin-editable fields.
func (s *Store) UpdateUser(ctx context.Context, user *storage.User) error {
	query := `
		UPDATE users
		SET email = $2, full_name = $3, role = $4, sso_subject = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FullName, user.Role, user.SSOSubject, time.Now().UTC())
	if isUniqueViolation(err) {
		return apperr.Conflict("user with email %s already exists", user.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("user %d not found", user.ID)
	}
	return nil
}

// SetUserActive soft-deletes or reactivates a user.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	query := `
		UPDATE users
		SET is_active = $2,
		    deactivated_at = CASE WHEN $2 THEN NULL ELSE $3 END,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set user active: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("user %d not found", id)
	}
	return nil
}

func (s *Store) SetPINHash(ctx context.Context, id int64, pinHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET pin_hash = $2, updated_at = $3 WHERE id = $1`,
		id, pinHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set pin hash: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("user %d not found", id)
	}
	return nil
}

// SetSignature stores the signature image key and PIN lock. The WHERE clause
// enforces the one-time-set rule; a second attempt matches zero rows.
func (s *Store) SetSignature(ctx context.Context, id int64, signatureKey, pinHash string) error {
	query := `
		UPDATE users
		SET signature_key = $2, signature_pin_hash = $3, updated_at = $4
		WHERE id = $1 AND signature_pin_hash = ''
	`

	result, err := s.db.ExecContext(ctx, query, id, signatureKey, pinHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set signature: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// Either the user is missing or the signature PIN was already set.
		if _, getErr := s.GetUser(ctx, id); getErr != nil {
			return getErr
		}
		return apperr.Conflict("signature PIN is already set for user %d", id)
	}
	return nil
}

func (s *Store) ListPermissionOverrides(ctx context.Context, userID int64) ([]*storage.PermissionOverride, error) {
	query := `
		SELECT user_id, capability, allowed, created_at
		FROM permission_overrides
		WHERE user_id = $1
		ORDER BY capability
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*storage.PermissionOverride
	for rows.Next() {
		var o storage.PermissionOverride
		if err := rows.Scan(&o.UserID, &o.Capability, &o.Allowed, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission override: %w", err)
		}
		overrides = append(overrides, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission overrides: %w", err)
	}
	return overrides, nil
}

func (s *Store) SetPermissionOverride(ctx context.Context, override *storage.PermissionOverride) error {
	query := `
		INSERT INTO permission_overrides (user_id, capability, allowed, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, capability) DO UPDATE SET allowed = EXCLUDED.allowed
	`

	override.CreatedAt = time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query,
		override.UserID, override.Capability, override.Allowed, override.CreatedAt); err != nil {
		return fmt.Errorf("failed to set permission override: %w", err)
	}
	return nil
}

func (s *Store) DeletePermissionOverride(ctx context.Context, userID int64, capability string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM permission_overrides WHERE user_id = $1 AND capability = $2`,
		userID, capability)
	if err != nil {
		return fmt.Errorf("failed to delete permission override: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("no override %s for user %d", capability, userID)
	}
	return nil
}
