package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "full_name", "role", "pin_hash", "sso_subject",
		"signature_key", "signature_pin_hash", "is_active", "created_at", "updated_at", "deactivated_at",
	})
}

func TestCreateUser(t *testing.T) {
	t.Run("inserts and returns id", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now().UTC()

		mock.ExpectQuery("INSERT INTO users").
			WithArgs("ines@example.com", "Ines Vidal", "inspector", "", "", true, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(7), now, now))

		user := &storage.User{
			Email:    "ines@example.com",
			FullName: "Ines Vidal",
			Role:     "inspector",
			Active:   true,
		}
		err := store.CreateUser(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505"})

		err := store.CreateUser(context.Background(), &storage.User{Email: "dup@example.com"})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})
}

func TestUpdateUser(t *testing.T) {
	t.Run("persists sso subject", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(7), "ines@example.com", "Ines Vidal", "inspector",
				"okta|00u1abcd", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.UpdateUser(context.Background(), &storage.User{
			ID:         7,
			Email:      "ines@example.com",
			FullName:   "Ines Vidal",
			Role:       "inspector",
			SSOSubject: "okta|00u1abcd",
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user returns not found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE users").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateUser(context.Background(), &storage.User{ID: 99})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestGetUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
			WithArgs(int64(7)).
			WillReturnRows(userRows().AddRow(
				int64(7), "ines@example.com", "Ines Vidal", "inspector",
				"$2a$10$hash", "", "", "", true, now, now, nil))

		user, err := store.GetUser(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "inspector", user.Role)
		assert.Nil(t, user.DeactivatedAt)
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
			WithArgs(int64(99)).
			WillReturnRows(userRows())

		_, err := store.GetUser(context.Background(), 99)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestListUsers(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("supervisor", true).
		WillReturnRows(userRows().
			AddRow(int64(3), "sam@example.com", "Sam Ortiz", "supervisor", "", "", "", "", true, now, now, nil).
			AddRow(int64(4), "lee@example.com", "Lee Chen", "supervisor", "", "", "", "", true, now, now, nil))

	users, err := store.ListUsers(context.Background(), "supervisor", true)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(3), users[0].ID)
}

func TestSetSignature(t *testing.T) {
	t.Run("first set succeeds", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(7), "signatures/abc", "$2a$10$pinhash", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.SetSignature(context.Background(), 7, "signatures/abc", "$2a$10$pinhash")
		assert.NoError(t, err)
	})

	t.Run("second set is a conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now().UTC()

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(7), "signatures/def", "$2a$10$other", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
			WithArgs(int64(7)).
			WillReturnRows(userRows().AddRow(
				int64(7), "ines@example.com", "Ines Vidal", "inspector",
				"", "", "signatures/abc", "$2a$10$pinhash", true, now, now, nil))

		err := store.SetSignature(context.Background(), 7, "signatures/def", "$2a$10$other")
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})
}

func TestSetUserActive(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE users").
		WithArgs(int64(7), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SetUserActive(context.Background(), 7, false)
	assert.NoError(t, err)
}

func TestPermissionOverrides(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT (.+) FROM permission_overrides").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "capability", "allowed", "created_at"}).
				AddRow(int64(7), "view_analytics", true, now))

		overrides, err := store.ListPermissionOverrides(context.Background(), 7)
		require.NoError(t, err)
		require.Len(t, overrides, 1)
		assert.Equal(t, "view_analytics", overrides[0].Capability)
		assert.True(t, overrides[0].Allowed)
	})

	t.Run("upsert", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("INSERT INTO permission_overrides").
			WithArgs(int64(7), "view_analytics", true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.SetPermissionOverride(context.Background(), &storage.PermissionOverride{
			UserID:     7,
			Capability: "view_analytics",
			Allowed:    true,
		})
		assert.NoError(t, err)
	})
}
