package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

func TestGetPreference(t *testing.T) {
	t.Run("missing record means fail-open", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT (.+) FROM notification_preferences").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{
				"user_id", "notify_on_assignment", "notify_on_approval", "notify_on_rejection",
				"notify_on_comment", "quiet_hours_start", "quiet_hours_end", "updated_at",
			}))

		pref, err := store.GetPreference(context.Background(), 7)
		require.NoError(t, err)
		assert.Nil(t, pref)
	})

	t.Run("existing record", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT (.+) FROM notification_preferences").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{
				"user_id", "notify_on_assignment", "notify_on_approval", "notify_on_rejection",
				"notify_on_comment", "quiet_hours_start", "quiet_hours_end", "updated_at",
			}).AddRow(int64(7), true, false, true, true, "22:00", "06:00", now))

		pref, err := store.GetPreference(context.Background(), 7)
		require.NoError(t, err)
		assert.False(t, pref.NotifyOnApproval)
		assert.Equal(t, "22:00", pref.QuietHoursStart)
	})
}

func TestMarkAllNotificationsRead(t *testing.T) {
	t.Run("flags unread rows", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE notifications").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := store.MarkAllNotificationsRead(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("second call is a no-op, not an error", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE notifications").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		n, err := store.MarkAllNotificationsRead(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestCreateSubscriptionReactivates(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO push_subscriptions").
		WithArgs(int64(7), "https://push.example.com/ep1", "authkey", "p256key", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	sub := &storage.PushSubscription{
		UserID:   7,
		Endpoint: "https://push.example.com/ep1",
		Auth:     "authkey",
		P256DH:   "p256key",
	}
	err := store.CreateSubscription(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, int64(11), sub.ID)
}

func TestDeactivateSubscription(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE push_subscriptions").
		WithArgs(int64(11), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.DeactivateSubscription(context.Background(), 11)
	assert.NoError(t, err)
}

func TestAppendDispatchLog(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO notification_dispatch_log").
		WithArgs("d-1", nil, int64(11), int64(7), "inspection_assigned", "sent", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	err := store.AppendDispatchLog(context.Background(), &storage.DispatchLogEntry{
		DispatchID:     "d-1",
		SubscriptionID: 11,
		UserID:         7,
		EventType:      "inspection_assigned",
		Status:         "sent",
	})
	assert.NoError(t, err)
}
