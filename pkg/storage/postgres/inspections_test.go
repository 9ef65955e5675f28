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

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db), mock
}

func inspectionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "inspection_type", "status", "inspector_id", "reviewer_id",
		"asset_id", "location_id", "form_data", "signature_key", "image_keys", "detections",
		"review_comment", "sync_status", "sync_attempts", "last_sync_error",
		"submitted_at", "reviewed_at", "completed_at", "created_at", "updated_at",
	})
}

func TestCreateInspection(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO inspections").
		WithArgs("fire_extinguisher", "draft", int64(7), nil, nil,
			[]byte(`{"pressure":"ok"}`), "", []byte("[]"), "pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(42), now, now))

	inspection := &storage.Inspection{
		InspectionType: "fire_extinguisher",
		Status:         "draft",
		InspectorID:    7,
		FormData:       []byte(`{"pressure":"ok"}`),
	}
	err := store.CreateInspection(context.Background(), inspection)
	require.NoError(t, err)
	assert.Equal(t, int64(42), inspection.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitInspection(t *testing.T) {
	t.Run("moves draft to pending_review", func(t *testing.T) {
		store, mock := newMockStore(t)
		reviewerID := int64(3)

		mock.ExpectExec("UPDATE inspections").
			WithArgs(int64(42), reviewerID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.SubmitInspection(context.Background(), 42, &reviewerID, time.Now().UTC())
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("without reviewer", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE inspections").
			WithArgs(int64(42), nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.SubmitInspection(context.Background(), 42, nil, time.Now().UTC())
		assert.NoError(t, err)
	})

	t.Run("lost race returns invalid state", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now().UTC()

		mock.ExpectExec("UPDATE inspections").
			WithArgs(int64(42), nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		// The follow-up read distinguishes "missing" from "wrong status".
		mock.ExpectQuery("SELECT (.+) FROM inspections WHERE id").
			WithArgs(int64(42)).
			WillReturnRows(inspectionRows().AddRow(
				int64(42), "fire_extinguisher", "pending_review", int64(7), int64(3),
				nil, nil, []byte("{}"), "", []byte("[]"), nil,
				"", "pending", 0, "",
				now, nil, nil, now, now))

		err := store.SubmitInspection(context.Background(), 42, nil, now)
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	})

	t.Run("missing inspection returns not found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE inspections").
			WithArgs(int64(99), nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM inspections WHERE id").
			WithArgs(int64(99)).
			WillReturnRows(inspectionRows())

		err := store.SubmitInspection(context.Background(), 99, nil, time.Now().UTC())
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestReviewInspection(t *testing.T) {
	t.Run("records decision", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE inspections").
			WithArgs(int64(42), "approved", int64(3), "looks good", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.ReviewInspection(context.Background(), 42, 3, "approved", "looks good", time.Now().UTC())
		assert.NoError(t, err)
	})

	t.Run("second concurrent reviewer gets conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now().UTC()

		mock.ExpectExec("UPDATE inspections").
			WithArgs(int64(42), "rejected", int64(4), "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM inspections WHERE id").
			WithArgs(int64(42)).
			WillReturnRows(inspectionRows().AddRow(
				int64(42), "fire_extinguisher", "approved", int64(7), int64(3),
				nil, nil, []byte("{}"), "", []byte("[]"), nil,
				"looks good", "pending", 0, "",
				now, now, nil, now, now))

		err := store.ReviewInspection(context.Background(), 42, 4, "rejected", "", now)
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	})
}

func TestCountPendingForReviewer(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM inspections").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := store.CountPendingForReviewer(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestUpdateSyncStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE inspections").
		WithArgs(int64(42), "failed", "graph api returned 503", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateSyncStatus(context.Background(), 42, "failed", "graph api returned 503")
	assert.NoError(t, err)
}

func TestDeleteInspection(t *testing.T) {
	t.Run("detaches notifications before deleting", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM inspection_sync_log").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec("UPDATE notifications SET inspection_id = NULL").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM inspections").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.DeleteInspection(context.Background(), 42)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing inspection returns not found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM inspection_sync_log").
			WithArgs(int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE notifications SET inspection_id = NULL").
			WithArgs(int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM inspections").
			WithArgs(int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.DeleteInspection(context.Background(), 99)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("remaining reference maps to conflict", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM inspection_sync_log").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE notifications SET inspection_id = NULL").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM inspections").
			WithArgs(int64(42)).
			WillReturnError(&pq.Error{Code: "23503"})
		mock.ExpectRollback()

		err := store.DeleteInspection(context.Background(), 42)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})
}

func TestGetInspectionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM inspections WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(inspectionRows())

	_, err := store.GetInspection(context.Background(), 404)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListSyncBacklog(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	// The sweep query must also pick up stale pending rows, where the
	// export died before it could record an outcome.
	mock.ExpectQuery("SELECT (.+) FROM inspections WHERE \\(sync_status IN \\('failed', 'retrying'\\)(.+)sync_status = 'pending'").
		WithArgs(5, 20).
		WillReturnRows(inspectionRows().
			AddRow(
				int64(42), "fire_extinguisher", "pending_review", int64(7), int64(3),
				nil, nil, []byte("{}"), "", []byte(`["inspections/a"]`), nil,
				"", "failed", 2, "timeout",
				now, nil, nil, now, now).
			AddRow(
				int64(43), "hse", "pending_review", int64(7), int64(3),
				nil, nil, []byte("{}"), "", []byte("[]"), nil,
				"", "pending", 0, "",
				now, nil, nil, now, now.Add(-30*time.Minute)))

	backlog, err := store.ListSyncBacklog(context.Background(), 5, 20)
	require.NoError(t, err)
	require.Len(t, backlog, 2)
	assert.Equal(t, "failed", backlog[0].SyncStatus)
	assert.Equal(t, []string{"inspections/a"}, backlog[0].ImageKeys)
	assert.Equal(t, "pending", backlog[1].SyncStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
