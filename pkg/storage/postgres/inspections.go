package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

const inspectionColumns = `id, inspection_type, status, inspector_id, reviewer_id,
	asset_id, location_id, form_data, signature_key, image_keys, detections,
	review_comment, sync_status, sync_attempts, last_sync_error,
	submitted_at, reviewed_at, completed_at, created_at, updated_at`

func scanInspection(row interface{ Scan(...interface{}) error }) (*storage.Inspection, error) {
	var (
		in          storage.Inspection
		reviewerID  sql.NullInt64
		assetID     sql.NullInt64
		locationID  sql.NullInt64
		imageKeys   []byte
		detections  []byte
		submittedAt sql.NullTime
		reviewedAt  sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&in.ID,
		&in.InspectionType,
		&in.Status,
		&in.InspectorID,
		&reviewerID,
		&assetID,
		&locationID,
		&in.FormData,
		&in.SignatureKey,
		&imageKeys,
		&detections,
		&in.ReviewComment,
		&in.SyncStatus,
		&in.SyncAttempts,
		&in.LastSyncError,
		&submittedAt,
		&reviewedAt,
		&completedAt,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	in.ReviewerID = int64Ptr(reviewerID)
	in.AssetID = int64Ptr(assetID)
	in.LocationID = int64Ptr(locationID)
	in.SubmittedAt = timePtr(submittedAt)
	in.ReviewedAt = timePtr(reviewedAt)
	in.CompletedAt = timePtr(completedAt)
	if len(imageKeys) > 0 {
		if err := json.Unmarshal(imageKeys, &in.ImageKeys); err != nil {
			return nil, fmt.Errorf("failed to decode image keys: %w", err)
		}
	}
	if len(detections) > 0 {
		in.Detections = json.RawMessage(detections)
	}
	return &in, nil
}

func marshalImageKeys(keys []string) ([]byte, error) {
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(keys)
}

func (s *Store) CreateInspection(ctx context.Context, inspection *storage.Inspection) error {
	query := `
		INSERT INTO inspections (inspection_type, status, inspector_id, asset_id, location_id,
			form_data, signature_key, image_keys, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id, created_at, updated_at
	`

	imageKeys, err := marshalImageKeys(inspection.ImageKeys)
	if err != nil {
		return fmt.Errorf("failed to encode image keys: %w", err)
	}
	if len(inspection.FormData) == 0 {
		inspection.FormData = json.RawMessage("{}")
	}
	if inspection.SyncStatus == "" {
		inspection.SyncStatus = "pending"
	}

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		inspection.InspectionType,
		inspection.Status,
		inspection.InspectorID,
		nullInt64(inspection.AssetID),
		nullInt64(inspection.LocationID),
		[]byte(inspection.FormData),
		inspection.SignatureKey,
		imageKeys,
		inspection.SyncStatus,
		now,
	).Scan(&inspection.ID, &inspection.CreatedAt, &inspection.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create inspection: %w", err)
	}
	return nil
}

func (s *Store) GetInspection(ctx context.Context, id int64) (*storage.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE id = $1`

	inspection, err := scanInspection(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "inspection %d not found", id)
	}
	return inspection, nil
}

func (s *Store) ListInspections(ctx context.Context, filter storage.InspectionFilter) ([]*storage.Inspection, int64, error) {
	where := `
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR inspection_type = $2)
		  AND ($3 = 0 OR inspector_id = $3)
		  AND ($4 = 0 OR reviewer_id = $4)
		  AND ($5 = 0 OR asset_id = $5)
	`
	args := []interface{}{
		filter.Status, filter.InspectionType, filter.InspectorID, filter.ReviewerID, filter.AssetID,
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inspections`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count inspections: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + inspectionColumns + ` FROM inspections` + where +
		` ORDER BY created_at DESC LIMIT $6 OFFSET $7`

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var inspections []*storage.Inspection
	for rows.Next() {
		inspection, err := scanInspection(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan inspection: %w", err)
		}
		inspections = append(inspections, inspection)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating inspections: %w", err)
	}
	return inspections, total, nil
}

// UpdateInspectionDraft replaces the mutable form fields while the row is
// still a draft. A lost race or an already-submitted row comes back as an
// invalid-state error.
func (s *Store) UpdateInspectionDraft(ctx context.Context, inspection *storage.Inspection) error {
	query := `
		UPDATE inspections
		SET inspection_type = $2, asset_id = $3, location_id = $4, form_data = $5,
		    signature_key = $6, image_keys = $7, updated_at = $8
		WHERE id = $1 AND status = 'draft'
	`

	imageKeys, err := marshalImageKeys(inspection.ImageKeys)
	if err != nil {
		return fmt.Errorf("failed to encode image keys: %w", err)
	}
	if len(inspection.FormData) == 0 {
		inspection.FormData = json.RawMessage("{}")
	}

	result, err := s.db.ExecContext(ctx, query,
		inspection.ID,
		inspection.InspectionType,
		nullInt64(inspection.AssetID),
		nullInt64(inspection.LocationID),
		[]byte(inspection.FormData),
		inspection.SignatureKey,
		imageKeys,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update inspection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, getErr := s.GetInspection(ctx, inspection.ID); getErr != nil {
			return getErr
		}
		return apperr.InvalidState("inspection %d is no longer a draft", inspection.ID)
	}
	return nil
}

// SubmitInspection moves draft -> pending_review. The WHERE clause is the
// optimistic status check; losing the race returns an invalid-state error.
func (s *Store) SubmitInspection(ctx context.Context, id int64, reviewerID *int64, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Store.SubmitInspection",
		trace.WithAttributes(attribute.Int64("inspection.id", id)))
	defer span.End()

	query := `
		UPDATE inspections
		SET status = 'pending_review', reviewer_id = $2, submitted_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'draft'
	`

	result, err := s.db.ExecContext(ctx, query, id, nullInt64(reviewerID), at)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to submit inspection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, getErr := s.GetInspection(ctx, id); getErr != nil {
			return getErr
		}
		return apperr.InvalidState("inspection %d is not a draft", id)
	}
	return nil
}

// ReviewInspection moves pending_review -> approved or rejected.
func (s *Store) ReviewInspection(ctx context.Context, id, reviewerID int64, status, comment string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Store.ReviewInspection",
		trace.WithAttributes(
			attribute.Int64("inspection.id", id),
			attribute.String("inspection.status", status),
		))
	defer span.End()

	query := `
		UPDATE inspections
		SET status = $2, reviewer_id = $3, review_comment = $4, reviewed_at = $5, updated_at = $5
		WHERE id = $1 AND status = 'pending_review'
	`

	result, err := s.db.ExecContext(ctx, query, id, status, reviewerID, comment, at)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to review inspection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, getErr := s.GetInspection(ctx, id); getErr != nil {
			return getErr
		}
		return apperr.InvalidState("inspection %d is not pending review", id)
	}
	return nil
}

// CompleteInspection is the administrative finalization and is allowed from
// any non-completed status.
func (s *Store) CompleteInspection(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE inspections
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status <> 'completed'
	`

	result, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to complete inspection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, getErr := s.GetInspection(ctx, id); getErr != nil {
			return getErr
		}
		return apperr.InvalidState("inspection %d is already completed", id)
	}
	return nil
}

func (s *Store) DeleteInspection(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM inspection_sync_log WHERE inspection_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete sync log: %w", err)
	}

	// Notifications keep their history; detach them instead of deleting.
	if _, err := tx.ExecContext(ctx,
		`UPDATE notifications SET inspection_id = NULL WHERE inspection_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach notifications: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM inspections WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperr.Conflict("inspection %d is still referenced", id)
		}
		return fmt.Errorf("failed to delete inspection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("inspection %d not found", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountPendingForReviewer returns the reviewer's current pending-review load.
func (s *Store) CountPendingForReviewer(ctx context.Context, reviewerID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inspections WHERE reviewer_id = $1 AND status = 'pending_review'`,
		reviewerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending inspections: %w", err)
	}
	return count, nil
}

func (s *Store) SetDetections(ctx context.Context, id int64, detections json.RawMessage) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE inspections SET detections = $2, updated_at = $3 WHERE id = $1`,
		id, []byte(detections), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set detections: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("inspection %d not found", id)
	}
	return nil
}

// UpdateSyncStatus records the outcome of an export attempt and bumps the
// attempt counter.
func (s *Store) UpdateSyncStatus(ctx context.Context, id int64, status, syncError string) error {
	query := `
		UPDATE inspections
		SET sync_status = $2, sync_attempts = sync_attempts + 1,
		    last_sync_error = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, status, syncError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("inspection %d not found", id)
	}
	return nil
}

func (s *Store) AppendSyncLog(ctx context.Context, entry *storage.SyncLogEntry) error {
	query := `
		INSERT INTO inspection_sync_log (inspection_id, attempt, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		entry.InspectionID, entry.Attempt, entry.Status, entry.Error, time.Now().UTC(),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

func (s *Store) ListSyncLog(ctx context.Context, inspectionID int64) ([]*storage.SyncLogEntry, error) {
	query := `
		SELECT id, inspection_id, attempt, status, error, created_at
		FROM inspection_sync_log
		WHERE inspection_id = $1
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}
	defer rows.Close()

	var entries []*storage.SyncLogEntry
	for rows.Next() {
		var e storage.SyncLogEntry
		if err := rows.Scan(&e.ID, &e.InspectionID, &e.Attempt, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}
	return entries, nil
}

// ListSyncBacklog returns submitted inspections whose export has not
// succeeded and that still have retry budget. Pending rows untouched for
// a while are included too: an export that died before recording its
// outcome leaves the row pending, and it would otherwise never retry.
func (s *Store) ListSyncBacklog(ctx context.Context, maxAttempts, limit int) ([]*storage.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections
		WHERE (sync_status IN ('failed', 'retrying')
		       OR (sync_status = 'pending' AND updated_at < NOW() - INTERVAL '15 minutes'))
		  AND sync_attempts < $1
		  AND submitted_at IS NOT NULL
		ORDER BY updated_at
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync backlog: %w", err)
	}
	defer rows.Close()

	var inspections []*storage.Inspection
	for rows.Next() {
		inspection, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		inspections = append(inspections, inspection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync backlog: %w", err)
	}
	return inspections, nil
}
