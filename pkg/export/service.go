package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Sync status values persisted on the inspection row.
const (
	SyncPending  = "pending"
	SyncSynced   = "synced"
	SyncRetrying = "retrying"
	SyncFailed   = "failed"
)

// DefaultMaxAttempts is how many upload attempts an inspection gets
// before it is parked as failed.
const DefaultMaxAttempts = 5

// Service renders inspection reports and pushes them to the document
// library. Every attempt is recorded in the sync log and reflected in
// the inspection's durable sync status.
type Service struct {
	store       storage.Store
	uploader    Uploader
	maxAttempts int
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewService creates an export service. maxAttempts <= 0 selects
// DefaultMaxAttempts.
func NewService(store storage.Store, uploader Uploader, maxAttempts int, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		store:       store,
		uploader:    uploader,
		maxAttempts: maxAttempts,
		logger:      logger,
		metrics:     metrics,
	}
}

// report is the document shape uploaded to the library.
type report struct {
	InspectionID   int64           `json:"inspection_id"`
	InspectionType string          `json:"inspection_type"`
	Status         string          `json:"status"`
	Inspector      reportPerson    `json:"inspector"`
	Reviewer       *reportPerson   `json:"reviewer,omitempty"`
	Asset          string          `json:"asset,omitempty"`
	Location       string          `json:"location,omitempty"`
	FormData       json.RawMessage `json:"form_data"`
	Detections     json.RawMessage `json:"detections,omitempty"`
	ReviewComment  string          `json:"review_comment,omitempty"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	ExportedAt     time.Time       `json:"exported_at"`
}

type reportPerson struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Export uploads the report document for one inspection and updates its
// sync status. A failed upload leaves the inspection in the retry
// backlog until the attempt budget runs out.
func (s *Service) Export(ctx context.Context, inspectionID int64) error {
	insp, err := s.store.GetInspection(ctx, inspectionID)
	if err != nil {
		return fmt.Errorf("failed to load inspection %d for export: %w", inspectionID, err)
	}

	doc, err := s.renderReport(ctx, insp)
	if err != nil {
		// Render failures must still count against the attempt budget,
		// otherwise the row stays pending and the sweeper never sees it.
		s.recordFailure(ctx, insp, err)
		return err
	}

	filename := fmt.Sprintf("inspection-%d-%s.json", insp.ID, insp.InspectionType)
	uploadErr := s.uploader.Upload(ctx, filename, doc)

	if uploadErr == nil {
		if err := s.store.UpdateSyncStatus(ctx, insp.ID, SyncSynced, ""); err != nil {
			return fmt.Errorf("failed to mark inspection %d synced: %w", insp.ID, err)
		}
		s.appendLog(ctx, insp.ID, insp.SyncAttempts+1, SyncSynced, "")
		s.countAttempt("success")
		s.logger.WithField("inspection_id", insp.ID).Info("exported inspection report")
		return nil
	}

	s.recordFailure(ctx, insp, uploadErr)
	return fmt.Errorf("failed to export inspection %d: %w", insp.ID, uploadErr)
}

// recordFailure persists one failed attempt: sync status, sync log, and
// the attempt counter.
func (s *Service) recordFailure(ctx context.Context, insp *storage.Inspection, cause error) {
	attempt := insp.SyncAttempts + 1
	status := SyncRetrying
	if attempt >= s.maxAttempts {
		status = SyncFailed
	}
	if err := s.store.UpdateSyncStatus(ctx, insp.ID, status, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("inspection_id", insp.ID).Error("failed to record sync status")
	}
	s.appendLog(ctx, insp.ID, attempt, status, cause.Error())
	s.countAttempt("failure")
	s.logger.WithError(cause).
		WithField("inspection_id", insp.ID).
		WithField("attempt", attempt).
		Error("inspection export failed")
}

func (s *Service) renderReport(ctx context.Context, insp *storage.Inspection) ([]byte, error) {
	rep := report{
		InspectionID:   insp.ID,
		InspectionType: insp.InspectionType,
		Status:         insp.Status,
		FormData:       insp.FormData,
		Detections:     insp.Detections,
		ReviewComment:  insp.ReviewComment,
		SubmittedAt:    insp.SubmittedAt,
		ReviewedAt:     insp.ReviewedAt,
		ExportedAt:     time.Now().UTC(),
	}

	inspector, err := s.store.GetUser(ctx, insp.InspectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load inspector for inspection %d: %w", insp.ID, err)
	}
	rep.Inspector = reportPerson{Name: inspector.FullName, Email: inspector.Email}

	if insp.ReviewerID != nil {
		if reviewer, err := s.store.GetUser(ctx, *insp.ReviewerID); err == nil {
			rep.Reviewer = &reportPerson{Name: reviewer.FullName, Email: reviewer.Email}
		}
	}
	if insp.AssetID != nil {
		if asset, err := s.store.GetAsset(ctx, *insp.AssetID); err == nil {
			rep.Asset = asset.Name
		}
	}
	if insp.LocationID != nil {
		if loc, err := s.store.GetLocation(ctx, *insp.LocationID); err == nil {
			rep.Location = loc.Name
		}
	}

	doc, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render report for inspection %d: %w", insp.ID, err)
	}
	return doc, nil
}

func (s *Service) appendLog(ctx context.Context, inspectionID int64, attempt int, status, syncError string) {
	entry := &storage.SyncLogEntry{
		InspectionID: inspectionID,
		Attempt:      attempt,
		Status:       status,
		Error:        syncError,
	}
	if err := s.store.AppendSyncLog(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("inspection_id", inspectionID).Error("failed to append sync log entry")
	}
}

func (s *Service) countAttempt(status string) {
	if s.metrics != nil {
		s.metrics.ExportAttemptsTotal.WithLabelValues(status).Inc()
	}
}
