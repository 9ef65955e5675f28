package export

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/async"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// DefaultSweepLimit bounds how many backlog items one sweep picks up.
const DefaultSweepLimit = 50

// sweepWorkers bounds concurrent uploads toward the drive API.
const sweepWorkers = 4

// sweepItemTimeout bounds a single re-export, render plus upload.
const sweepItemTimeout = 2 * time.Minute

// Sweeper retries inspections whose document upload has not succeeded
// yet. It runs from the cron scheduler.
type Sweeper struct {
	store   storage.Store
	service *Service
	policy  *RetryPolicy
	limit   int
	now     func() time.Time
}

// NewSweeper creates a backlog sweeper. limit <= 0 selects
// DefaultSweepLimit; a nil policy selects the default backoff.
func NewSweeper(store storage.Store, service *Service, policy *RetryPolicy, limit int) *Sweeper {
	if policy == nil {
		policy = NewRetryPolicy(0, 0, 0)
	}
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	return &Sweeper{
		store:   store,
		service: service,
		policy:  policy,
		limit:   limit,
		now:     time.Now,
	}
}

// Sweep retries every due backlog item once and returns how many were
// attempted. Upload failures are already recorded per item, so they do
// not abort the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	backlog, err := s.store.ListSyncBacklog(ctx, s.service.maxAttempts, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list export backlog: %w", err)
	}
	if m := s.service.metrics; m != nil {
		m.ExportRetryQueueSize.Set(float64(len(backlog)))
	}

	now := s.now().UTC()
	due := make([]*storage.Inspection, 0, len(backlog))
	for _, insp := range backlog {
		if insp.SyncAttempts > 0 && !s.policy.Due(insp.UpdatedAt, insp.SyncAttempts, now) {
			continue
		}
		due = append(due, insp)
	}

	errs := async.Batch(ctx, due, sweepWorkers, "export backlog sweep", sweepItemTimeout,
		func(ctx context.Context, insp *storage.Inspection) error {
			if err := s.service.Export(ctx, insp.ID); err != nil {
				return fmt.Errorf("inspection %d: %w", insp.ID, err)
			}
			return nil
		})
	for _, err := range errs {
		s.service.logger.WithError(err).Debug("backlog export attempt failed")
	}
	return len(due), nil
}
