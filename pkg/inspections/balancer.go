package inspections

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Balancer picks the reviewer for a newly submitted inspection using a
// least-pending-review heuristic. The load counts are a momentary
// snapshot; concurrent submissions may both land on the same supervisor,
// which is acceptable for advisory balancing.
type Balancer struct {
	store  storage.Store
	logger *observability.Logger
}

// NewBalancer creates a reviewer balancer.
func NewBalancer(store storage.Store, logger *observability.Logger) *Balancer {
	return &Balancer{store: store, logger: logger}
}

// PickReviewer returns the active supervisor with the fewest inspections
// currently pending their review. No active supervisors yields a nil
// reviewer without error; the inspection is submitted unassigned. Ties go
// to the first candidate in listing order.
func (b *Balancer) PickReviewer(ctx context.Context) (*int64, error) {
	supervisors, err := b.store.ListUsers(ctx, "supervisor", true)
	if err != nil {
		return nil, fmt.Errorf("failed to list supervisors: %w", err)
	}

	switch len(supervisors) {
	case 0:
		b.logger.Warn("no active supervisors, submitting unassigned")
		return nil, nil
	case 1:
		id := supervisors[0].ID
		return &id, nil
	}

	counts := make([]int, len(supervisors))
	g, gctx := errgroup.WithContext(ctx)
	for i, supervisor := range supervisors {
		i, id := i, supervisor.ID
		g.Go(func() error {
			count, err := b.store.CountPendingForReviewer(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to count pending reviews for supervisor %d: %w", id, err)
			}
			counts[i] = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] < counts[best] {
			best = i
		}
	}
	id := supervisors[best].ID
	b.logger.WithField("reviewer_id", id).
		WithField("pending_count", counts[best]).
		Debug("picked least-loaded reviewer")
	return &id, nil
}
