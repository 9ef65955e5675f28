package postgres

import (
	"context"
	"fmt"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
)

// RefreshMetrics updates the gauges that reflect store state: connection
// pool usage, the pending-review queue depth, and the number of active
// push subscriptions. Called periodically from the scheduler.
func (s *Store) RefreshMetrics(ctx context.Context, m *observability.Metrics) error {
	stats := s.db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))

	var pending int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inspections WHERE status = 'pending_review'`).Scan(&pending)
	if err != nil {
		return fmt.Errorf("failed to count pending inspections: %w", err)
	}
	m.PendingReviewGauge.Set(float64(pending))

	subs, err := s.CountActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to count push subscriptions: %w", err)
	}
	m.PushSubscriptionsActiveGauge.Set(float64(subs))
	return nil
}
