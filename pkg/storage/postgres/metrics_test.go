package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
)

func TestRefreshMetrics(t *testing.T) {
	store, mock := newMockStore(t)
	m := observability.NewMetrics(prometheus.NewRegistry())

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM inspections").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM push_subscriptions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	require.NoError(t, store.RefreshMetrics(context.Background(), m))

	assert.Equal(t, float64(4), testutil.ToFloat64(m.PendingReviewGauge))
	assert.Equal(t, float64(9), testutil.ToFloat64(m.PushSubscriptionsActiveGauge))
	assert.NoError(t, mock.ExpectationsWereMet())
}
