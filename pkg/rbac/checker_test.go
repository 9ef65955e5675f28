package rbac

import (
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// fakeUserStore implements the user methods the checker and handlers use.
type fakeUserStore struct {
	storage.UserStore

	users     map[int64]*storage.User
	overrides map[int64][]*storage.PermissionOverride
	listCalls int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:     make(map[int64]*storage.User),
		overrides: make(map[int64][]*storage.PermissionOverride),
	}
}

func (f *fakeUserStore) GetUser(_ context.Context, id int64) (*storage.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return user, nil
}

func (f *fakeUserStore) ListPermissionOverrides(_ context.Context, userID int64) ([]*storage.PermissionOverride, error) {
	f.listCalls++
	return f.overrides[userID], nil
}

func (f *fakeUserStore) SetPermissionOverride(_ context.Context, o *storage.PermissionOverride) error {
	f.overrides[o.UserID] = append(f.overrides[o.UserID], o)
	return nil
}

func (f *fakeUserStore) DeletePermissionOverride(_ context.Context, userID int64, capability string) error {
	kept := f.overrides[userID][:0]
	for _, o := range f.overrides[userID] {
		if o.Capability != capability {
			kept = append(kept, o)
		}
	}
	f.overrides[userID] = kept
	return nil
}

func newTestChecker(t *testing.T, store *fakeUserStore) *Checker {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	checker, err := NewChecker(store, 16, logger, nil)
	require.NoError(t, err)
	return checker
}

func TestPermissionsForMergesOverrides(t *testing.T) {
	store := newFakeUserStore()
	store.overrides[7] = []*storage.PermissionOverride{
		{UserID: 7, Capability: "view_analytics", Allowed: true},
		{UserID: 7, Capability: "create_inspections", Allowed: false},
	}
	checker := newTestChecker(t, store)

	set, err := checker.PermissionsFor(context.Background(), 7, RoleInspector)
	require.NoError(t, err)

	assert.True(t, set.Has(CapViewAnalytics), "granted by override")
	assert.False(t, set.Has(CapCreateInspections), "revoked by override")
	assert.True(t, set.Has(CapViewInspections), "role default untouched")
}

func TestPermissionsForIgnoresUnknownOverride(t *testing.T) {
	store := newFakeUserStore()
	store.overrides[7] = []*storage.PermissionOverride{
		{UserID: 7, Capability: "time_travel", Allowed: true},
	}
	checker := newTestChecker(t, store)

	set, err := checker.PermissionsFor(context.Background(), 7, RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, RolePermissions(RoleEmployee), set)
}

func TestPermissionsForCaches(t *testing.T) {
	store := newFakeUserStore()
	checker := newTestChecker(t, store)
	ctx := context.Background()

	_, err := checker.PermissionsFor(ctx, 7, RoleInspector)
	require.NoError(t, err)
	_, err = checker.PermissionsFor(ctx, 7, RoleInspector)
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)

	checker.Invalidate(7)
	_, err = checker.PermissionsFor(ctx, 7, RoleInspector)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestPermissionsForCountsCacheTraffic(t *testing.T) {
	store := newFakeUserStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	checker, err := NewChecker(store, 16, logger, metrics)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = checker.PermissionsFor(ctx, 7, RoleInspector)
	require.NoError(t, err)
	_, err = checker.PermissionsFor(ctx, 7, RoleInspector)
	require.NoError(t, err)

	hits := testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("permissions"))
	misses := testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("permissions"))
	assert.Equal(t, float64(1), hits)
	assert.Equal(t, float64(1), misses)
}

func TestInvalidatePicksUpNewOverrides(t *testing.T) {
	store := newFakeUserStore()
	checker := newTestChecker(t, store)
	ctx := context.Background()

	set, err := checker.PermissionsFor(ctx, 7, RoleEmployee)
	require.NoError(t, err)
	assert.False(t, set.Has(CapViewAnalytics))

	store.overrides[7] = []*storage.PermissionOverride{
		{UserID: 7, Capability: "view_analytics", Allowed: true},
	}
	checker.Invalidate(7)

	set, err = checker.PermissionsFor(ctx, 7, RoleEmployee)
	require.NoError(t, err)
	assert.True(t, set.Has(CapViewAnalytics))
}
