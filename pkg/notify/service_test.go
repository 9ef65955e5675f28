package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

type fanoutStore struct {
	storage.Store

	users         []*storage.User
	subs          map[int64][]*storage.PushSubscription
	prefs         map[int64]*storage.NotificationPreference
	notifications []*storage.Notification
	dispatchLog   []*storage.DispatchLogEntry
	deactivated   []int64
}

func newFanoutStore() *fanoutStore {
	return &fanoutStore{
		subs:  make(map[int64][]*storage.PushSubscription),
		prefs: make(map[int64]*storage.NotificationPreference),
	}
}

func (f *fanoutStore) ListUsers(_ context.Context, role string, _ bool) ([]*storage.User, error) {
	var out []*storage.User
	for _, user := range f.users {
		if user.Role == role {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fanoutStore) CreateNotification(_ context.Context, n *storage.Notification) error {
	n.ID = int64(len(f.notifications) + 1)
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fanoutStore) ListActiveSubscriptions(_ context.Context, userID int64) ([]*storage.PushSubscription, error) {
	return f.subs[userID], nil
}

func (f *fanoutStore) GetPreference(_ context.Context, userID int64) (*storage.NotificationPreference, error) {
	return f.prefs[userID], nil
}

func (f *fanoutStore) DeactivateSubscription(_ context.Context, id int64) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fanoutStore) AppendDispatchLog(_ context.Context, entry *storage.DispatchLogEntry) error {
	f.dispatchLog = append(f.dispatchLog, entry)
	return nil
}

// scriptedProvider returns the queued error per endpoint.
type scriptedProvider struct {
	errs  map[string]error
	sends []string
}

func (p *scriptedProvider) Send(_ context.Context, sub *storage.PushSubscription, _ *Payload) error {
	p.sends = append(p.sends, sub.Endpoint)
	return p.errs[sub.Endpoint]
}

func newFanoutFixture() (*fanoutStore, *scriptedProvider, *Service) {
	store := newFanoutStore()
	provider := &scriptedProvider{errs: make(map[string]error)}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return store, provider, NewService(store, provider, logger, nil)
}

func subscription(id, userID int64, endpoint string) *storage.PushSubscription {
	return &storage.PushSubscription{ID: id, UserID: userID, Endpoint: endpoint, Active: true}
}

func TestTriggerFailOpenWithoutPreference(t *testing.T) {
	store, provider, svc := newFanoutFixture()
	store.subs[7] = []*storage.PushSubscription{subscription(1, 7, "https://push/a")}

	err := svc.Trigger(context.Background(), EventApproved, TargetUser(7), "Approved", "body", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://push/a"}, provider.sends)
	require.Len(t, store.dispatchLog, 1)
	assert.Equal(t, "sent", store.dispatchLog[0].Status)
	require.Len(t, store.notifications, 1)
	assert.Equal(t, "inspection_approved", store.notifications[0].EventType)
	require.NotNil(t, store.notifications[0].ExpiresAt)
}

func TestTriggerCategoryDisabled(t *testing.T) {
	store, provider, svc := newFanoutFixture()
	store.subs[7] = []*storage.PushSubscription{subscription(1, 7, "https://push/a")}
	store.prefs[7] = &storage.NotificationPreference{
		UserID:             7,
		NotifyOnAssignment: true,
		NotifyOnApproval:   false,
		NotifyOnRejection:  true,
		NotifyOnComment:    true,
	}

	err := svc.Trigger(context.Background(), EventApproved, TargetUser(7), "Approved", "body", nil)
	require.NoError(t, err)

	assert.Empty(t, provider.sends, "no dispatch for a disabled category")
	require.Len(t, store.dispatchLog, 1)
	assert.Equal(t, "filtered", store.dispatchLog[0].Status)
	assert.Equal(t, "category_disabled", store.dispatchLog[0].Detail)
	// The in-app notification row is still written.
	assert.Len(t, store.notifications, 1)
}

func TestTriggerQuietHours(t *testing.T) {
	store, provider, svc := newFanoutFixture()
	store.subs[7] = []*storage.PushSubscription{subscription(1, 7, "https://push/a")}
	store.prefs[7] = &storage.NotificationPreference{
		UserID:             7,
		NotifyOnAssignment: true,
		NotifyOnApproval:   true,
		NotifyOnRejection:  true,
		NotifyOnComment:    true,
		QuietHoursStart:    "22:00",
		QuietHoursEnd:      "06:00",
	}
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	}

	err := svc.Trigger(context.Background(), EventAssigned, TargetUser(7), "Assigned", "body", nil)
	require.NoError(t, err)

	assert.Empty(t, provider.sends)
	require.Len(t, store.dispatchLog, 1)
	assert.Equal(t, "filtered", store.dispatchLog[0].Status)
	assert.Equal(t, "quiet_hours", store.dispatchLog[0].Detail)

	// Outside the window the same recipient gets the dispatch.
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	err = svc.Trigger(context.Background(), EventAssigned, TargetUser(7), "Assigned", "body", nil)
	require.NoError(t, err)
	assert.Len(t, provider.sends, 1)
}

func TestTriggerGoneEndpointDeactivates(t *testing.T) {
	store, provider, svc := newFanoutFixture()
	store.subs[7] = []*storage.PushSubscription{
		subscription(1, 7, "https://push/gone"),
		subscription(2, 7, "https://push/ok"),
	}
	provider.errs["https://push/gone"] = ErrSubscriptionGone

	err := svc.Trigger(context.Background(), EventRejected, TargetUser(7), "Rejected", "body", nil)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, store.deactivated)
	require.Len(t, store.dispatchLog, 2)
	assert.Equal(t, "failed", store.dispatchLog[0].Status)
	assert.Equal(t, "sent", store.dispatchLog[1].Status)
}

func TestTriggerProviderFailureIsSwallowed(t *testing.T) {
	store, provider, svc := newFanoutFixture()
	store.subs[7] = []*storage.PushSubscription{subscription(1, 7, "https://push/a")}
	provider.errs["https://push/a"] = errors.New("gateway timeout")

	err := svc.Trigger(context.Background(), EventApproved, TargetUser(7), "Approved", "body", nil)
	require.NoError(t, err)

	require.Len(t, store.dispatchLog, 1)
	assert.Equal(t, "failed", store.dispatchLog[0].Status)
	assert.Empty(t, store.deactivated, "transient failures keep the subscription")
}

func TestTriggerRoleTarget(t *testing.T) {
	store, provider, svc := newFanoutFixture()
	store.users = []*storage.User{
		{ID: 1, Role: "supervisor"},
		{ID: 2, Role: "supervisor"},
		{ID: 3, Role: "inspector"},
	}
	store.subs[1] = []*storage.PushSubscription{subscription(1, 1, "https://push/s1")}
	store.subs[2] = []*storage.PushSubscription{subscription(2, 2, "https://push/s2")}

	err := svc.Trigger(context.Background(), EventComment, TargetRole("supervisor"), "Comment", "body", nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"https://push/s1", "https://push/s2"}, provider.sends)
	assert.Len(t, store.notifications, 2)

	// One dispatch ID ties the whole fan-out together.
	require.Len(t, store.dispatchLog, 2)
	assert.Equal(t, store.dispatchLog[0].DispatchID, store.dispatchLog[1].DispatchID)
}

func TestTriggerEmptyTarget(t *testing.T) {
	_, _, svc := newFanoutFixture()
	err := svc.Trigger(context.Background(), EventApproved, Target{}, "t", "b", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestInQuietHours(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 1, hour, minute, 0, 0, time.UTC)
	}
	tests := []struct {
		name       string
		start, end string
		now        time.Time
		want       bool
	}{
		{name: "inside same-day window", start: "09:00", end: "17:00", now: at(12, 0), want: true},
		{name: "before same-day window", start: "09:00", end: "17:00", now: at(8, 59), want: false},
		{name: "at window start", start: "09:00", end: "17:00", now: at(9, 0), want: true},
		{name: "at window end", start: "09:00", end: "17:00", now: at(17, 0), want: false},
		{name: "wrapping window late night", start: "22:00", end: "06:00", now: at(23, 30), want: true},
		{name: "wrapping window early morning", start: "22:00", end: "06:00", now: at(5, 59), want: true},
		{name: "wrapping window daytime", start: "22:00", end: "06:00", now: at(12, 0), want: false},
		{name: "empty window", start: "", end: "", now: at(12, 0), want: false},
		{name: "equal start and end disables", start: "08:00", end: "08:00", now: at(8, 0), want: false},
		{name: "malformed start", start: "late", end: "06:00", now: at(23, 0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inQuietHours(tt.start, tt.end, tt.now))
		})
	}
}

func TestPayloadForActions(t *testing.T) {
	assigned := payloadFor(EventAssigned, "t", "b", nil)
	assert.True(t, assigned.RequireInteraction)
	require.Len(t, assigned.Actions, 2)
	assert.Equal(t, "review", assigned.Actions[0].Action)

	approved := payloadFor(EventApproved, "t", "b", nil)
	assert.False(t, approved.RequireInteraction)
	require.Len(t, approved.Actions, 1)
	assert.Equal(t, "view", approved.Actions[0].Action)
}

func TestWorkflowAdapters(t *testing.T) {
	store, provider, svc := newFanoutFixture()
	reviewerID := int64(10)
	store.subs[10] = []*storage.PushSubscription{subscription(1, 10, "https://push/reviewer")}
	store.subs[1] = []*storage.PushSubscription{subscription(2, 1, "https://push/inspector")}

	inspection := &storage.Inspection{
		ID:             5,
		InspectionType: "fire_extinguisher",
		InspectorID:    1,
		ReviewerID:     &reviewerID,
		ReviewComment:  "seal broken",
	}

	require.NoError(t, svc.InspectionAssigned(context.Background(), inspection))
	require.NoError(t, svc.InspectionReviewed(context.Background(), inspection, "rejected"))

	assert.Equal(t, []string{"https://push/reviewer", "https://push/inspector"}, provider.sends)
	require.Len(t, store.notifications, 2)
	assert.Equal(t, "inspection_assigned", store.notifications[0].EventType)
	assert.Equal(t, "inspection_rejected", store.notifications[1].EventType)
	assert.Contains(t, store.notifications[1].Body, "seal broken")
}
