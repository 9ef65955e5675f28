package audit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
)

type channelInserter struct {
	events chan *Event
}

func newChannelInserter() *channelInserter {
	return &channelInserter{events: make(chan *Event, 8)}
}

func (c *channelInserter) Insert(ctx context.Context, event *Event) error {
	c.events <- event
	return nil
}

func (c *channelInserter) next(t *testing.T) *Event {
	t.Helper()
	select {
	case event := <-c.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event recorded")
		return nil
	}
}

func (c *channelInserter) none(t *testing.T) {
	t.Helper()
	select {
	case event := <-c.events:
		t.Fatalf("unexpected audit event: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func auditFixture() (*channelInserter, func(http.Handler) http.Handler) {
	inserter := newChannelInserter()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return inserter, Middleware(NewRecorder(inserter, logger))
}

func TestMiddlewareRecordsMutations(t *testing.T) {
	inserter, middleware := auditFixture()
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/inspections/42/submit", nil)
	principal := &auth.Principal{UserID: 5, Email: "ines@example.com", Role: "inspector"}
	req = req.WithContext(auth.WithPrincipal(req.Context(), principal))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	event := inserter.next(t)
	assert.Equal(t, ActionHTTPRequest, event.Action)
	assert.Equal(t, StatusSuccess, event.Status)
	assert.Equal(t, http.StatusCreated, event.StatusCode)
	assert.Equal(t, "inspections", event.EntityType)
	assert.Equal(t, "42", event.EntityID)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, int64(5), *event.ActorID)
	assert.Equal(t, "ines@example.com", event.ActorEmail)
}

func TestMiddlewareSkipsReads(t *testing.T) {
	inserter, middleware := auditFixture()
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/inspections", nil))
	inserter.none(t)
}

func TestMiddlewareStatusMapping(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusOK, StatusSuccess},
		{http.StatusNoContent, StatusSuccess},
		{http.StatusUnauthorized, StatusDenied},
		{http.StatusForbidden, StatusDenied},
		{http.StatusConflict, StatusFailure},
		{http.StatusInternalServerError, StatusFailure},
	}
	for _, tt := range tests {
		inserter, middleware := auditFixture()
		handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/inspections/7", nil))

		event := inserter.next(t)
		assert.Equal(t, tt.want, event.Status, "status %d", tt.code)
	}
}

func TestMiddlewareImplicitOK(t *testing.T) {
	inserter, middleware := auditFixture()
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/auth/pin", nil))

	event := inserter.next(t)
	assert.Equal(t, http.StatusOK, event.StatusCode)
	assert.Equal(t, "auth", event.EntityType)
	assert.Empty(t, event.EntityID)
}

func TestEntityFromPath(t *testing.T) {
	tests := []struct {
		path       string
		entityType string
		entityID   string
	}{
		{"/inspections/42/submit", "inspections", "42"},
		{"/inspections", "inspections", ""},
		{"/admin/users/7/permissions/manage_users", "users", "7"},
		{"/notifications/read-all", "notifications", ""},
		{"/", "", ""},
	}
	for _, tt := range tests {
		entityType, entityID := entityFromPath(tt.path)
		assert.Equal(t, tt.entityType, entityType, tt.path)
		assert.Equal(t, tt.entityID, entityID, tt.path)
	}
}

func TestRecorderDefaults(t *testing.T) {
	inserter := newChannelInserter()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	recorder := NewRecorder(inserter, logger)

	ctx := observability.WithRequestID(context.Background(), "req-77")
	recorder.Record(ctx, &Event{Action: ActionUserCreate})

	event := inserter.next(t)
	assert.Equal(t, StatusSuccess, event.Status)
	assert.Equal(t, "req-77", event.RequestID)
	assert.Nil(t, event.ActorID)
	assert.False(t, event.CreatedAt.IsZero())
}
