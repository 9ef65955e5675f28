package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

type exportStore struct {
	storage.Store

	mu          sync.Mutex
	inspections map[int64]*storage.Inspection
	users       map[int64]*storage.User
	assets      map[int64]*storage.Asset
	locations   map[int64]*storage.Location
	syncLog     []*storage.SyncLogEntry
	backlog     []*storage.Inspection
}

func newExportStore() *exportStore {
	return &exportStore{
		inspections: make(map[int64]*storage.Inspection),
		users:       make(map[int64]*storage.User),
		assets:      make(map[int64]*storage.Asset),
		locations:   make(map[int64]*storage.Location),
	}
}

func (s *exportStore) GetInspection(ctx context.Context, id int64) (*storage.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insp, ok := s.inspections[id]
	if !ok {
		return nil, errors.New("inspection not found")
	}
	cp := *insp
	return &cp, nil
}

func (s *exportStore) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (s *exportStore) GetAsset(ctx context.Context, id int64) (*storage.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, errors.New("asset not found")
	}
	return a, nil
}

func (s *exportStore) GetLocation(ctx context.Context, id int64) (*storage.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[id]
	if !ok {
		return nil, errors.New("location not found")
	}
	return l, nil
}

func (s *exportStore) UpdateSyncStatus(ctx context.Context, id int64, status, syncError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	insp, ok := s.inspections[id]
	if !ok {
		return errors.New("inspection not found")
	}
	insp.SyncStatus = status
	insp.LastSyncError = syncError
	insp.SyncAttempts++
	insp.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *exportStore) AppendSyncLog(ctx context.Context, entry *storage.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.syncLog) + 1)
	entry.CreatedAt = time.Now().UTC()
	s.syncLog = append(s.syncLog, entry)
	return nil
}

func (s *exportStore) ListSyncBacklog(ctx context.Context, maxAttempts, limit int) ([]*storage.Inspection, error) {
	return s.backlog, nil
}

type recordedUpload struct {
	filename string
	content  []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	uploads []recordedUpload
}

func (u *fakeUploader) Upload(ctx context.Context, filename string, content []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, recordedUpload{filename: filename, content: content})
	return u.err
}

func (u *fakeUploader) filenames() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	names := make([]string, 0, len(u.uploads))
	for _, up := range u.uploads {
		names = append(names, up.filename)
	}
	return names
}

func exportFixture(t *testing.T) (*Service, *exportStore, *fakeUploader) {
	t.Helper()
	store := newExportStore()
	uploader := &fakeUploader{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	svc := NewService(store, uploader, 3, logger, nil)
	return svc, store, uploader
}

func seedInspection(store *exportStore) *storage.Inspection {
	submitted := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	reviewerID := int64(7)
	assetID := int64(3)
	locationID := int64(4)
	insp := &storage.Inspection{
		ID:             42,
		InspectionType: "fire_extinguisher",
		Status:         "approved",
		InspectorID:    5,
		ReviewerID:     &reviewerID,
		AssetID:        &assetID,
		LocationID:     &locationID,
		FormData:       json.RawMessage(`{"pressure":"ok"}`),
		SyncStatus:     SyncPending,
		SubmittedAt:    &submitted,
	}
	store.inspections[insp.ID] = insp
	store.users[5] = &storage.User{ID: 5, Email: "ines@example.com", FullName: "Ines Okafor", Role: "inspector"}
	store.users[7] = &storage.User{ID: 7, Email: "sam@example.com", FullName: "Sam Reyes", Role: "supervisor"}
	store.assets[3] = &storage.Asset{ID: 3, Tag: "FE-031", Name: "Extinguisher 31"}
	store.locations[4] = &storage.Location{ID: 4, Name: "Warehouse B", Site: "North"}
	return insp
}

func TestExportSuccess(t *testing.T) {
	svc, store, uploader := exportFixture(t)
	seedInspection(store)

	require.NoError(t, svc.Export(context.Background(), 42))

	require.Len(t, uploader.uploads, 1)
	assert.Equal(t, "inspection-42-fire_extinguisher.json", uploader.uploads[0].filename)

	var rep report
	require.NoError(t, json.Unmarshal(uploader.uploads[0].content, &rep))
	assert.Equal(t, int64(42), rep.InspectionID)
	assert.Equal(t, "Ines Okafor", rep.Inspector.Name)
	require.NotNil(t, rep.Reviewer)
	assert.Equal(t, "Sam Reyes", rep.Reviewer.Name)
	assert.Equal(t, "Extinguisher 31", rep.Asset)
	assert.Equal(t, "Warehouse B", rep.Location)
	assert.JSONEq(t, `{"pressure":"ok"}`, string(rep.FormData))

	insp := store.inspections[42]
	assert.Equal(t, SyncSynced, insp.SyncStatus)
	assert.Empty(t, insp.LastSyncError)

	require.Len(t, store.syncLog, 1)
	assert.Equal(t, SyncSynced, store.syncLog[0].Status)
	assert.Equal(t, 1, store.syncLog[0].Attempt)
}

func TestExportFailureMarksRetrying(t *testing.T) {
	svc, store, uploader := exportFixture(t)
	seedInspection(store)
	uploader.err = errors.New("drive unavailable")

	err := svc.Export(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive unavailable")

	insp := store.inspections[42]
	assert.Equal(t, SyncRetrying, insp.SyncStatus)
	assert.Contains(t, insp.LastSyncError, "drive unavailable")
	assert.Equal(t, 1, insp.SyncAttempts)

	require.Len(t, store.syncLog, 1)
	assert.Equal(t, SyncRetrying, store.syncLog[0].Status)
	assert.Contains(t, store.syncLog[0].Error, "drive unavailable")
}

func TestExportExhaustedAttemptsMarksFailed(t *testing.T) {
	svc, store, uploader := exportFixture(t)
	insp := seedInspection(store)
	insp.SyncAttempts = 2
	uploader.err = errors.New("still down")

	require.Error(t, svc.Export(context.Background(), 42))

	assert.Equal(t, SyncFailed, store.inspections[42].SyncStatus)
	require.Len(t, store.syncLog, 1)
	assert.Equal(t, SyncFailed, store.syncLog[0].Status)
	assert.Equal(t, 3, store.syncLog[0].Attempt)
}

func TestExportRenderFailureRecordsAttempt(t *testing.T) {
	svc, store, uploader := exportFixture(t)
	insp := seedInspection(store)
	delete(store.users, insp.InspectorID)

	require.Error(t, svc.Export(context.Background(), 42))
	assert.Empty(t, uploader.uploads)

	// A failure before the upload still burns an attempt and moves the
	// row out of pending, so the sweeper picks it up.
	assert.Equal(t, SyncRetrying, store.inspections[42].SyncStatus)
	assert.Equal(t, 1, store.inspections[42].SyncAttempts)
	require.Len(t, store.syncLog, 1)
	assert.Equal(t, SyncRetrying, store.syncLog[0].Status)
	assert.Contains(t, store.syncLog[0].Error, "inspector")
}

func TestExportMissingInspectorOmitsOptionalsOnly(t *testing.T) {
	svc, store, uploader := exportFixture(t)
	insp := seedInspection(store)
	delete(store.assets, *insp.AssetID)
	delete(store.locations, *insp.LocationID)
	delete(store.users, *insp.ReviewerID)

	require.NoError(t, svc.Export(context.Background(), 42))

	var rep report
	require.NoError(t, json.Unmarshal(uploader.uploads[0].content, &rep))
	assert.Nil(t, rep.Reviewer)
	assert.Empty(t, rep.Asset)
	assert.Empty(t, rep.Location)
}

func TestExportUnknownInspection(t *testing.T) {
	svc, _, uploader := exportFixture(t)

	require.Error(t, svc.Export(context.Background(), 99))
	assert.Empty(t, uploader.uploads)
}

func TestSweepRetriesOnlyDueItems(t *testing.T) {
	svc, store, uploader := exportFixture(t)
	seedInspection(store)

	fresh := *store.inspections[42]
	fresh.ID = 43
	fresh.SyncAttempts = 1
	fresh.UpdatedAt = time.Now().UTC()
	store.inspections[43] = &fresh

	stale := *store.inspections[42]
	stale.ID = 44
	stale.SyncAttempts = 1
	stale.UpdatedAt = time.Now().UTC().Add(-10 * time.Minute)
	store.inspections[44] = &stale

	never := store.inspections[42]
	never.SyncAttempts = 0

	store.backlog = []*storage.Inspection{never, &fresh, &stale}

	sweeper := NewSweeper(store, svc, NewRetryPolicy(time.Minute, time.Hour, 2.0), 0)
	attempted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	// 42 has never been attempted and 44 is past its backoff window;
	// 43 failed too recently.
	assert.Equal(t, 2, attempted)
	assert.ElementsMatch(t, []string{
		"inspection-42-fire_extinguisher.json",
		"inspection-44-fire_extinguisher.json",
	}, uploader.filenames())
}

func TestSweepContinuesPastFailures(t *testing.T) {
	svc, store, uploader := exportFixture(t)
	seedInspection(store)

	second := *store.inspections[42]
	second.ID = 43
	store.inspections[43] = &second
	store.backlog = []*storage.Inspection{store.inspections[42], &second}
	uploader.err = errors.New("offline")

	sweeper := NewSweeper(store, svc, nil, 10)
	attempted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempted)
	assert.Len(t, uploader.uploads, 2)
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := NewRetryPolicy(time.Minute, time.Hour, 2.0)

	assert.Equal(t, time.Minute, policy.Delay(0))
	assert.Equal(t, time.Minute, policy.Delay(1))
	assert.Equal(t, 2*time.Minute, policy.Delay(2))
	assert.Equal(t, 4*time.Minute, policy.Delay(3))
	assert.Equal(t, time.Hour, policy.Delay(20))
}

func TestRetryPolicyDue(t *testing.T) {
	policy := NewRetryPolicy(time.Minute, time.Hour, 2.0)
	last := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	assert.False(t, policy.Due(last, 1, last.Add(30*time.Second)))
	assert.True(t, policy.Due(last, 1, last.Add(time.Minute)))
	assert.False(t, policy.Due(last, 3, last.Add(3*time.Minute)))
	assert.True(t, policy.Due(last, 3, last.Add(4*time.Minute)))
}
