package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

type analyzerStore struct {
	storage.Store

	inspections map[int64]*storage.Inspection
	detections  map[int64]json.RawMessage
}

func (s *analyzerStore) GetInspection(ctx context.Context, id int64) (*storage.Inspection, error) {
	insp, ok := s.inspections[id]
	if !ok {
		return nil, errors.New("inspection not found")
	}
	return insp, nil
}

func (s *analyzerStore) SetDetections(ctx context.Context, id int64, detections json.RawMessage) error {
	s.detections[id] = detections
	return nil
}

type fakeFetcher struct {
	images map[string][]byte
}

func (f *fakeFetcher) GetImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := f.images[key]
	if !ok {
		return nil, "", errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), "image/jpeg", nil
}

type fakeModel struct {
	err     error
	results []ImageResult
	got     []Image
}

func (m *fakeModel) Detect(ctx context.Context, images []Image) ([]ImageResult, error) {
	m.got = images
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func analyzerFixture(keys ...string) (*analyzerStore, *fakeFetcher, *fakeModel) {
	store := &analyzerStore{
		inspections: map[int64]*storage.Inspection{
			1: {ID: 1, InspectionType: "fire_extinguisher", ImageKeys: keys},
		},
		detections: make(map[int64]json.RawMessage),
	}
	fetcher := &fakeFetcher{images: make(map[string][]byte)}
	for _, key := range keys {
		fetcher.images[key] = []byte("photo-" + key)
	}
	return store, fetcher, &fakeModel{}
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestAnalyzePersistsDetections(t *testing.T) {
	store, fetcher, model := analyzerFixture("inspections/a.jpg", "inspections/b.jpg")
	model.results = []ImageResult{
		{Key: "inspections/a.jpg", Detections: []Detection{
			{ClassName: ClassShell, Confidence: 0.9},
			{ClassName: ClassHose, Confidence: 0.8},
		}},
		{Key: "inspections/b.jpg", Detections: []Detection{
			{ClassName: ClassNozzle, Confidence: 0.7},
		}},
	}

	analyzer := NewAnalyzer(store, fetcher, model, testLogger())
	require.NoError(t, analyzer.Analyze(context.Background(), 1))

	require.Len(t, model.got, 2)
	assert.Equal(t, []byte("photo-inspections/a.jpg"), model.got[0].Data)

	var doc analysis
	require.NoError(t, json.Unmarshal(store.detections[1], &doc))
	assert.Len(t, doc.Results, 2)
	assert.Equal(t, []string{ClassPressureGauge, ClassSafetyPin, ClassPinSeal, ClassServiceTag}, doc.MissingComponents)
	assert.False(t, doc.AnalyzedAt.IsZero())
}

func TestAnalyzeNoPhotosIsNoop(t *testing.T) {
	store, fetcher, model := analyzerFixture()

	analyzer := NewAnalyzer(store, fetcher, model, testLogger())
	require.NoError(t, analyzer.Analyze(context.Background(), 1))
	assert.Empty(t, model.got)
	assert.Empty(t, store.detections)
}

func TestAnalyzeSkipsUnreadablePhotos(t *testing.T) {
	store, fetcher, model := analyzerFixture("inspections/a.jpg", "inspections/gone.jpg")
	delete(fetcher.images, "inspections/gone.jpg")
	model.results = []ImageResult{{Key: "inspections/a.jpg", Detections: []Detection{}}}

	analyzer := NewAnalyzer(store, fetcher, model, testLogger())
	require.NoError(t, analyzer.Analyze(context.Background(), 1))

	require.Len(t, model.got, 1)
	assert.Equal(t, "inspections/a.jpg", model.got[0].Key)
}

func TestAnalyzeFailsWhenNoPhotoReadable(t *testing.T) {
	store, fetcher, model := analyzerFixture("inspections/a.jpg")
	delete(fetcher.images, "inspections/a.jpg")

	analyzer := NewAnalyzer(store, fetcher, model, testLogger())
	err := analyzer.Analyze(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no readable photos")
	assert.Empty(t, store.detections)
}

func TestAnalyzeModelFailure(t *testing.T) {
	store, fetcher, model := analyzerFixture("inspections/a.jpg")
	model.err = errors.New("model server down")

	analyzer := NewAnalyzer(store, fetcher, model, testLogger())
	err := analyzer.Analyze(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, store.detections)
}

func TestMissingComponentsAllSeen(t *testing.T) {
	results := []ImageResult{{Key: "k", Detections: []Detection{
		{ClassName: ClassShell}, {ClassName: ClassHose}, {ClassName: ClassNozzle},
		{ClassName: ClassPressureGauge}, {ClassName: ClassSafetyPin},
		{ClassName: ClassPinSeal}, {ClassName: ClassServiceTag},
	}}}
	assert.Empty(t, missingComponents(results))
}
