package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Model runs component detection over a batch of images.
type Model interface {
	Detect(ctx context.Context, images []Image) ([]ImageResult, error)
}

// ImageFetcher loads a stored inspection photo by object key.
type ImageFetcher interface {
	GetImage(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Analyzer fetches an inspection's photos, runs the model over them and
// persists the result on the inspection row.
type Analyzer struct {
	store  storage.Store
	images ImageFetcher
	model  Model
	logger *observability.Logger
	now    func() time.Time
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(store storage.Store, images ImageFetcher, model Model, logger *observability.Logger) *Analyzer {
	return &Analyzer{
		store:  store,
		images: images,
		model:  model,
		logger: logger,
		now:    time.Now,
	}
}

// analysis is the document persisted in the detections column.
type analysis struct {
	AnalyzedAt        time.Time     `json:"analyzed_at"`
	Results           []ImageResult `json:"results"`
	MissingComponents []string      `json:"missing_components"`
}

// Analyze runs detection for one inspection. Photos that cannot be
// loaded are skipped; the run fails only when no photo could be
// analyzed or the model call itself fails.
func (a *Analyzer) Analyze(ctx context.Context, inspectionID int64) error {
	insp, err := a.store.GetInspection(ctx, inspectionID)
	if err != nil {
		return fmt.Errorf("failed to load inspection %d for detection: %w", inspectionID, err)
	}
	if len(insp.ImageKeys) == 0 {
		return nil
	}

	var images []Image
	for _, key := range insp.ImageKeys {
		body, contentType, err := a.images.GetImage(ctx, key)
		if err != nil {
			a.logger.WithError(err).
				WithField("inspection_id", inspectionID).
				WithField("image_key", key).
				Warn("skipping unreadable inspection photo")
			continue
		}
		data, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			a.logger.WithError(err).
				WithField("inspection_id", inspectionID).
				WithField("image_key", key).
				Warn("skipping unreadable inspection photo")
			continue
		}
		images = append(images, Image{Key: key, ContentType: contentType, Data: data})
	}
	if len(images) == 0 {
		return fmt.Errorf("no readable photos on inspection %d", inspectionID)
	}

	results, err := a.model.Detect(ctx, images)
	if err != nil {
		return fmt.Errorf("failed to analyze inspection %d: %w", inspectionID, err)
	}

	doc, err := json.Marshal(analysis{
		AnalyzedAt:        a.now().UTC(),
		Results:           results,
		MissingComponents: missingComponents(results),
	})
	if err != nil {
		return fmt.Errorf("failed to encode analysis for inspection %d: %w", inspectionID, err)
	}
	if err := a.store.SetDetections(ctx, inspectionID, doc); err != nil {
		return fmt.Errorf("failed to persist detections for inspection %d: %w", inspectionID, err)
	}

	a.logger.WithField("inspection_id", inspectionID).
		WithField("images", len(images)).
		Info("inspection photos analyzed")
	return nil
}

// missingComponents returns the component classes not seen in any image.
func missingComponents(results []ImageResult) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		for _, d := range r.Detections {
			seen[d.ClassName] = true
		}
	}
	missing := []string{}
	for _, class := range KnownClasses {
		if !seen[class] {
			missing = append(missing, class)
		}
	}
	return missing
}
