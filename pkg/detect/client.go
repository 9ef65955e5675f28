package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Component class names the model can report.
const (
	ClassShell         = "shell"
	ClassHose          = "hose"
	ClassNozzle        = "nozzle"
	ClassPressureGauge = "pressure_gauge"
	ClassSafetyPin     = "safety_pin"
	ClassPinSeal       = "pin_seal"
	ClassServiceTag    = "service_tag"
)

// KnownClasses lists every component class in model output order.
var KnownClasses = []string{
	ClassShell,
	ClassHose,
	ClassNozzle,
	ClassPressureGauge,
	ClassSafetyPin,
	ClassPinSeal,
	ClassServiceTag,
}

// DefaultMinConfidence is the score floor passed to the model server.
const DefaultMinConfidence = 0.5

// Image is one photo sent for analysis, identified by its object key.
type Image struct {
	Key         string
	ContentType string
	Data        []byte
}

// Detection is one detected component in one image.
type Detection struct {
	ClassName  string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// ImageResult holds the detections for one submitted image.
type ImageResult struct {
	Key        string      `json:"key"`
	Detections []Detection `json:"detections"`
}

// Client talks to the YOLO model server.
type Client struct {
	baseURL       string
	minConfidence float64
	client        *http.Client
}

// NewClient creates a model-server client. minConfidence <= 0 selects
// DefaultMinConfidence; timeout <= 0 selects 30s.
func NewClient(baseURL string, minConfidence float64, timeout time.Duration) *Client {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		minConfidence: minConfidence,
		client:        &http.Client{Timeout: timeout},
	}
}

// Wire types of the model server.
type detectRequest struct {
	Images        []wireImage `json:"images"`
	MinConfidence float64     `json:"minConfidence"`
}

type wireImage struct {
	StepID    string `json:"stepId"`
	DataURL   string `json:"dataUrl"`
	Timestamp int64  `json:"timestamp"`
}

type detectResponse struct {
	Success bool         `json:"success"`
	Results []wireResult `json:"results"`
	Error   string       `json:"error"`
}

type wireResult struct {
	StepID     string      `json:"stepId"`
	Detections []Detection `json:"detections"`
}

// Detect runs the model over the given images and returns per-image
// detections keyed the same way the images were.
func (c *Client) Detect(ctx context.Context, images []Image) ([]ImageResult, error) {
	if len(images) == 0 {
		return nil, nil
	}

	req := detectRequest{MinConfidence: c.minConfidence}
	now := time.Now().UnixMilli()
	for _, img := range images {
		contentType := img.ContentType
		if contentType == "" {
			contentType = "image/jpeg"
		}
		req.Images = append(req.Images, wireImage{
			StepID:    img.Key,
			DataURL:   fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(img.Data)),
			Timestamp: now,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detection request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build detection request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("model server rejected detection request: %s", decoded.Error)
	}

	results := make([]ImageResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		detections := r.Detections
		if detections == nil {
			detections = []Detection{}
		}
		results = append(results, ImageResult{Key: r.StepID, Detections: detections})
	}
	return results, nil
}
