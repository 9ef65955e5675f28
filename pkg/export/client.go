package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Uploader stores one rendered document in the document library.
type Uploader interface {
	Upload(ctx context.Context, filename string, content []byte) error
}

// SharePointClient uploads documents through the Graph drive API.
type SharePointClient struct {
	baseURL     string
	driveID     string
	folderPath  string
	accessToken string
	client      *http.Client
}

// NewSharePointClient creates a Graph drive uploader.
func NewSharePointClient(baseURL, driveID, folderPath, accessToken string, timeout time.Duration) *SharePointClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SharePointClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		driveID:     driveID,
		folderPath:  strings.Trim(folderPath, "/"),
		accessToken: accessToken,
		client:      &http.Client{Timeout: timeout},
	}
}

// Upload PUTs the document content to the drive folder.
func (c *SharePointClient) Upload(ctx context.Context, filename string, content []byte) error {
	uploadURL := fmt.Sprintf("%s/drives/%s/root:/%s/%s:/content",
		c.baseURL, url.PathEscape(c.driveID), c.folderPath, url.PathEscape(filename))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("drive upload of %s returned status %d: %s", filename, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
