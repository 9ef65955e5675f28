package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// ErrSubscriptionGone marks a permanent endpoint failure (404 or 410 from
// the push gateway). The dispatcher deactivates the subscription.
var ErrSubscriptionGone = errors.New("push subscription endpoint is gone")

// Provider delivers one payload to one device subscription.
type Provider interface {
	Send(ctx context.Context, sub *storage.PushSubscription, payload *Payload) error
}

// WebhookProvider posts dispatches to a push gateway that handles the
// Web Push protocol details.
type WebhookProvider struct {
	url    string
	client *http.Client
}

// NewWebhookProvider creates a webhook push provider.
func NewWebhookProvider(url string, timeout time.Duration) *WebhookProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookDispatch struct {
	Endpoint string   `json:"endpoint"`
	Auth     string   `json:"auth"`
	P256DH   string   `json:"p256dh"`
	Payload  *Payload `json:"payload"`
}

// Send posts the subscription and payload to the gateway. Gateway 404/410
// responses are reported as ErrSubscriptionGone.
func (p *WebhookProvider) Send(ctx context.Context, sub *storage.PushSubscription, payload *Payload) error {
	body, err := json.Marshal(webhookDispatch{
		Endpoint: sub.Endpoint,
		Auth:     sub.Auth,
		P256DH:   sub.P256DH,
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode dispatch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver dispatch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// LogProvider writes dispatches to the log. The default in development.
type LogProvider struct {
	logger *observability.Logger
}

// NewLogProvider creates a logging push provider.
func NewLogProvider(logger *observability.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

// Send logs the dispatch and succeeds.
func (p *LogProvider) Send(_ context.Context, sub *storage.PushSubscription, payload *Payload) error {
	p.logger.WithField("endpoint", sub.Endpoint).
		WithField("event_type", payload.EventType).
		WithField("title", payload.Title).
		Info("push dispatch")
	return nil
}

// NoopProvider drops every dispatch.
type NoopProvider struct{}

// Send discards the dispatch.
func (NoopProvider) Send(context.Context, *storage.PushSubscription, *Payload) error {
	return nil
}
