package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

func TestWebhookProviderSend(t *testing.T) {
	var got webhookDispatch
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	provider := NewWebhookProvider(server.URL, 5*time.Second)
	sub := &storage.PushSubscription{Endpoint: "https://push/device", Auth: "a", P256DH: "p"}
	payload := payloadFor(EventAssigned, "Assigned", "body", nil)

	require.NoError(t, provider.Send(context.Background(), sub, payload))
	assert.Equal(t, "https://push/device", got.Endpoint)
	assert.Equal(t, "inspection_assigned", got.Payload.EventType)
	assert.True(t, got.Payload.RequireInteraction)
}

func TestWebhookProviderGoneStatuses(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		provider := NewWebhookProvider(server.URL, 5*time.Second)

		err := provider.Send(context.Background(), &storage.PushSubscription{}, &Payload{})
		assert.ErrorIs(t, err, ErrSubscriptionGone, "status %d", status)
		server.Close()
	}
}

func TestWebhookProviderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	provider := NewWebhookProvider(server.URL, 5*time.Second)

	err := provider.Send(context.Background(), &storage.PushSubscription{}, &Payload{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubscriptionGone)
}
