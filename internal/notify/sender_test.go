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

	commonerrors "commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

func TestWebhookSenderDelivers(t *testing.T) {
	var got outboundEnvelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewWebhookSender(map[string]string{"whatsapp": server.URL}, "", time.Second, logger.NewNoOpLogger())

	err := s.Send(context.Background(), "c-1", "whatsapp", "cust-1", &models.Response{Text: "here are your options"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ConversationID)
	assert.Equal(t, "whatsapp", got.Channel)
	assert.Equal(t, "cust-1", got.RecipientID)
	assert.Equal(t, "here are your options", got.Text)
}

func TestWebhookSenderFallsBackToDefault(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer server.Close()

	s := NewWebhookSender(nil, server.URL, time.Second, logger.NewNoOpLogger())

	err := s.Send(context.Background(), "c-1", "web", "cust-1", &models.Response{Text: "hi"})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestWebhookSenderNoEndpoint(t *testing.T) {
	s := NewWebhookSender(nil, "", time.Second, logger.NewNoOpLogger())

	err := s.Send(context.Background(), "c-1", "web", "cust-1", &models.Response{Text: "hi"})
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeSendFailure))
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel disconnected", http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewWebhookSender(map[string]string{"web": server.URL}, "", time.Second, logger.NewNoOpLogger())

	err := s.Send(context.Background(), "c-1", "web", "cust-1", &models.Response{Text: "hi"})
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeSendFailure))
}
