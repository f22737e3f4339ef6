// Package notify delivers outbound messages to customers and lifecycle/budget
// alerts to merchant operators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

// Sender delivers one bot response to the customer on their channel.
type Sender interface {
	Send(ctx context.Context, conversationID, channel, recipientID string, resp *models.Response) error
}

// outboundEnvelope is the wire format posted to channel webhooks.
type outboundEnvelope struct {
	ConversationID string      `json:"conversationId"`
	Channel        string      `json:"channel"`
	RecipientID    string      `json:"recipientId"`
	Text           string      `json:"text"`
	Payload        interface{} `json:"payload,omitempty"`
	SentAt         time.Time   `json:"sentAt"`
}

// WebhookSender posts responses to per-channel webhook endpoints. Channels
// without a configured endpoint fall back to the default endpoint.
type WebhookSender struct {
	endpoints  map[string]string
	defaultURL string
	client     *http.Client
	logger     logger.Logger
}

func NewWebhookSender(endpoints map[string]string, defaultURL string, timeout time.Duration, log logger.Logger) *WebhookSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		endpoints:  endpoints,
		defaultURL: defaultURL,
		client:     &http.Client{Timeout: timeout},
		logger:     log.WithFields(map[string]interface{}{"component": "webhook-sender"}),
	}
}

func (s *WebhookSender) Send(ctx context.Context, conversationID, channel, recipientID string, resp *models.Response) error {
	url := s.endpoints[channel]
	if url == "" {
		url = s.defaultURL
	}
	if url == "" {
		return errors.NewSendFailureError(conversationID, fmt.Errorf("no endpoint for channel %q", channel))
	}

	body, err := json.Marshal(outboundEnvelope{
		ConversationID: conversationID,
		Channel:        channel,
		RecipientID:    recipientID,
		Text:           resp.Text,
		Payload:        resp.Payload,
		SentAt:         time.Now().UTC(),
	})
	if err != nil {
		return errors.NewSendFailureError(conversationID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.NewSendFailureError(conversationID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(req)
	if err != nil {
		return errors.NewSendFailureError(conversationID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return errors.NewSendFailureError(conversationID, fmt.Errorf("status %d: %s", httpResp.StatusCode, payload))
	}
	return nil
}
