package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	maxErrorBody          = 512
)

// WebhookEnvelope is the JSON body POSTed for every event
type WebhookEnvelope struct {
	EventID        string             `json:"event_id"`
	EventType      string             `json:"event_type"`
	OccurredAt     time.Time          `json:"occurred_at"`
	OrganizationID string             `json:"organization_id"`
	AggregateID    string             `json:"aggregate_id"`
	AggregateType  string             `json:"aggregate_type"`
	Data           shared.DomainEvent `json:"data"`
}

// WebhookNotifier POSTs events to an HTTP endpoint. Any non-2xx answer is a failed delivery.
type WebhookNotifier struct {
	endpoint   string
	httpClient *http.Client
}

// NewWebhookNotifier validates endpoint and creates a notifier with the given client timeout
func NewWebhookNotifier(endpoint string, timeout time.Duration) (*WebhookNotifier, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", endpoint)
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Notify sends one event
func (n *WebhookNotifier) Notify(ctx context.Context, event shared.DomainEvent) error {
	body, err := json.Marshal(WebhookEnvelope{
		EventID:        event.EventID().String(),
		EventType:      event.EventType(),
		OccurredAt:     event.OccurredAt().UTC(),
		OrganizationID: event.OrganizationID().String(),
		AggregateID:    event.AggregateID().String(),
		AggregateType:  event.AggregateType(),
		Data:           event,
	})
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", event.EventType(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", event.EventType())
	req.Header.Set("X-Event-ID", event.EventID().String())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s: %w", event.EventType(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// DeliveryError is returned when the endpoint answers with a non-2xx status
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook: endpoint returned %d: %s", e.StatusCode, e.Body)
}

// IsDeliveryError reports whether err carries an HTTP status from the endpoint
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

var _ billing.Notifier = (*WebhookNotifier)(nil)
