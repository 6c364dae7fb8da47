package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
)

const defaultNotificationTimeout = 5 * time.Second

// NotificationHandler forwards billing events to the Notifier after the ledger
// transaction has committed. Failures are logged and counted; they never reach
// the request that produced the event.
type NotificationHandler struct {
	notifier billing.Notifier
	timeout  time.Duration
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifier billing.Notifier, timeout time.Duration, metrics MetricsRecorder, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	return &NotificationHandler{
		notifier: notifier,
		timeout:  timeout,
		metrics:  metricsOrNoop(metrics),
		logger:   logger,
	}
}

// EventTypes returns the event types this handler delivers
func (h *NotificationHandler) EventTypes() []string {
	return []string{
		billing.EventTypeInvoiceCreated,
		billing.EventTypeInvoiceOverdue,
		billing.EventTypePaymentReceived,
		billing.EventTypePaymentApplied,
	}
}

// Handle delivers one event within the configured timeout
func (h *NotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := h.notifier.Notify(ctx, event)
	h.metrics.RecordNotification(ctx, event.EventType(), err)
	if err != nil {
		h.logger.Warn("Notification delivery failed",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.String("aggregate_id", event.AggregateID().String()),
			zap.Duration("timeout", h.timeout),
			zap.Error(err))
		return fmt.Errorf("%w: %v", shared.ErrNotificationFailed, err)
	}
	return nil
}

var _ shared.EventHandler = (*NotificationHandler)(nil)
