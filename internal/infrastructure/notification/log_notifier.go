package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/logger"
)

// LogNotifier writes every event as a structured log line
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(base *zap.Logger) *LogNotifier {
	if base == nil {
		base = zap.NewNop()
	}
	return &LogNotifier{logger: base.Named("notification")}
}

// Notify logs the event and its payload
func (n *LogNotifier) Notify(ctx context.Context, event shared.DomainEvent) error {
	logger.For(ctx, n.logger).Info("Billing notification",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("organization_id", event.OrganizationID().String()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
		zap.Any("payload", event),
	)
	return nil
}

var _ billing.Notifier = (*LogNotifier)(nil)
