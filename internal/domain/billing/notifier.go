package billing

import (
	"context"

	"github.com/wasteline/backend/internal/domain/shared"
)

// Notifier delivers billing events to clients outside the core (email, SMS, webhooks).
// Delivery is best-effort; a failure never changes ledger state.
type Notifier interface {
	Notify(ctx context.Context, event shared.DomainEvent) error
}
