// Package notification delivers billing events to clients. The log driver
// writes them to the application log; the webhook driver POSTs them to a
// configured endpoint that fans out to email or SMS.
package notification

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/infrastructure/config"
)

// Driver names accepted in configuration
const (
	DriverLog     = "log"
	DriverWebhook = "webhook"
)

// New builds the notifier selected by cfg.Driver
func New(cfg config.NotificationConfig, logger *zap.Logger) (billing.Notifier, error) {
	switch cfg.Driver {
	case DriverLog, "":
		return NewLogNotifier(logger), nil
	case DriverWebhook:
		return NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
}
