// Package cache holds the short-lived coordination state of the billing
// engine: the invoice generator's run-lock and the overdue-notice
// deduplication keys. Redis backs it in multi-instance deployments; a
// process-local store serves single instances and tests.
package cache

import (
	"github.com/wasteline/backend/internal/domain/shared"
)

// Store is an idempotency store that can also hand out run-locks
type Store interface {
	shared.IdempotencyStore
	shared.RunLocker
}
