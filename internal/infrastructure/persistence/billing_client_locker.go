package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/infrastructure/persistence/models"
)

// GormClientLocker serializes allocation per client with a row lock on
// billing_client_locks. It must run inside a transaction: the lock is released
// on commit or rollback.
type GormClientLocker struct {
	db *gorm.DB
}

// NewGormClientLocker creates a locker bound to the given transaction
func NewGormClientLocker(tx *gorm.DB) *GormClientLocker {
	return &GormClientLocker{db: tx}
}

// LockClient ensures the client's lock row exists, then locks it FOR UPDATE.
// A second allocation for the same client blocks here until the first commits.
func (l *GormClientLocker) LockClient(ctx context.Context, organizationID, clientID uuid.UUID) error {
	db := l.db.WithContext(ctx)

	row := models.ClientLockModel{
		OrganizationID: organizationID,
		ClientID:       clientID,
		LockedAt:       time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return translateError(err)
	}

	var locked models.ClientLockModel
	err := db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("organization_id = ? AND client_id = ?", organizationID, clientID).
		First(&locked).Error
	return translateError(err)
}

var _ billing.ClientLedgerLocker = (*GormClientLocker)(nil)
