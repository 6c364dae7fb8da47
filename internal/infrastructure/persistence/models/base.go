package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wasteline/backend/internal/domain/shared"
)

// AggregateModel provides the persistence fields shared by ledger aggregates:
// identity, timestamps and the version used for optimistic locking.
type AggregateModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt      time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
	Version        int       `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from a domain aggregate root
func (m *AggregateModel) FromDomainAggregateRoot(a shared.OrganizationAggregateRoot) {
	m.ID = a.ID
	m.OrganizationID = a.OrganizationID
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}

// ToDomainAggregateRoot rebuilds the domain aggregate root
func (m *AggregateModel) ToDomainAggregateRoot() shared.OrganizationAggregateRoot {
	return shared.OrganizationAggregateRoot{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		OrganizationID: m.OrganizationID,
	}
}
