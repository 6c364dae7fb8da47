package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/infrastructure/persistence/models"
)

// GormContractRepository implements billing.ContractRepository using GORM
type GormContractRepository struct {
	db *gorm.DB
}

// NewGormContractRepository creates a new GormContractRepository
func NewGormContractRepository(db *gorm.DB) *GormContractRepository {
	return &GormContractRepository{db: db}
}

// FindByClient finds the contract of one client
func (r *GormContractRepository) FindByClient(ctx context.Context, organizationID, clientID uuid.UUID) (*billing.Contract, error) {
	var model models.ContractModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND client_id = ?", organizationID, clientID).
		First(&model).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindBillable lists contracts with a positive rate and a service start date
func (r *GormContractRepository) FindBillable(ctx context.Context) ([]*billing.Contract, error) {
	var rows []models.ContractModel
	err := r.db.WithContext(ctx).
		Where("monthly_rate > 0 AND service_start_date IS NOT NULL").
		Order("service_start_date ASC, client_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	contracts := make([]*billing.Contract, len(rows))
	for i := range rows {
		contracts[i] = rows[i].ToDomain()
	}
	return contracts, nil
}

// Save creates or replaces a client's contract terms
func (r *GormContractRepository) Save(ctx context.Context, contract *billing.Contract) error {
	model := models.ContractModelFromDomain(contract)
	return translateError(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "client_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"monthly_rate", "service_start_date", "grace_period_days", "pickup_day", "updated_at",
			}),
		}).
		Create(model).Error)
}

var _ billing.ContractRepository = (*GormContractRepository)(nil)
