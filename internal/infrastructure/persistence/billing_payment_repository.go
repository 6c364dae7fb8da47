package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/persistence/models"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByTransID finds a payment by its transaction reference
func (r *GormPaymentRepository) FindByTransID(ctx context.Context, transID string) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "trans_id = ?", transID).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindWithCreditByClient finds payments with remaining credit, oldest created first
func (r *GormPaymentRepository) FindWithCreditByClient(ctx context.Context, organizationID, clientID uuid.UUID) ([]*billing.Payment, error) {
	var rows []models.PaymentModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND client_id = ? AND status IN ? AND remaining_amount > 0",
			organizationID, clientID, billing.OpenPaymentStatuses()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	return paymentsToDomain(rows), nil
}

// FindAll lists payments with filtering and pagination
func (r *GormPaymentRepository) FindAll(ctx context.Context, filter billing.PaymentFilter) ([]*billing.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{})

	if filter.OrganizationID != nil {
		query = query.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Method != nil {
		query = query.Where("method = ?", *filter.Method)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	query = query.Order(orderClause(filter.OrderBy, filter.OrderDir, PaymentSortFields))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var rows []models.PaymentModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, translateError(err)
	}
	return paymentsToDomain(rows), total, nil
}

// SumCreditByClient sums remaining_amount over a client's payments
func (r *GormPaymentRepository) SumCreditByClient(ctx context.Context, organizationID, clientID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Select("SUM(remaining_amount)").
		Where("organization_id = ? AND client_id = ?", organizationID, clientID).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, translateError(err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal.Round(2), nil
}

// Create inserts a new payment. A repeated trans_id yields ErrDuplicateTransID.
func (r *GormPaymentRepository) Create(ctx context.Context, payment *billing.Payment) error {
	err := r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error
	if err == nil {
		return nil
	}
	if constraint, ok := uniqueViolation(err); ok && (constraint == "" || strings.Contains(constraint, "trans_id")) {
		return billing.ErrDuplicateTransID
	}
	return translateError(err)
}

// SaveWithLock updates allocation state with optimistic locking (version check)
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, payment *billing.Payment) error {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", payment.ID, payment.Version-1).
		Updates(map[string]any{
			"allocated_amount":   payment.AllocatedAmount,
			"remaining_amount":   payment.RemainingAmount,
			"status":             payment.Status,
			"invoices_processed": payment.InvoicesProcessed,
			"version":            payment.Version,
			"updated_at":         payment.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func paymentsToDomain(rows []models.PaymentModel) []*billing.Payment {
	out := make([]*billing.Payment, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
