package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/persistence/models"
)

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindMonthlyForPeriod finds the monthly invoice created in the given YYYY-MM
func (r *GormInvoiceRepository) FindMonthlyForPeriod(ctx context.Context, organizationID, clientID uuid.UUID, billingMonth string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND client_id = ? AND type = ? AND billing_month = ?",
			organizationID, clientID, billing.InvoiceTypeMonthly, billingMonth).
		First(&model).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindOpenByClient finds unpaid and partially paid invoices, oldest created first
func (r *GormInvoiceRepository) FindOpenByClient(ctx context.Context, organizationID, clientID uuid.UUID) ([]*billing.Invoice, error) {
	return r.findOpen(ctx, r.db.WithContext(ctx).
		Where("organization_id = ? AND client_id = ?", organizationID, clientID))
}

// FindOpen finds all open invoices, optionally for one organization
func (r *GormInvoiceRepository) FindOpen(ctx context.Context, organizationID *uuid.UUID) ([]*billing.Invoice, error) {
	query := r.db.WithContext(ctx)
	if organizationID != nil {
		query = query.Where("organization_id = ?", *organizationID)
	}
	return r.findOpen(ctx, query)
}

func (r *GormInvoiceRepository) findOpen(_ context.Context, query *gorm.DB) ([]*billing.Invoice, error) {
	var rows []models.InvoiceModel
	err := query.
		Where("payment_status IN ?", billing.OpenInvoiceStatuses()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	return invoicesToDomain(rows), nil
}

// FindAll lists invoices with filtering and pagination
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]*billing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})

	if filter.OrganizationID != nil {
		query = query.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != nil {
		query = query.Where("payment_status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", *filter.DueBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	query = query.Order(orderClause(filter.OrderBy, filter.OrderDir, InvoiceSortFields))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var rows []models.InvoiceModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, translateError(err)
	}
	return invoicesToDomain(rows), total, nil
}

// ExistsByNumber checks whether an invoice number is taken
func (r *GormInvoiceRepository) ExistsByNumber(ctx context.Context, invoiceNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("invoice_number = ?", invoiceNumber).
		Count(&count).Error
	if err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

// SumOutstandingByClient sums amount - paid_amount over a client's open invoices
func (r *GormInvoiceRepository) SumOutstandingByClient(ctx context.Context, organizationID, clientID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Select("SUM(amount - paid_amount)").
		Where("organization_id = ? AND client_id = ? AND payment_status IN ?",
			organizationID, clientID, billing.OpenInvoiceStatuses()).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, translateError(err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal.Round(2), nil
}

// Create inserts a new invoice. Unique violations map to ErrInvoiceNumberTaken
// or ErrPeriodAlreadyBilled depending on the violated index.
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	err := r.db.WithContext(ctx).Create(model).Error
	if err == nil {
		return nil
	}
	if constraint, ok := uniqueViolation(err); ok {
		switch {
		case strings.Contains(constraint, "invoice_number"):
			return billing.ErrInvoiceNumberTaken
		case strings.Contains(constraint, "billing_month"):
			return billing.ErrPeriodAlreadyBilled
		default:
			return fmt.Errorf("%w: %v", shared.ErrAlreadyExists, err)
		}
	}
	return translateError(err)
}

// SaveWithLock updates allocation state. The row must still carry Version-1;
// otherwise another writer got there first.
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
		Updates(map[string]any{
			"paid_amount":    invoice.PaidAmount,
			"payment_status": invoice.PaymentStatus,
			"payment_ids":    invoice.PaymentIDs,
			"version":        invoice.Version,
			"updated_at":     invoice.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func invoicesToDomain(rows []models.InvoiceModel) []*billing.Invoice {
	out := make([]*billing.Invoice, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
