package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/billing"
)

// ContractModel is the persistence model for a client's billing terms.
// One row per (organization, client).
type ContractModel struct {
	OrganizationID   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MonthlyRate      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	ServiceStartDate *time.Time
	GracePeriodDays  int    `gorm:"not null;default:5"`
	PickupDay        string `gorm:"type:varchar(20)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ContractModel) TableName() string {
	return "billing_contracts"
}

// ToDomain converts the persistence model to a domain Contract
func (m *ContractModel) ToDomain() *billing.Contract {
	return &billing.Contract{
		ClientID:         m.ClientID,
		OrganizationID:   m.OrganizationID,
		MonthlyRate:      m.MonthlyRate,
		ServiceStartDate: m.ServiceStartDate,
		GracePeriodDays:  m.GracePeriodDays,
		PickupDay:        m.PickupDay,
		UpdatedAt:        m.UpdatedAt,
	}
}

// ContractModelFromDomain creates a persistence model from a domain Contract
func ContractModelFromDomain(c *billing.Contract) *ContractModel {
	return &ContractModel{
		OrganizationID:   c.OrganizationID,
		ClientID:         c.ClientID,
		MonthlyRate:      c.MonthlyRate,
		ServiceStartDate: c.ServiceStartDate,
		GracePeriodDays:  c.GracePeriodDays,
		PickupDay:        c.PickupDay,
		CreatedAt:        c.UpdatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// InvoiceModel is the persistence model for the Invoice aggregate root.
// BillingMonth is NULL for custom invoices so the per-month unique index only
// constrains monthly ones. The aggregate columns are spelled out rather than
// embedded because organization_id leads that index.
type InvoiceModel struct {
	ID             uuid.UUID             `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID             `gorm:"type:uuid;not null;index;uniqueIndex:uq_billing_invoices_billing_month,priority:1"`
	CreatedAt      time.Time             `gorm:"not null;index"`
	UpdatedAt      time.Time             `gorm:"not null"`
	Version        int                   `gorm:"not null;default:1"`
	InvoiceNumber  string                `gorm:"type:varchar(20);not null;uniqueIndex:uq_billing_invoices_invoice_number"`
	Type           billing.InvoiceType   `gorm:"type:varchar(20);not null"`
	ClientID       uuid.UUID             `gorm:"type:uuid;not null;index;uniqueIndex:uq_billing_invoices_billing_month,priority:2"`
	Title          string                `gorm:"type:varchar(200);not null"`
	Description    string                `gorm:"type:text"`
	Amount         decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	DueDate        time.Time             `gorm:"not null;index"`
	PaidAmount     decimal.Decimal       `gorm:"type:decimal(18,2);not null;default:0"`
	PaymentStatus  billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'unpaid';index"`
	PaymentIDs     billing.IDList        `gorm:"type:jsonb;not null;default:'[]'"`
	BillingMonth   *string               `gorm:"type:varchar(7);uniqueIndex:uq_billing_invoices_billing_month,priority:3"`
	PeriodStart    *time.Time
}

func (m *InvoiceModel) aggregate() AggregateModel {
	return AggregateModel{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		Version:        m.Version,
	}
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "billing_invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	agg := m.aggregate()
	inv := &billing.Invoice{
		OrganizationAggregateRoot: agg.ToDomainAggregateRoot(),
		InvoiceNumber:             m.InvoiceNumber,
		Type:                      m.Type,
		ClientID:                  m.ClientID,
		Title:                     m.Title,
		Description:               m.Description,
		Amount:                    m.Amount,
		DueDate:                   m.DueDate,
		PaidAmount:                m.PaidAmount,
		PaymentStatus:             m.PaymentStatus,
		PaymentIDs:                m.PaymentIDs,
		PeriodStart:               m.PeriodStart,
	}
	if m.BillingMonth != nil {
		inv.BillingMonth = *m.BillingMonth
	}
	if inv.PaymentIDs == nil {
		inv.PaymentIDs = billing.IDList{}
	}
	return inv
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		InvoiceNumber: inv.InvoiceNumber,
		Type:          inv.Type,
		ClientID:      inv.ClientID,
		Title:         inv.Title,
		Description:   inv.Description,
		Amount:        inv.Amount,
		DueDate:       inv.DueDate,
		PaidAmount:    inv.PaidAmount,
		PaymentStatus: inv.PaymentStatus,
		PaymentIDs:    inv.PaymentIDs,
		PeriodStart:   inv.PeriodStart,
	}
	var agg AggregateModel
	agg.FromDomainAggregateRoot(inv.OrganizationAggregateRoot)
	m.ID, m.OrganizationID = agg.ID, agg.OrganizationID
	m.CreatedAt, m.UpdatedAt, m.Version = agg.CreatedAt, agg.UpdatedAt, agg.Version
	if inv.BillingMonth != "" {
		month := inv.BillingMonth
		m.BillingMonth = &month
	}
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root
type PaymentModel struct {
	AggregateModel
	TransID           string                `gorm:"type:varchar(100);not null;uniqueIndex:uq_billing_payments_trans_id"`
	Method            billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	ClientID          uuid.UUID             `gorm:"type:uuid;not null;index"`
	AccountReference  string                `gorm:"type:varchar(100)"`
	PayerName         string                `gorm:"type:varchar(200)"`
	Amount            decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	AllocatedAmount   decimal.Decimal       `gorm:"type:decimal(18,2);not null;default:0"`
	RemainingAmount   decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Status            billing.PaymentStatus `gorm:"type:varchar(30);not null;default:'not_allocated';index"`
	InvoicesProcessed billing.IDList        `gorm:"type:jsonb;not null;default:'[]'"`
	TransTime         time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "billing_payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	p := &billing.Payment{
		OrganizationAggregateRoot: m.ToDomainAggregateRoot(),
		TransID:                   m.TransID,
		Method:                    m.Method,
		ClientID:                  m.ClientID,
		AccountReference:          m.AccountReference,
		PayerName:                 m.PayerName,
		Amount:                    m.Amount,
		AllocatedAmount:           m.AllocatedAmount,
		RemainingAmount:           m.RemainingAmount,
		Status:                    m.Status,
		InvoicesProcessed:         m.InvoicesProcessed,
		TransTime:                 m.TransTime,
	}
	if p.InvoicesProcessed == nil {
		p.InvoicesProcessed = billing.IDList{}
	}
	return p
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{
		TransID:           p.TransID,
		Method:            p.Method,
		ClientID:          p.ClientID,
		AccountReference:  p.AccountReference,
		PayerName:         p.PayerName,
		Amount:            p.Amount,
		AllocatedAmount:   p.AllocatedAmount,
		RemainingAmount:   p.RemainingAmount,
		Status:            p.Status,
		InvoicesProcessed: p.InvoicesProcessed,
		TransTime:         p.TransTime,
	}
	m.FromDomainAggregateRoot(p.OrganizationAggregateRoot)
	return m
}

// ClientLockModel is the row locked FOR UPDATE to serialize allocation per client
type ClientLockModel struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	LockedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ClientLockModel) TableName() string {
	return "billing_client_locks"
}

// AllModels lists the billing models in dependency order, for AutoMigrate in tests
func AllModels() []any {
	return []any{
		&ContractModel{},
		&InvoiceModel{},
		&PaymentModel{},
		&ClientLockModel{},
	}
}
