package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/shared"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	OrganizationID *uuid.UUID     // Filter by organization
	ClientID       *uuid.UUID     // Filter by client
	Status         *InvoiceStatus // Filter by payment status
	Type           *InvoiceType   // Filter by invoice type
	DueBefore      *time.Time     // Filter by due date upper bound
}

// PaymentFilter defines filtering options for payment queries
type PaymentFilter struct {
	shared.Filter
	OrganizationID *uuid.UUID     // Filter by organization
	ClientID       *uuid.UUID     // Filter by client
	Status         *PaymentStatus // Filter by allocation status
	Method         *PaymentMethod // Filter by payment method
}

// ContractRepository is the read side of the contract store plus the organization's upsert
type ContractRepository interface {
	// FindByClient finds the contract of one client
	FindByClient(ctx context.Context, organizationID, clientID uuid.UUID) (*Contract, error)

	// FindBillable lists contracts with a positive rate and a service start date
	FindBillable(ctx context.Context) ([]*Contract, error)

	// Save creates or replaces a client's contract terms
	Save(ctx context.Context, contract *Contract) error
}

// InvoiceRepository defines the interface for invoice ledger persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindMonthlyForPeriod finds the monthly invoice whose created_at falls in the given YYYY-MM
	FindMonthlyForPeriod(ctx context.Context, organizationID, clientID uuid.UUID, billingMonth string) (*Invoice, error)

	// FindOpenByClient finds unpaid and partially paid invoices, oldest created first
	FindOpenByClient(ctx context.Context, organizationID, clientID uuid.UUID) ([]*Invoice, error)

	// FindOpen finds all unpaid and partially paid invoices, optionally for one organization
	FindOpen(ctx context.Context, organizationID *uuid.UUID) ([]*Invoice, error)

	// FindAll lists invoices with filtering and pagination
	FindAll(ctx context.Context, filter InvoiceFilter) ([]*Invoice, int64, error)

	// ExistsByNumber checks whether an invoice number is taken
	ExistsByNumber(ctx context.Context, invoiceNumber string) (bool, error)

	// SumOutstandingByClient sums amount - paid_amount over a client's open invoices
	SumOutstandingByClient(ctx context.Context, organizationID, clientID uuid.UUID) (decimal.Decimal, error)

	// Create inserts a new invoice
	Create(ctx context.Context, invoice *Invoice) error

	// SaveWithLock updates allocation state with optimistic locking (version check)
	SaveWithLock(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository defines the interface for payment ledger persistence
type PaymentRepository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByTransID finds a payment by its transaction reference
	FindByTransID(ctx context.Context, transID string) (*Payment, error)

	// FindWithCreditByClient finds payments with remaining credit, oldest created first
	FindWithCreditByClient(ctx context.Context, organizationID, clientID uuid.UUID) ([]*Payment, error)

	// FindAll lists payments with filtering and pagination
	FindAll(ctx context.Context, filter PaymentFilter) ([]*Payment, int64, error)

	// SumCreditByClient sums remaining_amount over a client's payments
	SumCreditByClient(ctx context.Context, organizationID, clientID uuid.UUID) (decimal.Decimal, error)

	// Create inserts a new payment
	Create(ctx context.Context, payment *Payment) error

	// SaveWithLock updates allocation state with optimistic locking (version check)
	SaveWithLock(ctx context.Context, payment *Payment) error
}

// ClientLedgerLocker serializes allocation for one client's ledger.
// The lock is held until the surrounding transaction ends.
type ClientLedgerLocker interface {
	LockClient(ctx context.Context, organizationID, clientID uuid.UUID) error
}
