package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/domain/shared/valueobject"
)

// InvoiceType distinguishes generated monthly invoices from ad-hoc ones
type InvoiceType string

const (
	InvoiceTypeMonthly InvoiceType = "monthly"
	InvoiceTypeCustom  InvoiceType = "custom"
)

// IsValid checks if the invoice type is valid
func (t InvoiceType) IsValid() bool {
	return t == InvoiceTypeMonthly || t == InvoiceTypeCustom
}

// InvoiceStatus is derived from paid_amount versus amount
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "unpaid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusFullyPaid     InvoiceStatus = "fully_paid"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid, InvoiceStatusFullyPaid:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// CanReceivePayment returns true while money is still owed
func (s InvoiceStatus) CanReceivePayment() bool {
	return s == InvoiceStatusUnpaid || s == InvoiceStatusPartiallyPaid
}

// OpenInvoiceStatuses are the statuses the allocator and the overdue detector consider
func OpenInvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid}
}

// DeriveInvoiceStatus computes the status implied by the amounts
func DeriveInvoiceStatus(amount, paid decimal.Decimal) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return InvoiceStatusFullyPaid
	case paid.IsPositive():
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusUnpaid
	}
}

// Invoice is an obligation owed by a client. It is append-only: amounts change
// only through ApplyPayment, called by the allocator.
type Invoice struct {
	shared.OrganizationAggregateRoot
	InvoiceNumber string
	Type          InvoiceType
	ClientID      uuid.UUID
	Title         string
	Description   string
	Amount        decimal.Decimal
	DueDate       time.Time
	PaidAmount    decimal.Decimal
	PaymentStatus InvoiceStatus
	PaymentIDs    IDList
	// BillingMonth is the YYYY-MM of PeriodStart for monthly invoices, empty for custom ones
	BillingMonth string
	PeriodStart  *time.Time
}

// NewMonthlyInvoice creates the generator's invoice for one billing period
func NewMonthlyInvoice(
	organizationID, clientID uuid.UUID,
	invoiceNumber string,
	amount decimal.Decimal,
	dueDate time.Time,
	periodStart time.Time,
	at time.Time,
) (*Invoice, error) {
	inv, err := newInvoice(organizationID, clientID, invoiceNumber, InvoiceTypeMonthly, amount, dueDate, at)
	if err != nil {
		return nil, err
	}
	// keyed on the period, so a late run still lands in the month the generator looks up
	inv.BillingMonth = MonthKey(periodStart)
	inv.PeriodStart = &periodStart
	inv.Title = fmt.Sprintf("Service charge %s", inv.BillingMonth)
	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv, at))
	return inv, nil
}

// NewCustomInvoice creates an ad-hoc invoice requested by the organization
func NewCustomInvoice(
	organizationID, clientID uuid.UUID,
	invoiceNumber string,
	title, description string,
	amount decimal.Decimal,
	dueDate time.Time,
	at time.Time,
) (*Invoice, error) {
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Title cannot be empty")
	}
	inv, err := newInvoice(organizationID, clientID, invoiceNumber, InvoiceTypeCustom, amount, dueDate, at)
	if err != nil {
		return nil, err
	}
	inv.Title = title
	inv.Description = description
	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv, at))
	return inv, nil
}

func newInvoice(
	organizationID, clientID uuid.UUID,
	invoiceNumber string,
	invoiceType InvoiceType,
	amount decimal.Decimal,
	dueDate time.Time,
	at time.Time,
) (*Invoice, error) {
	if organizationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if !IsValidInvoiceNumber(invoiceNumber) {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", fmt.Sprintf("Invoice number %q is malformed", invoiceNumber))
	}
	if _, err := valueobject.NewPositiveMoney(amount); err != nil {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice amount must be positive with at most 2 decimals")
	}
	if dueDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_DUE_DATE", "Due date is required")
	}

	return &Invoice{
		OrganizationAggregateRoot: shared.NewOrganizationAggregateRoot(organizationID, at),
		InvoiceNumber:             invoiceNumber,
		Type:                      invoiceType,
		ClientID:                  clientID,
		Amount:                    amount,
		DueDate:                   dueDate,
		PaidAmount:                decimal.Zero,
		PaymentStatus:             InvoiceStatusUnpaid,
		PaymentIDs:                IDList{},
	}, nil
}

// Outstanding returns amount - paid_amount
func (inv *Invoice) Outstanding() decimal.Decimal {
	return inv.Amount.Sub(inv.PaidAmount)
}

// HasPayment reports whether the payment already contributed to this invoice
func (inv *Invoice) HasPayment(paymentID uuid.UUID) bool {
	return inv.PaymentIDs.Contains(paymentID)
}

// ApplyPayment credits amount from paymentID to this invoice.
// A repeated payment id or an amount above the outstanding balance is an invariant violation.
func (inv *Invoice) ApplyPayment(paymentID uuid.UUID, amount decimal.Decimal, at time.Time) error {
	if paymentID == uuid.Nil {
		return shared.NewDomainError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil
	}
	if !inv.PaymentStatus.CanReceivePayment() {
		return shared.NewInvariantViolation(fmt.Sprintf("invoice %s is %s and cannot receive payment", inv.InvoiceNumber, inv.PaymentStatus))
	}
	if inv.HasPayment(paymentID) {
		return shared.NewInvariantViolation(fmt.Sprintf("payment %s already applied to invoice %s", paymentID, inv.InvoiceNumber))
	}
	if amount.GreaterThan(inv.Outstanding()) {
		return shared.NewInvariantViolation(fmt.Sprintf("applying %s exceeds outstanding %s on invoice %s",
			amount.StringFixed(2), inv.Outstanding().StringFixed(2), inv.InvoiceNumber))
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.PaymentStatus = DeriveInvoiceStatus(inv.Amount, inv.PaidAmount)
	inv.PaymentIDs = inv.PaymentIDs.with(paymentID)
	inv.Touch(at)
	return nil
}

// CheckInvariants verifies the stored amounts and derived status agree
func (inv *Invoice) CheckInvariants() error {
	if inv.PaidAmount.IsNegative() || inv.PaidAmount.GreaterThan(inv.Amount) {
		return shared.NewInvariantViolation(fmt.Sprintf("invoice %s paid amount %s outside [0, %s]",
			inv.InvoiceNumber, inv.PaidAmount.StringFixed(2), inv.Amount.StringFixed(2)))
	}
	if derived := DeriveInvoiceStatus(inv.Amount, inv.PaidAmount); derived != inv.PaymentStatus {
		return shared.NewInvariantViolation(fmt.Sprintf("invoice %s status %s, expected %s",
			inv.InvoiceNumber, inv.PaymentStatus, derived))
	}
	return nil
}

// OverdueAfter returns the instant after which the invoice is overdue for the given grace
func (inv *Invoice) OverdueAfter(graceDays int) time.Time {
	return inv.DueDate.AddDate(0, 0, graceDays)
}

// IsOverdue reports whether the invoice is unpaid past due date plus grace
func (inv *Invoice) IsOverdue(now time.Time, graceDays int) bool {
	if !inv.PaymentStatus.CanReceivePayment() {
		return false
	}
	return now.After(inv.OverdueAfter(graceDays))
}

// DaysOverdue returns whole days past due date plus grace (0 if not overdue)
func (inv *Invoice) DaysOverdue(now time.Time, graceDays int) int {
	if !inv.IsOverdue(now, graceDays) {
		return 0
	}
	return int(now.Sub(inv.OverdueAfter(graceDays)).Hours() / 24)
}
