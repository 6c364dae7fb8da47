package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/domain/shared/valueobject"
)

// PaymentStatus is derived from remaining_amount versus allocated_amount
type PaymentStatus string

const (
	PaymentStatusNotAllocated       PaymentStatus = "not_allocated"
	PaymentStatusPartiallyAllocated PaymentStatus = "partially_allocated"
	PaymentStatusFullyAllocated     PaymentStatus = "fully_allocated"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusNotAllocated, PaymentStatusPartiallyAllocated, PaymentStatusFullyAllocated:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// HasCredit returns true if the payment may still have unallocated money
func (s PaymentStatus) HasCredit() bool {
	return s == PaymentStatusNotAllocated || s == PaymentStatusPartiallyAllocated
}

// OpenPaymentStatuses are the statuses that may carry unallocated credit
func OpenPaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusNotAllocated, PaymentStatusPartiallyAllocated}
}

// DerivePaymentStatus computes the status implied by the amounts
func DerivePaymentStatus(allocated, remaining decimal.Decimal) PaymentStatus {
	switch {
	case remaining.IsZero():
		return PaymentStatusFullyAllocated
	case allocated.IsPositive():
		return PaymentStatusPartiallyAllocated
	default:
		return PaymentStatusNotAllocated
	}
}

// PaymentMethod identifies how the money arrived
type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodMobileMoney, PaymentMethodCash, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// IsManual returns true for methods recorded by hand rather than by provider callback
func (m PaymentMethod) IsManual() bool {
	return m == PaymentMethodCash || m == PaymentMethodBankTransfer
}

// Payment is money received from a client
type Payment struct {
	shared.OrganizationAggregateRoot
	TransID           string
	Method            PaymentMethod
	ClientID          uuid.UUID
	AccountReference  string
	PayerName         string
	Amount            decimal.Decimal
	AllocatedAmount   decimal.Decimal
	RemainingAmount   decimal.Decimal
	Status            PaymentStatus
	InvoicesProcessed IDList
	TransTime         time.Time
}

// NewPayment records an inbound payment before any allocation
func NewPayment(
	organizationID, clientID uuid.UUID,
	transID string,
	method PaymentMethod,
	amount decimal.Decimal,
	transTime time.Time,
	at time.Time,
) (*Payment, error) {
	if organizationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if transID == "" {
		return nil, shared.NewDomainError("INVALID_TRANS_ID", "Transaction ID cannot be empty")
	}
	if len(transID) > 100 {
		return nil, shared.NewDomainError("INVALID_TRANS_ID", "Transaction ID cannot exceed 100 characters")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", fmt.Sprintf("Payment method %q is not supported", method))
	}
	if _, err := valueobject.NewPositiveMoney(amount); err != nil {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive with at most 2 decimals")
	}
	if transTime.IsZero() {
		transTime = at
	}

	return &Payment{
		OrganizationAggregateRoot: shared.NewOrganizationAggregateRoot(organizationID, at),
		TransID:                   transID,
		Method:                    method,
		ClientID:                  clientID,
		Amount:                    amount,
		AllocatedAmount:           decimal.Zero,
		RemainingAmount:           amount,
		Status:                    PaymentStatusNotAllocated,
		InvoicesProcessed:         IDList{},
		TransTime:                 transTime,
	}, nil
}

// HasInvoice reports whether this payment already contributed to the invoice
func (p *Payment) HasInvoice(invoiceID uuid.UUID) bool {
	return p.InvoicesProcessed.Contains(invoiceID)
}

// AllocateTo moves amount of remaining credit onto invoiceID.
// A repeated invoice id or an amount above the remaining credit is an invariant violation.
func (p *Payment) AllocateTo(invoiceID uuid.UUID, amount decimal.Decimal, at time.Time) error {
	if invoiceID == uuid.Nil {
		return shared.NewDomainError("INVALID_INVOICE", "Invoice ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil
	}
	if p.HasInvoice(invoiceID) {
		return shared.NewInvariantViolation(fmt.Sprintf("payment %s already allocated to invoice %s", p.TransID, invoiceID))
	}
	if amount.GreaterThan(p.RemainingAmount) {
		return shared.NewInvariantViolation(fmt.Sprintf("allocating %s exceeds remaining %s on payment %s",
			amount.StringFixed(2), p.RemainingAmount.StringFixed(2), p.TransID))
	}

	p.RemainingAmount = p.RemainingAmount.Sub(amount)
	p.AllocatedAmount = p.AllocatedAmount.Add(amount)
	p.InvoicesProcessed = p.InvoicesProcessed.with(invoiceID)
	p.Touch(at)
	return nil
}

// RefreshStatus recomputes the derived status after a pass of allocations
func (p *Payment) RefreshStatus() {
	p.Status = DerivePaymentStatus(p.AllocatedAmount, p.RemainingAmount)
}

// CheckInvariants verifies money conservation and the derived status
func (p *Payment) CheckInvariants() error {
	if !p.AllocatedAmount.Add(p.RemainingAmount).Equal(p.Amount) {
		return shared.NewInvariantViolation(fmt.Sprintf("payment %s allocated %s + remaining %s != amount %s",
			p.TransID, p.AllocatedAmount.StringFixed(2), p.RemainingAmount.StringFixed(2), p.Amount.StringFixed(2)))
	}
	if p.RemainingAmount.IsNegative() || p.AllocatedAmount.IsNegative() {
		return shared.NewInvariantViolation(fmt.Sprintf("payment %s has negative balance", p.TransID))
	}
	if derived := DerivePaymentStatus(p.AllocatedAmount, p.RemainingAmount); derived != p.Status {
		return shared.NewInvariantViolation(fmt.Sprintf("payment %s status %s, expected %s", p.TransID, p.Status, derived))
	}
	return nil
}
