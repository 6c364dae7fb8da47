package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/shared"
)

// AllocationMode names the allocator entry point that produced a result
type AllocationMode string

const (
	AllocationModeNewPayment AllocationMode = "new_payment"
	AllocationModeNewInvoice AllocationMode = "new_invoice"
)

// AllocationLine records money moved from one payment onto one invoice
type AllocationLine struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	PaymentID     uuid.UUID
	TransID       string
	Amount        decimal.Decimal
}

// AllocationResult describes a completed allocation pass.
// Invoices and Payments hold only the aggregates that were mutated and must be persisted.
type AllocationResult struct {
	Mode                  AllocationMode
	Lines                 []AllocationLine
	TotalAllocated        decimal.Decimal
	Invoices              []*Invoice
	Payments              []*Payment
	InvoicesFullyPaid     []uuid.UUID
	InvoicesPartiallyPaid []uuid.UUID
}

// IsEmpty returns true if nothing was allocated
func (r *AllocationResult) IsEmpty() bool {
	return len(r.Lines) == 0
}

// FIFOAllocator matches money to obligations oldest-first by creation time.
// It only mutates the aggregates it is given; persistence and locking belong to the caller.
type FIFOAllocator struct{}

// NewFIFOAllocator creates a new FIFO allocator
func NewFIFOAllocator() *FIFOAllocator {
	return &FIFOAllocator{}
}

// AllocatePayment applies a new payment to the client's open invoices, oldest first
func (a *FIFOAllocator) AllocatePayment(payment *Payment, invoices []*Invoice, at time.Time) (*AllocationResult, error) {
	if payment == nil {
		return nil, shared.NewDomainError("INVALID_PAYMENT", "Payment cannot be nil")
	}

	result := newAllocationResult(AllocationModeNewPayment)
	for _, inv := range sortInvoicesFIFO(invoices) {
		if !payment.RemainingAmount.IsPositive() {
			break
		}
		if err := sameLedger(inv, payment); err != nil {
			return nil, err
		}
		if !inv.PaymentStatus.CanReceivePayment() {
			continue
		}
		linked, err := pairLinked(inv, payment)
		if err != nil {
			return nil, err
		}
		if linked {
			continue
		}

		apply := decimal.Min(payment.RemainingAmount, inv.Outstanding())
		if !apply.IsPositive() {
			continue
		}
		if err := transfer(inv, payment, apply, at); err != nil {
			return nil, err
		}
		result.record(inv, payment, apply)
		result.touchInvoice(inv)
	}

	payment.RefreshStatus()
	if !result.IsEmpty() {
		result.touchPayment(payment)
	}
	return result.finish()
}

// AllocateInvoice applies existing unallocated credit to a new invoice, oldest credit first
func (a *FIFOAllocator) AllocateInvoice(invoice *Invoice, payments []*Payment, at time.Time) (*AllocationResult, error) {
	if invoice == nil {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice cannot be nil")
	}

	result := newAllocationResult(AllocationModeNewInvoice)
	for _, p := range sortPaymentsFIFO(payments) {
		if !invoice.PaymentStatus.CanReceivePayment() {
			break
		}
		if err := sameLedger(invoice, p); err != nil {
			return nil, err
		}
		if !p.Status.HasCredit() || !p.RemainingAmount.IsPositive() {
			continue
		}
		linked, err := pairLinked(invoice, p)
		if err != nil {
			return nil, err
		}
		if linked {
			continue
		}

		apply := decimal.Min(p.RemainingAmount, invoice.Outstanding())
		if !apply.IsPositive() {
			continue
		}
		if err := transfer(invoice, p, apply, at); err != nil {
			return nil, err
		}
		p.RefreshStatus()
		result.record(invoice, p, apply)
		result.touchPayment(p)
	}

	if !result.IsEmpty() {
		result.touchInvoice(invoice)
	}
	return result.finish()
}

func transfer(inv *Invoice, p *Payment, amount decimal.Decimal, at time.Time) error {
	if err := inv.ApplyPayment(p.ID, amount, at); err != nil {
		return err
	}
	return p.AllocateTo(inv.ID, amount, at)
}

// pairLinked reports whether the pair was already allocated.
// The two id lists must agree; a one-sided link means the ledger is corrupt.
func pairLinked(inv *Invoice, p *Payment) (bool, error) {
	onInvoice := inv.HasPayment(p.ID)
	onPayment := p.HasInvoice(inv.ID)
	if onInvoice != onPayment {
		return false, shared.NewInvariantViolation(fmt.Sprintf(
			"allocation link between invoice %s and payment %s is recorded on one side only",
			inv.InvoiceNumber, p.TransID))
	}
	return onInvoice, nil
}

func sameLedger(inv *Invoice, p *Payment) error {
	if inv.OrganizationID != p.OrganizationID || inv.ClientID != p.ClientID {
		return shared.NewInvariantViolation(fmt.Sprintf(
			"invoice %s and payment %s belong to different client ledgers", inv.InvoiceNumber, p.TransID))
	}
	return nil
}

func sortInvoicesFIFO(invoices []*Invoice) []*Invoice {
	sorted := make([]*Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv != nil {
			sorted = append(sorted, inv)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

func sortPaymentsFIFO(payments []*Payment) []*Payment {
	sorted := make([]*Payment, 0, len(payments))
	for _, p := range payments {
		if p != nil {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

func newAllocationResult(mode AllocationMode) *AllocationResult {
	return &AllocationResult{
		Mode:                  mode,
		Lines:                 make([]AllocationLine, 0),
		TotalAllocated:        decimal.Zero,
		Invoices:              make([]*Invoice, 0),
		Payments:              make([]*Payment, 0),
		InvoicesFullyPaid:     make([]uuid.UUID, 0),
		InvoicesPartiallyPaid: make([]uuid.UUID, 0),
	}
}

func (r *AllocationResult) record(inv *Invoice, p *Payment, amount decimal.Decimal) {
	r.Lines = append(r.Lines, AllocationLine{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		PaymentID:     p.ID,
		TransID:       p.TransID,
		Amount:        amount,
	})
	r.TotalAllocated = r.TotalAllocated.Add(amount)
}

func (r *AllocationResult) touchInvoice(inv *Invoice) {
	inv.IncrementVersion()
	r.Invoices = append(r.Invoices, inv)
}

func (r *AllocationResult) touchPayment(p *Payment) {
	p.IncrementVersion()
	r.Payments = append(r.Payments, p)
}

// finish verifies every mutated aggregate before the caller persists anything
func (r *AllocationResult) finish() (*AllocationResult, error) {
	for _, inv := range r.Invoices {
		if err := inv.CheckInvariants(); err != nil {
			return nil, err
		}
		if inv.PaymentStatus == InvoiceStatusFullyPaid {
			r.InvoicesFullyPaid = append(r.InvoicesFullyPaid, inv.ID)
		} else {
			r.InvoicesPartiallyPaid = append(r.InvoicesPartiallyPaid, inv.ID)
		}
	}
	for _, p := range r.Payments {
		if err := p.CheckInvariants(); err != nil {
			return nil, err
		}
	}
	return r, nil
}
