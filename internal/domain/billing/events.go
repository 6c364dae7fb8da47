package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/shared"
)

// Event type names
const (
	EventTypeInvoiceCreated  = "InvoiceCreated"
	EventTypeInvoiceOverdue  = "InvoiceOverdue"
	EventTypePaymentReceived = "PaymentReceived"
	EventTypePaymentApplied  = "PaymentApplied"
)

const (
	aggregateTypeInvoice = "Invoice"
	aggregateTypePayment = "Payment"
)

// InvoiceCreatedEvent is raised when a monthly or custom invoice is issued
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceType   InvoiceType     `json:"invoice_type"`
	ClientID      uuid.UUID       `json:"client_id"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"due_date"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return EventTypeInvoiceCreated
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice, at time.Time) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, aggregateTypeInvoice, inv.ID, inv.OrganizationID, at),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		InvoiceType:     inv.Type,
		ClientID:        inv.ClientID,
		Amount:          inv.Amount,
		DueDate:         inv.DueDate,
	}
}

// InvoiceOverdueEvent is raised by the generator for an unpaid invoice past its grace period
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	ClientID        uuid.UUID       `json:"client_id"`
	DueDate         time.Time       `json:"due_date"`
	GracePeriodDays int             `json:"grace_period_days"`
	DaysOverdue     int             `json:"days_overdue"`
	Outstanding     decimal.Decimal `json:"outstanding"`
}

// EventType returns the event type name
func (e *InvoiceOverdueEvent) EventType() string {
	return EventTypeInvoiceOverdue
}

// NewInvoiceOverdueEvent creates a new InvoiceOverdueEvent
func NewInvoiceOverdueEvent(inv *Invoice, graceDays int, at time.Time) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceOverdue, aggregateTypeInvoice, inv.ID, inv.OrganizationID, at),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		DueDate:         inv.DueDate,
		GracePeriodDays: graceDays,
		DaysOverdue:     inv.DaysOverdue(at, graceDays),
		Outstanding:     inv.Outstanding(),
	}
}

// PaymentReceivedEvent is raised once a new payment has been recorded and allocated
type PaymentReceivedEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID       `json:"payment_id"`
	TransID         string          `json:"trans_id"`
	Method          PaymentMethod   `json:"method"`
	ClientID        uuid.UUID       `json:"client_id"`
	Amount          decimal.Decimal `json:"amount"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          PaymentStatus   `json:"status"`
	InvoiceIDs      []uuid.UUID     `json:"invoice_ids"`
}

// EventType returns the event type name
func (e *PaymentReceivedEvent) EventType() string {
	return EventTypePaymentReceived
}

// NewPaymentReceivedEvent creates a new PaymentReceivedEvent
func NewPaymentReceivedEvent(p *Payment, at time.Time) *PaymentReceivedEvent {
	return &PaymentReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentReceived, aggregateTypePayment, p.ID, p.OrganizationID, at),
		PaymentID:       p.ID,
		TransID:         p.TransID,
		Method:          p.Method,
		ClientID:        p.ClientID,
		Amount:          p.Amount,
		AllocatedAmount: p.AllocatedAmount,
		RemainingAmount: p.RemainingAmount,
		Status:          p.Status,
		InvoiceIDs:      append([]uuid.UUID(nil), p.InvoicesProcessed...),
	}
}

// PaymentAppliedEvent is raised when existing credit is consumed by a new invoice
type PaymentAppliedEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID       `json:"payment_id"`
	TransID         string          `json:"trans_id"`
	ClientID        uuid.UUID       `json:"client_id"`
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          PaymentStatus   `json:"status"`
}

// EventType returns the event type name
func (e *PaymentAppliedEvent) EventType() string {
	return EventTypePaymentApplied
}

// NewPaymentAppliedEvent creates a new PaymentAppliedEvent for one allocation line
func NewPaymentAppliedEvent(p *Payment, line AllocationLine, at time.Time) *PaymentAppliedEvent {
	return &PaymentAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentApplied, aggregateTypePayment, p.ID, p.OrganizationID, at),
		PaymentID:       p.ID,
		TransID:         p.TransID,
		ClientID:        p.ClientID,
		InvoiceID:       line.InvoiceID,
		InvoiceNumber:   line.InvoiceNumber,
		AppliedAmount:   line.Amount,
		RemainingAmount: p.RemainingAmount,
		Status:          p.Status,
	}
}
