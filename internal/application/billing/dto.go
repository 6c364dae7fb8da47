package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/billing"
)

// UpsertContractRequest sets a client's recurring billing terms
type UpsertContractRequest struct {
	OrganizationID   uuid.UUID       `json:"organization_id" binding:"required"`
	MonthlyRate      decimal.Decimal `json:"monthly_rate"`
	ServiceStartDate *time.Time      `json:"service_start_date"`
	GracePeriodDays  *int            `json:"grace_period_days" binding:"omitempty,min=0,max=30"`
	PickupDay        string          `json:"pickup_day" binding:"max=20"`
}

// PaymentCallbackRequest is the inbound mobile-money payment event
type PaymentCallbackRequest struct {
	ExternalTransID  string          `json:"external_trans_id" binding:"required,max=100"`
	AccountReference string          `json:"account_reference" binding:"max=100"`
	ClientID         uuid.UUID       `json:"client_id" binding:"required"`
	OrganizationID   uuid.UUID       `json:"organization_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	ReceivedAt       *time.Time      `json:"received_at"`
	PayerName        string          `json:"payer_name" binding:"max=200"`
}

// ManualPaymentRequest records cash or bank money entered by staff
type ManualPaymentRequest struct {
	Method           string          `json:"method" binding:"required,oneof=cash bank_transfer"`
	AccountReference string          `json:"account_reference" binding:"max=100"`
	ClientID         uuid.UUID       `json:"client_id" binding:"required"`
	OrganizationID   uuid.UUID       `json:"organization_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	ReceivedAt       *time.Time      `json:"received_at"`
	PayerName        string          `json:"payer_name" binding:"max=200"`
}

// CreateCustomInvoiceRequest issues an ad-hoc invoice
type CreateCustomInvoiceRequest struct {
	OrganizationID uuid.UUID       `json:"organization_id" binding:"required"`
	ClientID       uuid.UUID       `json:"client_id" binding:"required"`
	Title          string          `json:"title" binding:"required,min=1,max=200"`
	Description    string          `json:"description" binding:"max=2000"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        time.Time       `json:"due_date" binding:"required"`
}

// ContractResponse represents a contract in API responses
type ContractResponse struct {
	ClientID         uuid.UUID       `json:"client_id"`
	OrganizationID   uuid.UUID       `json:"organization_id"`
	MonthlyRate      decimal.Decimal `json:"monthly_rate"`
	ServiceStartDate *time.Time      `json:"service_start_date,omitempty"`
	GracePeriodDays  int             `json:"grace_period_days"`
	PickupDay        string          `json:"pickup_day,omitempty"`
	Billable         bool            `json:"billable"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	ClientID       uuid.UUID       `json:"client_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	PaymentStatus  string          `json:"payment_status"`
	PaymentIDs     []uuid.UUID     `json:"payment_ids"`
	DueDate        time.Time       `json:"due_date"`
	BillingMonth   string          `json:"billing_month,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int             `json:"version"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID                uuid.UUID       `json:"id"`
	OrganizationID    uuid.UUID       `json:"organization_id"`
	ClientID          uuid.UUID       `json:"client_id"`
	TransID           string          `json:"trans_id"`
	Method            string          `json:"method"`
	AccountReference  string          `json:"account_reference,omitempty"`
	PayerName         string          `json:"payer_name,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	Status            string          `json:"status"`
	InvoicesProcessed []uuid.UUID     `json:"invoices_processed"`
	TransTime         time.Time       `json:"trans_time"`
	CreatedAt         time.Time       `json:"created_at"`
	Version           int             `json:"version"`
}

// AllocationLineResponse is one payment-to-invoice transfer
type AllocationLineResponse struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransID       string          `json:"trans_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// AllocationSummary describes what an allocation pass moved
type AllocationSummary struct {
	Mode           string                   `json:"mode"`
	TotalAllocated decimal.Decimal          `json:"total_allocated"`
	Lines          []AllocationLineResponse `json:"lines"`
}

// PaymentIngestResult is returned by payment ingestion
type PaymentIngestResult struct {
	Payment    PaymentResponse    `json:"payment"`
	Duplicate  bool               `json:"duplicate"`
	Allocation *AllocationSummary `json:"allocation,omitempty"`
}

// InvoiceCreateResult is returned when an invoice is issued
type InvoiceCreateResult struct {
	Invoice    InvoiceResponse    `json:"invoice"`
	Allocation *AllocationSummary `json:"allocation,omitempty"`
}

// ClientBalanceResponse summarizes one client's ledger
type ClientBalanceResponse struct {
	OrganizationID     uuid.UUID       `json:"organization_id"`
	ClientID           uuid.UUID       `json:"client_id"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	UnallocatedCredit  decimal.Decimal `json:"unallocated_credit"`
	NetBalance         decimal.Decimal `json:"net_balance"`
}

// LedgerListFilter narrows client ledger listings
type LedgerListFilter struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty"`
}

// AgingBucketResponse is one row of the aging report
type AgingBucketResponse struct {
	Label       string          `json:"label"`
	MinDays     int             `json:"min_days"`
	MaxDays     *int            `json:"max_days"`
	Count       int             `json:"count"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// AgingReportResponse is the aging report
type AgingReportResponse struct {
	AsOf             time.Time             `json:"as_of"`
	GraceDays        int                   `json:"grace_days"`
	OrganizationID   *uuid.UUID            `json:"organization_id,omitempty"`
	Buckets          []AgingBucketResponse `json:"buckets"`
	TotalCount       int                   `json:"total_count"`
	TotalOutstanding decimal.Decimal       `json:"total_outstanding"`
}

// OverdueInvoiceResponse is one overdue invoice
type OverdueInvoiceResponse struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	DueDate       time.Time       `json:"due_date"`
	DaysOverdue   int             `json:"days_overdue"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

// GenerationFailure records one contract the generator could not process
type GenerationFailure struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ClientID       uuid.UUID `json:"client_id"`
	Error          string    `json:"error"`
}

// GenerationReport summarizes one invoice generator run
type GenerationReport struct {
	RunID            string              `json:"run_id"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
	ContractsScanned int                 `json:"contracts_scanned"`
	Skipped          int                 `json:"skipped"`
	InvoicesCreated  int                 `json:"invoices_created"`
	AlreadyBilled    int                 `json:"already_billed"`
	OverdueNotices   int                 `json:"overdue_notices"`
	Failed           int                 `json:"failed"`
	Failures         []GenerationFailure `json:"failures,omitempty"`
}

// ToContractResponse converts a domain Contract to ContractResponse
func ToContractResponse(c *billing.Contract) ContractResponse {
	return ContractResponse{
		ClientID:         c.ClientID,
		OrganizationID:   c.OrganizationID,
		MonthlyRate:      c.MonthlyRate,
		ServiceStartDate: c.ServiceStartDate,
		GracePeriodDays:  c.GracePeriodDays,
		PickupDay:        c.PickupDay,
		Billable:         c.IsBillable(),
		UpdatedAt:        c.UpdatedAt,
	}
}

// ToInvoiceResponse converts a domain Invoice to InvoiceResponse
func ToInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:             inv.ID,
		OrganizationID: inv.OrganizationID,
		ClientID:       inv.ClientID,
		InvoiceNumber:  inv.InvoiceNumber,
		Type:           string(inv.Type),
		Title:          inv.Title,
		Description:    inv.Description,
		Amount:         inv.Amount,
		PaidAmount:     inv.PaidAmount,
		Outstanding:    inv.Outstanding(),
		PaymentStatus:  string(inv.PaymentStatus),
		PaymentIDs:     append([]uuid.UUID{}, inv.PaymentIDs...),
		DueDate:        inv.DueDate,
		BillingMonth:   inv.BillingMonth,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
		Version:        inv.Version,
	}
}

// ToPaymentResponse converts a domain Payment to PaymentResponse
func ToPaymentResponse(p *billing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                p.ID,
		OrganizationID:    p.OrganizationID,
		ClientID:          p.ClientID,
		TransID:           p.TransID,
		Method:            string(p.Method),
		AccountReference:  p.AccountReference,
		PayerName:         p.PayerName,
		Amount:            p.Amount,
		AllocatedAmount:   p.AllocatedAmount,
		RemainingAmount:   p.RemainingAmount,
		Status:            string(p.Status),
		InvoicesProcessed: append([]uuid.UUID{}, p.InvoicesProcessed...),
		TransTime:         p.TransTime,
		CreatedAt:         p.CreatedAt,
		Version:           p.Version,
	}
}

// ToAllocationSummary converts an allocation result, nil when nothing moved
func ToAllocationSummary(r *billing.AllocationResult) *AllocationSummary {
	if r == nil || r.IsEmpty() {
		return nil
	}
	lines := make([]AllocationLineResponse, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = AllocationLineResponse{
			InvoiceID:     l.InvoiceID,
			InvoiceNumber: l.InvoiceNumber,
			PaymentID:     l.PaymentID,
			TransID:       l.TransID,
			Amount:        l.Amount,
		}
	}
	return &AllocationSummary{
		Mode:           string(r.Mode),
		TotalAllocated: r.TotalAllocated,
		Lines:          lines,
	}
}

// ToAgingReportResponse converts a domain AgingReport
func ToAgingReportResponse(r *billing.AgingReport, organizationID *uuid.UUID) AgingReportResponse {
	buckets := make([]AgingBucketResponse, len(r.Buckets))
	for i, b := range r.Buckets {
		var maxDays *int
		if b.MaxDays > 0 {
			m := b.MaxDays
			maxDays = &m
		}
		buckets[i] = AgingBucketResponse{
			Label:       b.Label,
			MinDays:     b.MinDays,
			MaxDays:     maxDays,
			Count:       b.Count,
			Outstanding: b.Outstanding,
			Percentage:  b.Percentage,
		}
	}
	return AgingReportResponse{
		AsOf:             r.AsOf,
		GraceDays:        r.GraceDays,
		OrganizationID:   organizationID,
		Buckets:          buckets,
		TotalCount:       r.TotalCount,
		TotalOutstanding: r.TotalOutstanding,
	}
}
