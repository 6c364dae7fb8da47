package handler

import (
	"context"

	"github.com/google/uuid"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/infrastructure/scheduler"
)

// ContractService is the contract use case surface the handlers need
type ContractService interface {
	Upsert(ctx context.Context, clientID uuid.UUID, req appbilling.UpsertContractRequest) (*appbilling.ContractResponse, error)
	Get(ctx context.Context, organizationID, clientID uuid.UUID) (*appbilling.ContractResponse, error)
}

// PaymentService ingests and reads payments
type PaymentService interface {
	RecordCallback(ctx context.Context, req appbilling.PaymentCallbackRequest) (*appbilling.PaymentIngestResult, error)
	RecordManual(ctx context.Context, req appbilling.ManualPaymentRequest) (*appbilling.PaymentIngestResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appbilling.PaymentResponse, error)
	ListByClient(ctx context.Context, organizationID, clientID uuid.UUID, f appbilling.LedgerListFilter) ([]appbilling.PaymentResponse, int64, error)
}

// InvoiceService issues and reads invoices
type InvoiceService interface {
	CreateCustom(ctx context.Context, req appbilling.CreateCustomInvoiceRequest) (*appbilling.InvoiceCreateResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appbilling.InvoiceResponse, error)
	ListByClient(ctx context.Context, organizationID, clientID uuid.UUID, f appbilling.LedgerListFilter) ([]appbilling.InvoiceResponse, int64, error)
}

// LedgerService summarizes client balances
type LedgerService interface {
	GetClientBalance(ctx context.Context, organizationID, clientID uuid.UUID) (*appbilling.ClientBalanceResponse, error)
}

// AgingService builds the receivables reports
type AgingService interface {
	Report(ctx context.Context, organizationID *uuid.UUID) (*appbilling.AgingReportResponse, error)
	ListOverdue(ctx context.Context, organizationID *uuid.UUID) ([]appbilling.OverdueInvoiceResponse, error)
}

// GenerationRunner performs one invoice generation pass
type GenerationRunner interface {
	Run(ctx context.Context) (*appbilling.GenerationReport, error)
}

// JobLister reports scheduled jobs
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

var (
	_ ContractService  = (*appbilling.ContractService)(nil)
	_ PaymentService   = (*appbilling.PaymentService)(nil)
	_ InvoiceService   = (*appbilling.InvoiceService)(nil)
	_ LedgerService    = (*appbilling.LedgerService)(nil)
	_ AgingService     = (*appbilling.AgingService)(nil)
	_ GenerationRunner = (*appbilling.InvoiceGenerator)(nil)
	_ JobLister        = (*scheduler.CronScheduler)(nil)
)
