package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/infrastructure/scheduler"
)

type mockContractService struct{ mock.Mock }

func (m *mockContractService) Upsert(ctx context.Context, clientID uuid.UUID, req appbilling.UpsertContractRequest) (*appbilling.ContractResponse, error) {
	args := m.Called(ctx, clientID, req)
	resp, _ := args.Get(0).(*appbilling.ContractResponse)
	return resp, args.Error(1)
}

func (m *mockContractService) Get(ctx context.Context, organizationID, clientID uuid.UUID) (*appbilling.ContractResponse, error) {
	args := m.Called(ctx, organizationID, clientID)
	resp, _ := args.Get(0).(*appbilling.ContractResponse)
	return resp, args.Error(1)
}

type mockPaymentService struct{ mock.Mock }

func (m *mockPaymentService) RecordCallback(ctx context.Context, req appbilling.PaymentCallbackRequest) (*appbilling.PaymentIngestResult, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*appbilling.PaymentIngestResult)
	return resp, args.Error(1)
}

func (m *mockPaymentService) RecordManual(ctx context.Context, req appbilling.ManualPaymentRequest) (*appbilling.PaymentIngestResult, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*appbilling.PaymentIngestResult)
	return resp, args.Error(1)
}

func (m *mockPaymentService) GetByID(ctx context.Context, id uuid.UUID) (*appbilling.PaymentResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*appbilling.PaymentResponse)
	return resp, args.Error(1)
}

func (m *mockPaymentService) ListByClient(ctx context.Context, organizationID, clientID uuid.UUID, f appbilling.LedgerListFilter) ([]appbilling.PaymentResponse, int64, error) {
	args := m.Called(ctx, organizationID, clientID, f)
	items, _ := args.Get(0).([]appbilling.PaymentResponse)
	return items, args.Get(1).(int64), args.Error(2)
}

type mockInvoiceService struct{ mock.Mock }

func (m *mockInvoiceService) CreateCustom(ctx context.Context, req appbilling.CreateCustomInvoiceRequest) (*appbilling.InvoiceCreateResult, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*appbilling.InvoiceCreateResult)
	return resp, args.Error(1)
}

func (m *mockInvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*appbilling.InvoiceResponse)
	return resp, args.Error(1)
}

func (m *mockInvoiceService) ListByClient(ctx context.Context, organizationID, clientID uuid.UUID, f appbilling.LedgerListFilter) ([]appbilling.InvoiceResponse, int64, error) {
	args := m.Called(ctx, organizationID, clientID, f)
	items, _ := args.Get(0).([]appbilling.InvoiceResponse)
	return items, args.Get(1).(int64), args.Error(2)
}

type mockLedgerService struct{ mock.Mock }

func (m *mockLedgerService) GetClientBalance(ctx context.Context, organizationID, clientID uuid.UUID) (*appbilling.ClientBalanceResponse, error) {
	args := m.Called(ctx, organizationID, clientID)
	resp, _ := args.Get(0).(*appbilling.ClientBalanceResponse)
	return resp, args.Error(1)
}

type mockAgingService struct{ mock.Mock }

func (m *mockAgingService) Report(ctx context.Context, organizationID *uuid.UUID) (*appbilling.AgingReportResponse, error) {
	args := m.Called(ctx, organizationID)
	resp, _ := args.Get(0).(*appbilling.AgingReportResponse)
	return resp, args.Error(1)
}

func (m *mockAgingService) ListOverdue(ctx context.Context, organizationID *uuid.UUID) ([]appbilling.OverdueInvoiceResponse, error) {
	args := m.Called(ctx, organizationID)
	items, _ := args.Get(0).([]appbilling.OverdueInvoiceResponse)
	return items, args.Error(1)
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Run(ctx context.Context) (*appbilling.GenerationReport, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*appbilling.GenerationReport)
	return resp, args.Error(1)
}

type staticJobs []scheduler.JobInfo

func (s staticJobs) Jobs() []scheduler.JobInfo { return s }
