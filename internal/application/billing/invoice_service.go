package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/telemetry"
)

const maxInvoiceNumberAttempts = 10

// InvoiceService issues invoices and runs the allocator against existing credit
type InvoiceService struct {
	invoiceRepo    billing.InvoiceRepository
	allocation     *AllocationService
	refs           billing.ReferenceGenerator
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	metrics        MetricsRecorder
	logger         *zap.Logger
}

// InvoiceServiceConfig holds the dependencies of InvoiceService
type InvoiceServiceConfig struct {
	InvoiceRepo    billing.InvoiceRepository
	Allocation     *AllocationService
	References     billing.ReferenceGenerator
	EventPublisher shared.EventPublisher
	Clock          shared.Clock
	Metrics        MetricsRecorder
	Logger         *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(cfg InvoiceServiceConfig) *InvoiceService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	refs := cfg.References
	if refs == nil {
		refs = billing.NewRandomReferenceGenerator()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = shared.NewSystemClock(time.UTC)
	}
	return &InvoiceService{
		invoiceRepo:    cfg.InvoiceRepo,
		allocation:     cfg.Allocation,
		refs:           refs,
		eventPublisher: cfg.EventPublisher,
		clock:          clock,
		metrics:        metricsOrNoop(cfg.Metrics),
		logger:         logger,
	}
}

// CreateCustom issues an ad-hoc invoice. It skips the monthly uniqueness check
// but still consumes any unallocated credit the client holds.
func (s *InvoiceService) CreateCustom(ctx context.Context, req CreateCustomInvoiceRequest) (*InvoiceCreateResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create_custom")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrClientID, req.ClientID.String())

	inv, err := s.create(ctx, func(number string) (*billing.Invoice, error) {
		return billing.NewCustomInvoice(req.OrganizationID, req.ClientID, number,
			req.Title, req.Description, req.Amount, req.DueDate, s.clock.Now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, allocErr := s.allocateAndAnnounce(ctx, inv)
	if allocErr != nil {
		telemetry.RecordError(span, allocErr)
		return nil, fmt.Errorf("allocate invoice %s: %w", inv.InvoiceNumber, allocErr)
	}

	current, err := s.invoiceRepo.FindByID(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	telemetry.SetOK(span)
	return &InvoiceCreateResult{
		Invoice:    ToInvoiceResponse(current),
		Allocation: ToAllocationSummary(result),
	}, nil
}

// CreateMonthly issues the generator's invoice for one contract period and allocates credit to it.
// It returns billing.ErrPeriodAlreadyBilled when the calendar month is already invoiced.
// When allocation fails the invoice remains in the ledger, unpaid, and the error is returned with it.
func (s *InvoiceService) CreateMonthly(
	ctx context.Context,
	contract *billing.Contract,
	periodStart time.Time,
	dueDays int,
) (*billing.Invoice, *billing.AllocationResult, error) {
	now := s.clock.Now()
	inv, err := s.create(ctx, func(number string) (*billing.Invoice, error) {
		return billing.NewMonthlyInvoice(contract.OrganizationID, contract.ClientID, number,
			contract.MonthlyRate, now.AddDate(0, 0, dueDays), periodStart, now)
	})
	if err != nil {
		return nil, nil, err
	}

	result, allocErr := s.allocateAndAnnounce(ctx, inv)
	if allocErr != nil {
		return inv, nil, fmt.Errorf("allocate invoice %s: %w", inv.InvoiceNumber, allocErr)
	}
	return inv, result, nil
}

// ResumeAllocation applies unallocated credit to an invoice whose first allocation pass never committed
func (s *InvoiceService) ResumeAllocation(ctx context.Context, inv *billing.Invoice) (*billing.AllocationResult, error) {
	result, err := s.allocation.AllocateNewInvoice(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("allocate invoice %s: %w", inv.InvoiceNumber, err)
	}
	if result.TotalAllocated.IsPositive() {
		s.logger.Info("Resumed allocation of unpaid invoice",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("allocated", result.TotalAllocated.StringFixed(2)))
	}
	return result, nil
}

// create persists a new invoice, drawing a fresh number on collision
func (s *InvoiceService) create(ctx context.Context, build func(number string) (*billing.Invoice, error)) (*billing.Invoice, error) {
	for attempt := 0; attempt < maxInvoiceNumberAttempts; attempt++ {
		number := s.refs.InvoiceNumber()
		taken, err := s.invoiceRepo.ExistsByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		inv, err := build(number)
		if err != nil {
			return nil, err
		}
		err = s.invoiceRepo.Create(ctx, inv)
		if errors.Is(err, billing.ErrInvoiceNumberTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.RecordInvoiceCreated(ctx, string(inv.Type))
		s.logger.Info("Invoice created",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("type", string(inv.Type)),
			zap.String("client_id", inv.ClientID.String()),
			zap.String("organization_id", inv.OrganizationID.String()),
			zap.String("amount", inv.Amount.StringFixed(2)))
		return inv, nil
	}
	return nil, shared.NewDomainError("INVOICE_NUMBER_EXHAUSTED",
		fmt.Sprintf("Could not draw a free invoice number after %d attempts", maxInvoiceNumberAttempts))
}

// allocateAndAnnounce runs the new-invoice allocation and then publishes InvoiceCreated.
// The created event goes out even if allocation fails, since the invoice is already committed.
func (s *InvoiceService) allocateAndAnnounce(ctx context.Context, inv *billing.Invoice) (*billing.AllocationResult, error) {
	events := inv.GetDomainEvents()
	inv.ClearDomainEvents()

	result, err := s.allocation.AllocateNewInvoice(ctx, inv)
	if err != nil {
		s.logger.Error("Invoice created but allocation failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Error(err))
	}
	if s.eventPublisher != nil && len(events) > 0 {
		if pubErr := s.eventPublisher.Publish(ctx, events...); pubErr != nil {
			s.logger.Warn("Failed to publish invoice events", zap.Error(pubErr))
		}
	}
	return result, err
}

// GetByID returns one invoice
func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// ListByClient lists a client's invoices, newest first
func (s *InvoiceService) ListByClient(ctx context.Context, organizationID, clientID uuid.UUID, f LedgerListFilter) ([]InvoiceResponse, int64, error) {
	filter := billing.InvoiceFilter{
		Filter:         listFilter(f),
		OrganizationID: &organizationID,
		ClientID:       &clientID,
	}
	if f.Status != "" {
		status := billing.InvoiceStatus(f.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Unknown invoice status %q", f.Status))
		}
		filter.Status = &status
	}

	invoices, total, err := s.invoiceRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items := make([]InvoiceResponse, len(invoices))
	for i, inv := range invoices {
		items[i] = ToInvoiceResponse(inv)
	}
	return items, total, nil
}
