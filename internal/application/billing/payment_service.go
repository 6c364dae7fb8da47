package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/telemetry"
)

// PaymentService records inbound payments and hands them to the allocator
type PaymentService struct {
	paymentRepo    billing.PaymentRepository
	allocation     *AllocationService
	refs           billing.ReferenceGenerator
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	metrics        MetricsRecorder
	logger         *zap.Logger
}

// PaymentServiceConfig holds the dependencies of PaymentService
type PaymentServiceConfig struct {
	PaymentRepo    billing.PaymentRepository
	Allocation     *AllocationService
	References     billing.ReferenceGenerator
	EventPublisher shared.EventPublisher
	Clock          shared.Clock
	Metrics        MetricsRecorder
	Logger         *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
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
	return &PaymentService{
		paymentRepo:    cfg.PaymentRepo,
		allocation:     cfg.Allocation,
		refs:           refs,
		eventPublisher: cfg.EventPublisher,
		clock:          clock,
		metrics:        metricsOrNoop(cfg.Metrics),
		logger:         logger,
	}
}

type paymentInput struct {
	organizationID   uuid.UUID
	clientID         uuid.UUID
	transID          string
	method           billing.PaymentMethod
	amount           decimal.Decimal
	receivedAt       *time.Time
	accountReference string
	payerName        string
}

// RecordCallback ingests a mobile-money callback.
// Providers retry callbacks, so a known external_trans_id returns the stored payment with Duplicate set.
func (s *PaymentService) RecordCallback(ctx context.Context, req PaymentCallbackRequest) (*PaymentIngestResult, error) {
	return s.ingest(ctx, paymentInput{
		organizationID:   req.OrganizationID,
		clientID:         req.ClientID,
		transID:          req.ExternalTransID,
		method:           billing.PaymentMethodMobileMoney,
		amount:           req.Amount,
		receivedAt:       req.ReceivedAt,
		accountReference: req.AccountReference,
		payerName:        req.PayerName,
	})
}

// RecordManual ingests a cash or bank transfer entered by staff.
// The transaction reference is synthesized from the method and the entry time.
func (s *PaymentService) RecordManual(ctx context.Context, req ManualPaymentRequest) (*PaymentIngestResult, error) {
	method := billing.PaymentMethod(req.Method)
	if !method.IsManual() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", fmt.Sprintf("Method %q cannot be entered manually", req.Method))
	}
	return s.ingest(ctx, paymentInput{
		organizationID:   req.OrganizationID,
		clientID:         req.ClientID,
		transID:          s.refs.TransactionID(method, s.clock.Now()),
		method:           method,
		amount:           req.Amount,
		receivedAt:       req.ReceivedAt,
		accountReference: req.AccountReference,
		payerName:        req.PayerName,
	})
}

func (s *PaymentService) ingest(ctx context.Context, in paymentInput) (*PaymentIngestResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "ingest")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrClientID, in.clientID.String(),
		telemetry.SpanAttrTransID, in.transID,
		telemetry.SpanAttrAmount, in.amount.String(),
	)

	if existing, err := s.findExisting(ctx, in); err != nil || existing != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		}
		return existing, err
	}

	now := s.clock.Now()
	var transTime time.Time
	if in.receivedAt != nil {
		transTime = *in.receivedAt
	}
	payment, err := billing.NewPayment(in.organizationID, in.clientID, in.transID, in.method, in.amount, transTime, now)
	if err != nil {
		return nil, err
	}
	payment.AccountReference = in.accountReference
	payment.PayerName = in.payerName

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, billing.ErrDuplicateTransID) {
			// lost a race with a concurrent delivery of the same callback
			existing, findErr := s.findExisting(ctx, in)
			if findErr != nil {
				telemetry.RecordError(span, findErr)
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("record payment %s: %w", in.transID, err)
	}
	s.metrics.RecordPaymentReceived(ctx, string(in.method), false)
	s.logger.Info("Payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("trans_id", payment.TransID),
		zap.String("client_id", payment.ClientID.String()),
		zap.String("organization_id", payment.OrganizationID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)))

	result, allocErr := s.allocation.AllocateNewPayment(ctx, payment)
	if allocErr != nil {
		telemetry.RecordError(span, allocErr)
		s.logger.Error("Payment recorded but allocation failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("trans_id", payment.TransID),
			zap.Error(allocErr))
		return nil, fmt.Errorf("allocate payment %s: %w", payment.TransID, allocErr)
	}

	current, err := s.paymentRepo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, billing.NewPaymentReceivedEvent(current, s.clock.Now()))

	telemetry.SetOK(span)
	return &PaymentIngestResult{
		Payment:    ToPaymentResponse(current),
		Allocation: ToAllocationSummary(result),
	}, nil
}

// findExisting returns a duplicate result when the trans_id is already recorded
func (s *PaymentService) findExisting(ctx context.Context, in paymentInput) (*PaymentIngestResult, error) {
	existing, err := s.paymentRepo.FindByTransID(ctx, in.transID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if existing.OrganizationID != in.organizationID || existing.ClientID != in.clientID {
		return nil, shared.NewDomainError(billing.ErrDuplicateTransID.Code,
			fmt.Sprintf("Transaction %s is already recorded for a different client", in.transID))
	}
	s.metrics.RecordPaymentReceived(ctx, string(in.method), true)
	if existing.Status.HasCredit() && len(existing.InvoicesProcessed) == 0 {
		// stored by an earlier delivery whose allocation never committed
		return s.resumeAllocation(ctx, existing)
	}
	s.logger.Info("Duplicate payment ignored",
		zap.String("payment_id", existing.ID.String()),
		zap.String("trans_id", existing.TransID))
	return &PaymentIngestResult{
		Payment:   ToPaymentResponse(existing),
		Duplicate: true,
	}, nil
}

// resumeAllocation allocates a redelivered payment that holds credit and was never applied.
// PaymentReceived goes out only when credit actually moved, so a plain redelivery is not announced twice.
func (s *PaymentService) resumeAllocation(ctx context.Context, payment *billing.Payment) (*PaymentIngestResult, error) {
	s.logger.Info("Resuming allocation of redelivered payment",
		zap.String("payment_id", payment.ID.String()),
		zap.String("trans_id", payment.TransID))

	result, err := s.allocation.AllocateNewPayment(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("allocate payment %s: %w", payment.TransID, err)
	}
	current, err := s.paymentRepo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if result.TotalAllocated.IsPositive() {
		s.publish(ctx, billing.NewPaymentReceivedEvent(current, s.clock.Now()))
	}
	return &PaymentIngestResult{
		Payment:    ToPaymentResponse(current),
		Duplicate:  true,
		Allocation: ToAllocationSummary(result),
	}, nil
}

// GetByID returns one payment
func (s *PaymentService) GetByID(ctx context.Context, id uuid.UUID) (*PaymentResponse, error) {
	p, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(p)
	return &resp, nil
}

// ListByClient lists a client's payments, newest first
func (s *PaymentService) ListByClient(ctx context.Context, organizationID, clientID uuid.UUID, f LedgerListFilter) ([]PaymentResponse, int64, error) {
	filter := billing.PaymentFilter{
		Filter:         listFilter(f),
		OrganizationID: &organizationID,
		ClientID:       &clientID,
	}
	if f.Status != "" {
		status := billing.PaymentStatus(f.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Unknown payment status %q", f.Status))
		}
		filter.Status = &status
	}

	payments, total, err := s.paymentRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		items[i] = ToPaymentResponse(p)
	}
	return items, total, nil
}

func (s *PaymentService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish payment events", zap.Error(err))
	}
}

func listFilter(f LedgerListFilter) shared.Filter {
	filter := shared.DefaultFilter()
	if f.Page > 0 {
		filter.Page = f.Page
	}
	if f.PageSize > 0 {
		filter.PageSize = f.PageSize
	}
	return filter
}
