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

const (
	defaultAllocationMaxRetries   = 3
	defaultAllocationRetryBackoff = 50 * time.Millisecond
)

// AllocationService runs the FIFO allocator inside a ledger transaction.
// Each pass locks the client's ledger, reloads the candidates, mutates both
// ledgers and persists them with optimistic version checks. A concurrency
// conflict rolls the pass back and retries it; once retries are exhausted the
// caller receives ErrTransientFailure.
type AllocationService struct {
	txScope        TransactionScope
	allocator      *billing.FIFOAllocator
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	metrics        MetricsRecorder
	logger         *zap.Logger
	maxRetries     int
	retryBackoff   time.Duration
}

// AllocationServiceConfig holds the dependencies of AllocationService
type AllocationServiceConfig struct {
	TxScope        TransactionScope
	EventPublisher shared.EventPublisher
	Clock          shared.Clock
	Metrics        MetricsRecorder
	Logger         *zap.Logger
	MaxRetries     int
	RetryBackoff   time.Duration
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(cfg AllocationServiceConfig) *AllocationService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = shared.NewSystemClock(time.UTC)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultAllocationMaxRetries
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultAllocationRetryBackoff
	}
	return &AllocationService{
		txScope:        cfg.TxScope,
		allocator:      billing.NewFIFOAllocator(),
		eventPublisher: cfg.EventPublisher,
		clock:          clock,
		metrics:        metricsOrNoop(cfg.Metrics),
		logger:         logger,
		maxRetries:     maxRetries,
		retryBackoff:   backoff,
	}
}

// AllocateNewPayment applies a freshly recorded payment to the client's open invoices
func (s *AllocationService) AllocateNewPayment(ctx context.Context, payment *billing.Payment) (*billing.AllocationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate_new_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrClientID, payment.ClientID.String(),
		telemetry.SpanAttrPaymentID, payment.ID.String(),
	)

	result, err := s.withRetry(ctx, billing.AllocationModeNewPayment, func(repos TransactionalRepositories) (*billing.AllocationResult, error) {
		if err := repos.ClientLocker().LockClient(ctx, payment.OrganizationID, payment.ClientID); err != nil {
			return nil, err
		}
		current, err := repos.PaymentRepo().FindByID(ctx, payment.ID)
		if err != nil {
			return nil, fmt.Errorf("load payment %s: %w", payment.ID, err)
		}
		invoices, err := repos.InvoiceRepo().FindOpenByClient(ctx, current.OrganizationID, current.ClientID)
		if err != nil {
			return nil, fmt.Errorf("load open invoices: %w", err)
		}
		result, err := s.allocator.AllocatePayment(current, invoices, s.clock.Now())
		if err != nil {
			return nil, err
		}
		return result, persistAllocation(ctx, repos, result)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrAmount, result.TotalAllocated.String())
	telemetry.SetOK(span)
	return result, nil
}

// AllocateNewInvoice applies the client's unallocated credit to a freshly created invoice.
// A PaymentApplied event is published for every payment whose credit was consumed.
func (s *AllocationService) AllocateNewInvoice(ctx context.Context, invoice *billing.Invoice) (*billing.AllocationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate_new_invoice")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrClientID, invoice.ClientID.String(),
		telemetry.SpanAttrInvoiceID, invoice.ID.String(),
	)

	result, err := s.withRetry(ctx, billing.AllocationModeNewInvoice, func(repos TransactionalRepositories) (*billing.AllocationResult, error) {
		if err := repos.ClientLocker().LockClient(ctx, invoice.OrganizationID, invoice.ClientID); err != nil {
			return nil, err
		}
		current, err := repos.InvoiceRepo().FindByID(ctx, invoice.ID)
		if err != nil {
			return nil, fmt.Errorf("load invoice %s: %w", invoice.ID, err)
		}
		payments, err := repos.PaymentRepo().FindWithCreditByClient(ctx, current.OrganizationID, current.ClientID)
		if err != nil {
			return nil, fmt.Errorf("load payments with credit: %w", err)
		}
		result, err := s.allocator.AllocateInvoice(current, payments, s.clock.Now())
		if err != nil {
			return nil, err
		}
		return result, persistAllocation(ctx, repos, result)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishApplied(ctx, result)
	telemetry.SetAttribute(span, telemetry.SpanAttrAmount, result.TotalAllocated.String())
	telemetry.SetOK(span)
	return result, nil
}

func (s *AllocationService) withRetry(
	ctx context.Context,
	mode billing.AllocationMode,
	pass func(repos TransactionalRepositories) (*billing.AllocationResult, error),
) (*billing.AllocationResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.RecordAllocationRetry(ctx, string(mode))
			if err := sleepContext(ctx, s.retryBackoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}

		var result *billing.AllocationResult
		err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			r, err := pass(repos)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err == nil {
			s.metrics.RecordAllocation(ctx, string(mode), len(result.Lines), result.TotalAllocated)
			if !result.IsEmpty() {
				s.logger.Info("Allocation committed",
					zap.String("mode", string(mode)),
					zap.Int("lines", len(result.Lines)),
					zap.String("total_allocated", result.TotalAllocated.StringFixed(2)),
					zap.Int("attempt", attempt+1))
			}
			return result, nil
		}

		if !shared.IsConcurrencyConflict(err) {
			s.recordFailure(ctx, mode, err)
			return nil, err
		}
		lastErr = err
		s.logger.Warn("Allocation conflict, retrying",
			zap.String("mode", string(mode)),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	s.metrics.RecordAllocationFailure(ctx, string(mode), shared.CodeTransientFailure)
	s.logger.Error("Allocation retries exhausted",
		zap.String("mode", string(mode)),
		zap.Int("max_retries", s.maxRetries),
		zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %v", shared.ErrTransientFailure, lastErr)
}

func (s *AllocationService) recordFailure(ctx context.Context, mode billing.AllocationMode, err error) {
	code := "INTERNAL_ERROR"
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code = domainErr.Code
	}
	s.metrics.RecordAllocationFailure(ctx, string(mode), code)

	if shared.IsInvariantViolation(err) {
		s.logger.Error("Allocation rolled back on invariant violation",
			zap.String("mode", string(mode)),
			zap.Error(err))
		return
	}
	s.logger.Warn("Allocation failed",
		zap.String("mode", string(mode)),
		zap.Error(err))
}

func (s *AllocationService) publishApplied(ctx context.Context, result *billing.AllocationResult) {
	if s.eventPublisher == nil || result.IsEmpty() {
		return
	}
	byID := make(map[uuid.UUID]*billing.Payment, len(result.Payments))
	for _, p := range result.Payments {
		byID[p.ID] = p
	}
	now := s.clock.Now()
	events := make([]shared.DomainEvent, 0, len(result.Lines))
	for _, line := range result.Lines {
		if p, ok := byID[line.PaymentID]; ok {
			events = append(events, billing.NewPaymentAppliedEvent(p, line, now))
		}
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish payment applied events", zap.Error(err))
	}
}

// persistAllocation writes every aggregate the allocator touched
func persistAllocation(ctx context.Context, repos TransactionalRepositories, result *billing.AllocationResult) error {
	for _, inv := range result.Invoices {
		if err := repos.InvoiceRepo().SaveWithLock(ctx, inv); err != nil {
			return fmt.Errorf("save invoice %s: %w", inv.InvoiceNumber, err)
		}
	}
	for _, p := range result.Payments {
		if err := repos.PaymentRepo().SaveWithLock(ctx, p); err != nil {
			return fmt.Errorf("save payment %s: %w", p.TransID, err)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
