package billing

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/telemetry"
)

// InvoiceGenerationJobName keys the generator's run-lock and its cron entry
const InvoiceGenerationJobName = "invoice-generation"

// ErrGenerationInProgress is returned when another run holds the run-lock
var ErrGenerationInProgress = errors.New("invoice generation: run already in progress")

// GeneratorConfig tunes the invoice generator
type GeneratorConfig struct {
	InvoiceDueDays int
	RunLockTTL     time.Duration
	// OverdueNoticeInterval suppresses repeat overdue notices for an invoice within
	// the interval. Zero re-sends on every run.
	OverdueNoticeInterval time.Duration
}

// DefaultGeneratorConfig returns the default generator settings
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		InvoiceDueDays: 30,
		RunLockTTL:     10 * time.Minute,
	}
}

type contractOutcome int

const (
	outcomeSkipped contractOutcome = iota
	outcomeCreated
	outcomeAlreadyBilled
	outcomeOverdue
)

// InvoiceGenerator bills every billable contract once per calendar month and
// re-announces overdue monthly invoices. Contracts are processed sequentially;
// a failing contract is logged and counted without stopping the run.
type InvoiceGenerator struct {
	contractRepo   billing.ContractRepository
	invoiceRepo    billing.InvoiceRepository
	invoices       *InvoiceService
	runLocker      shared.RunLocker
	noticeStore    shared.IdempotencyStore
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	metrics        MetricsRecorder
	logger         *zap.Logger
	config         GeneratorConfig
}

// InvoiceGeneratorConfig holds the dependencies of InvoiceGenerator
type InvoiceGeneratorConfig struct {
	ContractRepo   billing.ContractRepository
	InvoiceRepo    billing.InvoiceRepository
	Invoices       *InvoiceService
	RunLocker      shared.RunLocker
	NoticeStore    shared.IdempotencyStore
	EventPublisher shared.EventPublisher
	Clock          shared.Clock
	Metrics        MetricsRecorder
	Logger         *zap.Logger
	Settings       GeneratorConfig
}

// NewInvoiceGenerator creates a new InvoiceGenerator
func NewInvoiceGenerator(cfg InvoiceGeneratorConfig) *InvoiceGenerator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = shared.NewSystemClock(time.UTC)
	}
	settings := cfg.Settings
	defaults := DefaultGeneratorConfig()
	if settings.InvoiceDueDays <= 0 {
		settings.InvoiceDueDays = defaults.InvoiceDueDays
	}
	if settings.RunLockTTL <= 0 {
		settings.RunLockTTL = defaults.RunLockTTL
	}
	return &InvoiceGenerator{
		contractRepo:   cfg.ContractRepo,
		invoiceRepo:    cfg.InvoiceRepo,
		invoices:       cfg.Invoices,
		runLocker:      cfg.RunLocker,
		noticeStore:    cfg.NoticeStore,
		eventPublisher: cfg.EventPublisher,
		clock:          clock,
		metrics:        metricsOrNoop(cfg.Metrics),
		logger:         logger,
		config:         settings,
	}
}

// Name returns the job name
func (g *InvoiceGenerator) Name() string {
	return InvoiceGenerationJobName
}

// Execute runs the generator for the scheduler. An overlapping run is not an error.
func (g *InvoiceGenerator) Execute(ctx context.Context) error {
	_, err := g.Run(ctx)
	if errors.Is(err, ErrGenerationInProgress) {
		g.logger.Debug("Invoice generation skipped, previous run still active")
		return nil
	}
	return err
}

// Run performs one generation pass and reports what it did
func (g *InvoiceGenerator) Run(ctx context.Context) (*GenerationReport, error) {
	if g.runLocker != nil {
		acquired, err := g.runLocker.TryLock(ctx, InvoiceGenerationJobName, g.config.RunLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire run-lock: %w", err)
		}
		if !acquired {
			return nil, ErrGenerationInProgress
		}
		defer func() {
			if err := g.runLocker.Unlock(context.WithoutCancel(ctx), InvoiceGenerationJobName); err != nil {
				g.logger.Warn("Failed to release run-lock", zap.Error(err))
			}
		}()
	}

	now := g.clock.Now()
	report := &GenerationReport{
		RunID:     ulid.Make().String(),
		StartedAt: now,
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice_generator", "run",
		telemetry.WithAttribute("run_id", report.RunID))
	defer span.End()
	log := g.logger.With(zap.String("run_id", report.RunID))

	contracts, err := g.contractRepo.FindBillable(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load billable contracts: %w", err)
	}

	for _, contract := range contracts {
		if ctx.Err() != nil {
			break
		}
		report.ContractsScanned++

		outcome, err := g.processContract(ctx, contract, now, log)
		switch outcome {
		case outcomeSkipped:
			if err == nil {
				report.Skipped++
			}
		case outcomeCreated:
			report.InvoicesCreated++
		case outcomeAlreadyBilled:
			report.AlreadyBilled++
		case outcomeOverdue:
			report.AlreadyBilled++
			report.OverdueNotices++
		}
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, GenerationFailure{
				OrganizationID: contract.OrganizationID,
				ClientID:       contract.ClientID,
				Error:          err.Error(),
			})
			log.Error("Contract billing failed",
				zap.String("client_id", contract.ClientID.String()),
				zap.String("organization_id", contract.OrganizationID.String()),
				zap.Error(err))
		}
	}

	report.FinishedAt = g.clock.Now()
	g.metrics.RecordGeneratorRun(ctx, report.InvoicesCreated, report.AlreadyBilled, report.Failed,
		report.FinishedAt.Sub(report.StartedAt))
	telemetry.SetAttributes(span,
		"contracts_scanned", report.ContractsScanned,
		"invoices_created", report.InvoicesCreated,
		"overdue_notices", report.OverdueNotices,
		"failed", report.Failed,
	)
	telemetry.SetOK(span)
	log.Info("Invoice generation finished",
		zap.Int("contracts_scanned", report.ContractsScanned),
		zap.Int("skipped", report.Skipped),
		zap.Int("invoices_created", report.InvoicesCreated),
		zap.Int("already_billed", report.AlreadyBilled),
		zap.Int("overdue_notices", report.OverdueNotices),
		zap.Int("failed", report.Failed))
	return report, nil
}

// processContract bills or re-announces one contract. Panics are converted to errors.
func (g *InvoiceGenerator) processContract(
	ctx context.Context,
	contract *billing.Contract,
	now time.Time,
	log *zap.Logger,
) (outcome contractOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while billing contract",
				zap.String("client_id", contract.ClientID.String()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			outcome = outcomeSkipped
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !contract.IsBillable() {
		return outcomeSkipped, nil
	}
	period, ok := contract.CurrentBillingPeriod(now)
	if !ok {
		return outcomeSkipped, nil
	}

	existing, err := g.invoiceRepo.FindMonthlyForPeriod(ctx, contract.OrganizationID, contract.ClientID, billing.MonthKey(period))
	switch {
	case err == nil:
		if existing.PaymentStatus == billing.InvoiceStatusUnpaid && len(existing.PaymentIDs) == 0 {
			if existing, err = g.resumeAllocation(ctx, existing); err != nil {
				return outcomeAlreadyBilled, err
			}
		}
		return g.checkOverdue(ctx, contract, existing, now)
	case !errors.Is(err, shared.ErrNotFound):
		return outcomeSkipped, fmt.Errorf("look up monthly invoice: %w", err)
	}

	inv, _, err := g.invoices.CreateMonthly(ctx, contract, period, g.config.InvoiceDueDays)
	if inv == nil {
		if errors.Is(err, billing.ErrPeriodAlreadyBilled) {
			return outcomeAlreadyBilled, nil
		}
		return outcomeSkipped, err
	}
	return outcomeCreated, err
}

// resumeAllocation retries the credit pass for a period invoice left unallocated by an earlier run
func (g *InvoiceGenerator) resumeAllocation(ctx context.Context, inv *billing.Invoice) (*billing.Invoice, error) {
	result, err := g.invoices.ResumeAllocation(ctx, inv)
	if err != nil {
		return inv, err
	}
	if !result.TotalAllocated.IsPositive() {
		return inv, nil
	}
	return g.invoiceRepo.FindByID(ctx, inv.ID)
}

// checkOverdue emits an overdue notice when the invoice is past the contract's grace
func (g *InvoiceGenerator) checkOverdue(
	ctx context.Context,
	contract *billing.Contract,
	inv *billing.Invoice,
	now time.Time,
) (contractOutcome, error) {
	if !inv.IsOverdue(now, contract.GracePeriodDays) {
		return outcomeAlreadyBilled, nil
	}

	key := "overdue:" + inv.ID.String()
	throttled := g.config.OverdueNoticeInterval > 0 && g.noticeStore != nil
	if throttled {
		sent, err := g.noticeStore.IsProcessed(ctx, key)
		if err != nil {
			return outcomeAlreadyBilled, fmt.Errorf("check overdue notice: %w", err)
		}
		if sent {
			return outcomeAlreadyBilled, nil
		}
	}

	if g.eventPublisher != nil {
		event := billing.NewInvoiceOverdueEvent(inv, contract.GracePeriodDays, now)
		if err := g.eventPublisher.Publish(ctx, event); err != nil {
			// not marked, so the next run sends it again
			g.metrics.RecordNotification(ctx, billing.EventTypeInvoiceOverdue, err)
			g.logger.Warn("Failed to publish overdue notice",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("client_id", inv.ClientID.String()),
				zap.Error(err))
			return outcomeAlreadyBilled, nil
		}
	}
	if throttled {
		if _, err := g.noticeStore.MarkProcessed(ctx, key, g.config.OverdueNoticeInterval); err != nil {
			g.logger.Warn("Failed to mark overdue notice",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err))
		}
	}
	g.metrics.RecordOverdueNotice(ctx)
	return outcomeOverdue, nil
}
