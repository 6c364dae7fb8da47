package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wasteline/backend/internal/domain/billing"
)

// serviceStart makes testNow exactly one month into service
var serviceStart = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func (f *billingFixture) seedContract(t *testing.T, clientID uuid.UUID, rate string, start time.Time, grace int) {
	t.Helper()
	require.NoError(t, f.ledger.contractRepo().Save(context.Background(), &billing.Contract{
		ClientID:         clientID,
		OrganizationID:   f.orgID,
		MonthlyRate:      decimal.RequireFromString(rate),
		ServiceStartDate: &start,
		GracePeriodDays:  grace,
		UpdatedAt:        start,
	}))
}

func (f *billingFixture) generator(settings GeneratorConfig, opts ...func(*InvoiceGeneratorConfig)) *InvoiceGenerator {
	cfg := InvoiceGeneratorConfig{
		ContractRepo:   f.ledger.contractRepo(),
		InvoiceRepo:    f.ledger.invoiceRepo(),
		Invoices:       f.invoices,
		EventPublisher: f.publisher,
		Clock:          f.clock,
		Settings:       settings,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewInvoiceGenerator(cfg)
}

func TestInvoiceGenerator_SkipsContractsBeforeFirstFullMonth(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", testNow.AddDate(0, 0, -20), 5)

	report, err := f.generator(GeneratorConfig{}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.ContractsScanned)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.InvoicesCreated)
	assert.Empty(t, f.ledger.invoices)
}

func TestInvoiceGenerator_BillsOncePerCalendarMonth(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", serviceStart, 5)
	gen := f.generator(GeneratorConfig{})

	first, err := gen.Run(context.Background())
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.InvoicesCreated)
	assert.NotEmpty(t, first.RunID)
	assert.Zero(t, second.InvoicesCreated)
	assert.Equal(t, 1, second.AlreadyBilled)
	require.Len(t, f.ledger.invoices, 1)

	for _, inv := range f.ledger.invoices {
		assert.Equal(t, billing.InvoiceTypeMonthly, inv.Type)
		assert.Equal(t, "2026-08", inv.BillingMonth)
		assertDecimal(t, "45", inv.Amount)
		assert.True(t, inv.DueDate.Equal(testNow.AddDate(0, 0, 30)))
	}
	assert.Len(t, f.publisher.ofType(billing.EventTypeInvoiceCreated), 1)
}

func TestInvoiceGenerator_LateRunBillsUnderPeriodMonth(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC), 5)
	gen := f.generator(GeneratorConfig{})

	// the July 15 period is first billed on August 3
	f.clock.Set(time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC))
	late, err := gen.Run(context.Background())
	require.NoError(t, err)
	again, err := gen.Run(context.Background())
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 8, 16, 9, 0, 0, 0, time.UTC))
	next, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, late.InvoicesCreated)
	assert.Equal(t, 1, again.AlreadyBilled)
	assert.Equal(t, 1, next.InvoicesCreated)
	months := make([]string, 0, len(f.ledger.invoices))
	for _, inv := range f.ledger.invoices {
		months = append(months, inv.BillingMonth)
	}
	assert.ElementsMatch(t, []string{"2026-07", "2026-08"}, months)
}

func TestInvoiceGenerator_AppliesExistingCredit(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", serviceStart, 5)
	credit := f.seedPayment(t, "100", testNow.AddDate(0, 0, -3))

	report, err := f.generator(GeneratorConfig{}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.InvoicesCreated)
	for _, inv := range f.ledger.invoices {
		assert.Equal(t, billing.InvoiceStatusFullyPaid, inv.PaymentStatus)
	}
	p := f.ledger.payment(t, credit.ID)
	assertDecimal(t, "55", p.RemainingAmount)
	assert.Equal(t, billing.PaymentStatusPartiallyAllocated, p.Status)
}

func TestInvoiceGenerator_ResumesAllocationOfUnallocatedInvoice(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", serviceStart, 5)
	credit := f.seedPayment(t, "100", testNow.AddDate(0, 0, -3))
	gen := f.generator(GeneratorConfig{})
	f.ledger.conflicts = 100

	first, err := gen.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.InvoicesCreated)
	assert.Equal(t, 1, first.Failed)
	require.Len(t, f.ledger.invoices, 1)
	for _, inv := range f.ledger.invoices {
		assert.Equal(t, billing.InvoiceStatusUnpaid, inv.PaymentStatus)
	}

	f.ledger.conflicts = 0
	f.clock.Advance(time.Hour)
	second, err := gen.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, second.InvoicesCreated)
	assert.Equal(t, 1, second.AlreadyBilled)
	assert.Zero(t, second.Failed)
	require.Len(t, f.ledger.invoices, 1)
	for _, inv := range f.ledger.invoices {
		assert.Equal(t, billing.InvoiceStatusFullyPaid, inv.PaymentStatus)
		assert.Equal(t, billing.IDList{credit.ID}, inv.PaymentIDs)
	}
	assertDecimal(t, "55", f.ledger.payment(t, credit.ID).RemainingAmount)
}

func TestInvoiceGenerator_ResendsOverdueNoticeEveryRun(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", serviceStart, 0)
	gen := f.generator(GeneratorConfig{})

	_, err := gen.Run(context.Background())
	require.NoError(t, err)

	// still in the August billing period, three hours past the due date
	f.clock.Set(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	first, err := gen.Run(context.Background())
	require.NoError(t, err)
	second, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.OverdueNotices)
	assert.Equal(t, 1, second.OverdueNotices)
	assert.Len(t, f.publisher.ofType(billing.EventTypeInvoiceOverdue), 2)
}

func TestInvoiceGenerator_OverdueNoticeInterval(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", serviceStart, 0)
	gen := f.generator(GeneratorConfig{OverdueNoticeInterval: 24 * time.Hour}, func(cfg *InvoiceGeneratorConfig) {
		cfg.NoticeStore = newMemNoticeStore()
	})

	_, err := gen.Run(context.Background())
	require.NoError(t, err)
	f.clock.Set(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	first, err := gen.Run(context.Background())
	require.NoError(t, err)
	second, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.OverdueNotices)
	assert.Zero(t, second.OverdueNotices)
}

func TestInvoiceGenerator_FailedOverdueNoticeIsRetried(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", serviceStart, 0)
	metrics := &notificationMetrics{}
	gen := f.generator(GeneratorConfig{OverdueNoticeInterval: 24 * time.Hour}, func(cfg *InvoiceGeneratorConfig) {
		cfg.NoticeStore = newMemNoticeStore()
		cfg.Metrics = metrics
	})

	_, err := gen.Run(context.Background())
	require.NoError(t, err)
	f.clock.Set(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))

	f.publisher.failOn(billing.EventTypeInvoiceOverdue)
	failed, err := gen.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, failed.OverdueNotices)
	assert.Zero(t, failed.Failed)
	assert.Equal(t, 1, failed.AlreadyBilled)
	assert.Equal(t, 1, metrics.failures[billing.EventTypeInvoiceOverdue])

	f.publisher.failOn("")
	retried, err := gen.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, retried.OverdueNotices)

	throttled, err := gen.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, throttled.OverdueNotices)
	assert.Len(t, f.publisher.ofType(billing.EventTypeInvoiceOverdue), 1)
}

func TestInvoiceGenerator_NotOverdueWithinGrace(t *testing.T) {
	f := newBillingFixture(t)
	f.seedContract(t, f.clientID, "45", serviceStart, 5)
	gen := f.generator(GeneratorConfig{})

	_, err := gen.Run(context.Background())
	require.NoError(t, err)
	f.clock.Set(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	report, err := gen.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, report.OverdueNotices)
	assert.Equal(t, 1, report.AlreadyBilled)
}

func TestInvoiceGenerator_FailuresAreCountedNotFatal(t *testing.T) {
	f := newBillingFixture(t)
	badRate := uuid.New()
	panics := uuid.New()
	f.seedContract(t, badRate, "10.005", serviceStart, 5)
	f.seedContract(t, panics, "45", serviceStart, 5)
	f.seedContract(t, f.clientID, "45", serviceStart, 5)
	f.ledger.panicFor = panics

	report, err := f.generator(GeneratorConfig{}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.ContractsScanned)
	assert.Equal(t, 1, report.InvoicesCreated)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Failures, 2)
	failedClients := []uuid.UUID{report.Failures[0].ClientID, report.Failures[1].ClientID}
	assert.ElementsMatch(t, []uuid.UUID{badRate, panics}, failedClients)
}

func TestInvoiceGenerator_RunLock(t *testing.T) {
	t.Run("overlapping run is refused", func(t *testing.T) {
		f := newBillingFixture(t)
		locker := new(MockRunLocker)
		locker.On("TryLock", mock.Anything, InvoiceGenerationJobName, 10*time.Minute).Return(false, nil)
		gen := f.generator(GeneratorConfig{}, func(cfg *InvoiceGeneratorConfig) { cfg.RunLocker = locker })

		_, err := gen.Run(context.Background())
		assert.ErrorIs(t, err, ErrGenerationInProgress)
		assert.NoError(t, gen.Execute(context.Background()))
		locker.AssertNotCalled(t, "Unlock", mock.Anything, mock.Anything)
	})

	t.Run("lock is released after the run", func(t *testing.T) {
		f := newBillingFixture(t)
		locker := new(MockRunLocker)
		locker.On("TryLock", mock.Anything, InvoiceGenerationJobName, 10*time.Minute).Return(true, nil)
		locker.On("Unlock", mock.Anything, InvoiceGenerationJobName).Return(nil)
		gen := f.generator(GeneratorConfig{}, func(cfg *InvoiceGeneratorConfig) { cfg.RunLocker = locker })

		_, err := gen.Run(context.Background())
		require.NoError(t, err)
		locker.AssertExpectations(t)
	})
}
