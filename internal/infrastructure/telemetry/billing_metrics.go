package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Billing metric attribute keys
var (
	AttrInvoiceType   = attribute.Key("invoice_type")
	AttrPaymentMethod = attribute.Key("payment_method")
	AttrDuplicate     = attribute.Key("duplicate")
	AttrMode          = attribute.Key("mode")
	AttrErrorCode     = attribute.Key("error_code")
	AttrEventType     = attribute.Key("event_type")
	AttrOutcome       = attribute.Key("outcome")
)

// BillingMetrics records ledger activity as OpenTelemetry instruments.
type BillingMetrics struct {
	invoicesCreated    metric.Int64Counter
	paymentsReceived   metric.Int64Counter
	allocations        metric.Int64Counter
	allocationLines    metric.Int64Counter
	allocatedAmount    metric.Float64Histogram
	allocationRetries  metric.Int64Counter
	allocationFailures metric.Int64Counter
	overdueNotices     metric.Int64Counter
	generatorRuns      metric.Int64Counter
	generatorInvoices  metric.Int64Counter
	generatorDuration  metric.Float64Histogram
	notificationsSent  metric.Int64Counter
}

// NewBillingMetrics creates the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	m := &BillingMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.invoicesCreated, "billing_invoices_created_total", "Invoices written to the ledger"},
		{&m.paymentsReceived, "billing_payments_received_total", "Payment ingests, including duplicates"},
		{&m.allocations, "billing_allocations_total", "Committed allocation runs"},
		{&m.allocationLines, "billing_allocation_lines_total", "Invoice/payment pairs settled by allocation"},
		{&m.allocationRetries, "billing_allocation_retries_total", "Allocation attempts retried after a conflict"},
		{&m.allocationFailures, "billing_allocation_failures_total", "Allocation runs that gave up"},
		{&m.overdueNotices, "billing_overdue_notices_total", "Overdue notices emitted"},
		{&m.generatorRuns, "billing_generator_runs_total", "Invoice generator runs"},
		{&m.generatorInvoices, "billing_generator_contracts_total", "Contracts processed by the generator by outcome"},
		{&m.notificationsSent, "billing_notifications_total", "Notification deliveries by outcome"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if m.allocatedAmount, err = meter.Float64Histogram("billing_allocated_amount",
		metric.WithDescription("Money moved per allocation run"),
		metric.WithExplicitBucketBoundaries(AmountBuckets...)); err != nil {
		return nil, err
	}
	if m.generatorDuration, err = meter.Float64Histogram("billing_generator_duration_seconds",
		metric.WithDescription("Invoice generator run duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DurationBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *BillingMetrics) RecordInvoiceCreated(ctx context.Context, invoiceType string) {
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(AttrInvoiceType.String(invoiceType)))
}

func (m *BillingMetrics) RecordPaymentReceived(ctx context.Context, method string, duplicate bool) {
	m.paymentsReceived.Add(ctx, 1, metric.WithAttributes(
		AttrPaymentMethod.String(method),
		AttrDuplicate.Bool(duplicate),
	))
}

func (m *BillingMetrics) RecordAllocation(ctx context.Context, mode string, lines int, amount decimal.Decimal) {
	attrs := metric.WithAttributes(AttrMode.String(mode))
	m.allocations.Add(ctx, 1, attrs)
	m.allocationLines.Add(ctx, int64(lines), attrs)
	m.allocatedAmount.Record(ctx, amount.InexactFloat64(), attrs)
}

func (m *BillingMetrics) RecordAllocationRetry(ctx context.Context, mode string) {
	m.allocationRetries.Add(ctx, 1, metric.WithAttributes(AttrMode.String(mode)))
}

func (m *BillingMetrics) RecordAllocationFailure(ctx context.Context, mode, code string) {
	m.allocationFailures.Add(ctx, 1, metric.WithAttributes(AttrMode.String(mode), AttrErrorCode.String(code)))
}

func (m *BillingMetrics) RecordOverdueNotice(ctx context.Context) {
	m.overdueNotices.Add(ctx, 1)
}

func (m *BillingMetrics) RecordGeneratorRun(ctx context.Context, created, alreadyBilled, failed int, elapsed time.Duration) {
	m.generatorRuns.Add(ctx, 1)
	m.generatorInvoices.Add(ctx, int64(created), metric.WithAttributes(AttrOutcome.String("created")))
	m.generatorInvoices.Add(ctx, int64(alreadyBilled), metric.WithAttributes(AttrOutcome.String("already_billed")))
	m.generatorInvoices.Add(ctx, int64(failed), metric.WithAttributes(AttrOutcome.String("failed")))
	m.generatorDuration.Record(ctx, elapsed.Seconds())
}

func (m *BillingMetrics) RecordNotification(ctx context.Context, eventType string, err error) {
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.notificationsSent.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType), AttrOutcome.String(outcome)))
}
