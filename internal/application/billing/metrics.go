package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MetricsRecorder receives billing counters. The telemetry package provides the
// OpenTelemetry implementation; services fall back to a no-op recorder.
type MetricsRecorder interface {
	RecordInvoiceCreated(ctx context.Context, invoiceType string)
	RecordPaymentReceived(ctx context.Context, method string, duplicate bool)
	RecordAllocation(ctx context.Context, mode string, lines int, amount decimal.Decimal)
	RecordAllocationRetry(ctx context.Context, mode string)
	RecordAllocationFailure(ctx context.Context, mode string, code string)
	RecordOverdueNotice(ctx context.Context)
	RecordGeneratorRun(ctx context.Context, created, alreadyBilled, failed int, elapsed time.Duration)
	RecordNotification(ctx context.Context, eventType string, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordInvoiceCreated(context.Context, string) {}
func (noopMetrics) RecordPaymentReceived(context.Context, string, bool) {}
func (noopMetrics) RecordAllocation(context.Context, string, int, decimal.Decimal) {}
func (noopMetrics) RecordAllocationRetry(context.Context, string) {}
func (noopMetrics) RecordAllocationFailure(context.Context, string, string) {}
func (noopMetrics) RecordOverdueNotice(context.Context) {}
func (noopMetrics) RecordGeneratorRun(context.Context, int, int, int, time.Duration) {}
func (noopMetrics) RecordNotification(context.Context, string, error) {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
