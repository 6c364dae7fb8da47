package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/telemetry"
)

// AgingService answers overdue and aging queries with the system-wide grace period
type AgingService struct {
	invoiceRepo billing.InvoiceRepository
	graceDays   int
	clock       shared.Clock
}

// NewAgingService creates a new AgingService
func NewAgingService(invoiceRepo billing.InvoiceRepository, graceDays int, clock shared.Clock) *AgingService {
	if clock == nil {
		clock = shared.NewSystemClock(time.UTC)
	}
	return &AgingService{
		invoiceRepo: invoiceRepo,
		graceDays:   graceDays,
		clock:       clock,
	}
}

// Report builds the aging report, for one organization or all when organizationID is nil
func (s *AgingService) Report(ctx context.Context, organizationID *uuid.UUID) (*AgingReportResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "aging", "report")
	defer span.End()

	invoices, err := s.invoiceRepo.FindOpen(ctx, organizationID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	report := billing.BuildAgingReport(invoices, s.clock.Now(), s.graceDays)
	resp := ToAgingReportResponse(report, organizationID)
	telemetry.SetAttribute(span, "overdue_count", report.TotalCount)
	telemetry.SetOK(span)
	return &resp, nil
}

// ListOverdue lists overdue invoices, most overdue first
func (s *AgingService) ListOverdue(ctx context.Context, organizationID *uuid.UUID) ([]OverdueInvoiceResponse, error) {
	invoices, err := s.invoiceRepo.FindOpen(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	overdue := billing.DetectOverdue(invoices, s.clock.Now(), s.graceDays)
	items := make([]OverdueInvoiceResponse, len(overdue))
	for i, o := range overdue {
		items[i] = OverdueInvoiceResponse{
			InvoiceID:     o.InvoiceID,
			InvoiceNumber: o.InvoiceNumber,
			ClientID:      o.ClientID,
			DueDate:       o.DueDate,
			DaysOverdue:   o.DaysOverdue,
			Outstanding:   o.Outstanding,
		}
	}
	return items, nil
}
