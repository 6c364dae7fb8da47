package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/wasteline/backend/internal/domain/billing"
)

// LedgerService answers balance questions across both ledgers of a client
type LedgerService struct {
	invoiceRepo billing.InvoiceRepository
	paymentRepo billing.PaymentRepository
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(invoiceRepo billing.InvoiceRepository, paymentRepo billing.PaymentRepository) *LedgerService {
	return &LedgerService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
	}
}

// GetClientBalance returns what the client owes and the credit not yet applied.
// NetBalance is positive when the client owes money.
func (s *LedgerService) GetClientBalance(ctx context.Context, organizationID, clientID uuid.UUID) (*ClientBalanceResponse, error) {
	outstanding, err := s.invoiceRepo.SumOutstandingByClient(ctx, organizationID, clientID)
	if err != nil {
		return nil, err
	}
	credit, err := s.paymentRepo.SumCreditByClient(ctx, organizationID, clientID)
	if err != nil {
		return nil, err
	}
	return &ClientBalanceResponse{
		OrganizationID:     organizationID,
		ClientID:           clientID,
		OutstandingBalance: outstanding,
		UnallocatedCredit:  credit,
		NetBalance:         outstanding.Sub(credit),
	}, nil
}
