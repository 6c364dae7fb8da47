package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
)

// ContractService maintains client contract terms on behalf of the organization
type ContractService struct {
	contractRepo     billing.ContractRepository
	defaultGraceDays int
	clock            shared.Clock
	logger           *zap.Logger
}

// NewContractService creates a new ContractService.
// defaultGraceDays applies to contracts upserted without a grace period.
func NewContractService(contractRepo billing.ContractRepository, defaultGraceDays int, clock shared.Clock, logger *zap.Logger) *ContractService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = shared.NewSystemClock(time.UTC)
	}
	return &ContractService{
		contractRepo:     contractRepo,
		defaultGraceDays: defaultGraceDays,
		clock:            clock,
		logger:           logger,
	}
}

// Upsert creates or replaces the client's contract terms
func (s *ContractService) Upsert(ctx context.Context, clientID uuid.UUID, req UpsertContractRequest) (*ContractResponse, error) {
	grace := s.defaultGraceDays
	if req.GracePeriodDays != nil {
		grace = *req.GracePeriodDays
	} else if existing, err := s.contractRepo.FindByClient(ctx, req.OrganizationID, clientID); err == nil {
		grace = existing.GracePeriodDays
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	contract, err := billing.NewContract(req.OrganizationID, clientID, req.MonthlyRate,
		req.ServiceStartDate, grace, req.PickupDay, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.contractRepo.Save(ctx, contract); err != nil {
		return nil, err
	}

	s.logger.Info("Contract saved",
		zap.String("client_id", clientID.String()),
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("monthly_rate", contract.MonthlyRate.StringFixed(2)),
		zap.Int("grace_period_days", contract.GracePeriodDays))
	resp := ToContractResponse(contract)
	return &resp, nil
}

// Get returns the client's contract
func (s *ContractService) Get(ctx context.Context, organizationID, clientID uuid.UUID) (*ContractResponse, error) {
	contract, err := s.contractRepo.FindByClient(ctx, organizationID, clientID)
	if err != nil {
		return nil, err
	}
	resp := ToContractResponse(contract)
	return &resp, nil
}
