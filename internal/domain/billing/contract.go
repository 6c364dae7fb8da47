package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/domain/shared/valueobject"
)

// MaxGracePeriodDays bounds the per-contract grace period
const MaxGracePeriodDays = 30

// Contract holds a client's recurring billing terms.
// The billing core only reads contracts; edits come from the organization.
type Contract struct {
	ClientID         uuid.UUID
	OrganizationID   uuid.UUID
	MonthlyRate      decimal.Decimal
	ServiceStartDate *time.Time
	GracePeriodDays  int
	PickupDay        string
	UpdatedAt        time.Time
}

// NewContract validates and builds contract terms
func NewContract(
	organizationID, clientID uuid.UUID,
	monthlyRate decimal.Decimal,
	serviceStartDate *time.Time,
	gracePeriodDays int,
	pickupDay string,
	at time.Time,
) (*Contract, error) {
	c := &Contract{
		ClientID:         clientID,
		OrganizationID:   organizationID,
		MonthlyRate:      monthlyRate,
		ServiceStartDate: serviceStartDate,
		GracePeriodDays:  gracePeriodDays,
		PickupDay:        pickupDay,
		UpdatedAt:        at,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the contract terms
func (c *Contract) Validate() error {
	if c.ClientID == uuid.Nil {
		return shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if c.OrganizationID == uuid.Nil {
		return shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if _, err := valueobject.NewPositiveMoney(c.MonthlyRate); err != nil {
		return shared.NewDomainError("INVALID_AMOUNT", "Monthly rate must be a positive amount with at most 2 decimals")
	}
	if c.GracePeriodDays < 0 || c.GracePeriodDays > MaxGracePeriodDays {
		return shared.NewDomainError("INVALID_GRACE_PERIOD", "Grace period must be between 0 and 30 days")
	}
	return nil
}

// IsBillable reports whether the generator should consider this contract
func (c *Contract) IsBillable() bool {
	return c.MonthlyRate.IsPositive() && c.ServiceStartDate != nil && !c.ServiceStartDate.IsZero()
}

// MonthsElapsed returns the number of whole months of service completed at now
func (c *Contract) MonthsElapsed(now time.Time) int {
	if c.ServiceStartDate == nil {
		return 0
	}
	return MonthsBetween(*c.ServiceStartDate, now)
}

// CurrentBillingPeriod returns the start of the billing period containing now.
// ok is false until the first full month of service has elapsed.
func (c *Contract) CurrentBillingPeriod(now time.Time) (period time.Time, ok bool) {
	months := c.MonthsElapsed(now)
	if months < 1 {
		return time.Time{}, false
	}
	return AddMonths(*c.ServiceStartDate, months), true
}
