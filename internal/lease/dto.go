package lease

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrLeaseNotFound occurs when lease lookup fails.
var ErrLeaseNotFound = fmt.Errorf("lease: %w", shared.ErrNotFound)

// ErrScheduleExists indicates schedule rows were already generated.
var ErrScheduleExists = fmt.Errorf("lease: schedule already generated: %w", shared.ErrStateConflict)

// ErrPeriodAlreadyPosted indicates the period's depreciation/payment was booked before.
var ErrPeriodAlreadyPosted = fmt.Errorf("lease: period already posted: %w", shared.ErrStateConflict)

// CreateLeaseInput captures contract terms at signing.
type CreateLeaseInput struct {
	ContractRef        string          `json:"contract_ref" validate:"required"`
	Currency           string          `json:"currency" validate:"required,iso4217"`
	CommencementDate   time.Time       `json:"commencement_date" validate:"required"`
	TermMonths         int             `json:"term_months" validate:"required,gt=0"`
	PaymentAmount      decimal.Decimal `json:"payment_amount"`
	PaymentTiming      PaymentTiming   `json:"payment_timing" validate:"required,oneof=ADVANCE ARREARS"`
	PeriodicRate       decimal.Decimal `json:"periodic_rate"`
	InitialDirectCosts decimal.Decimal `json:"initial_direct_costs"`
	Incentives         decimal.Decimal `json:"incentives"`
	RestorationCosts   decimal.Decimal `json:"restoration_costs"`
	ActorID            int64           `json:"-"`
}

// ModifyLeaseInput mirrors ModificationInput at the API boundary.
type ModifyLeaseInput struct {
	Type               ModificationType `json:"type" validate:"required,oneof=SCOPE_DECREASE SCOPE_INCREASE TERM_CHANGE RATE_CHANGE"`
	EffectiveDate      time.Time        `json:"effective_date" validate:"required"`
	RemainingPayment   decimal.Decimal  `json:"remaining_payment"`
	RemainingPeriods   int              `json:"remaining_periods" validate:"required,gt=0"`
	RevisedRate        decimal.Decimal  `json:"revised_rate"`
	DecreaseProportion decimal.Decimal  `json:"decrease_proportion"`
	ActorID            int64            `json:"-"`
}
