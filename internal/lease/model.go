package lease

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the lease lifecycle.
type Status string

const (
	// StatusDraft is a lease created at contract signing, not yet recognised.
	StatusDraft Status = "DRAFT"
	// StatusActive is a lease carrying a recognised liability and ROU asset.
	StatusActive Status = "ACTIVE"
	// StatusTerminated is the terminal state at term end or early termination.
	StatusTerminated Status = "TERMINATED"
)

// PaymentTiming says whether periodic payments fall due at period start or end.
type PaymentTiming string

const (
	TimingAdvance PaymentTiming = "ADVANCE"
	TimingArrears PaymentTiming = "ARREARS"
)

// ModificationType classifies a renegotiation event.
type ModificationType string

const (
	ModificationScopeDecrease ModificationType = "SCOPE_DECREASE"
	ModificationScopeIncrease ModificationType = "SCOPE_INCREASE"
	ModificationTermChange    ModificationType = "TERM_CHANGE"
	ModificationRateChange    ModificationType = "RATE_CHANGE"
)

// Lease is the aggregate consumed by the amortization engine.
type Lease struct {
	ID               int64
	ContractRef      string
	Currency         string
	Status           Status
	CommencementDate time.Time
	TermMonths       int
	PaymentAmount    decimal.Decimal
	PaymentTiming    PaymentTiming
	// PeriodicRate is the discount rate per payment period, e.g. 0.01 for
	// 1% a month. Zero and negative rates are valid.
	PeriodicRate       decimal.Decimal
	InitialDirectCosts decimal.Decimal
	Incentives         decimal.Decimal
	RestorationCosts   decimal.Decimal

	// Computed at initial recognition.
	Liability               decimal.Decimal
	RightOfUseAsset         decimal.Decimal
	AccumulatedDepreciation decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleEntry is one period of the amortization schedule, keyed by
// (lease_id, period_no).
type ScheduleEntry struct {
	ID             int64
	LeaseID        int64
	PeriodNo       int
	DueDate        time.Time
	Payment        decimal.Decimal
	Interest       decimal.Decimal
	Principal      decimal.Decimal
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	CreatedAt      time.Time
}

// Modification records one renegotiation event against a lease.
type Modification struct {
	ID               int64
	LeaseID          int64
	Type             ModificationType
	EffectiveDate    time.Time
	RevisedLiability decimal.Decimal
	RouAdjustment    decimal.Decimal
	GainLoss         decimal.Decimal
	CreatedAt        time.Time
}
