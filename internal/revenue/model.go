package revenue

import (
	"time"

	"github.com/shopspring/decimal"
)

// SatisfactionPattern says how an obligation's revenue is recognised.
type SatisfactionPattern string

const (
	PatternPointInTime SatisfactionPattern = "POINT_IN_TIME"
	PatternOverTime    SatisfactionPattern = "OVER_TIME"
)

// ObligationStatus enumerates the obligation lifecycle.
type ObligationStatus string

const (
	ObligationPending    ObligationStatus = "PENDING"
	ObligationInProgress ObligationStatus = "IN_PROGRESS"
	ObligationSatisfied  ObligationStatus = "SATISFIED"
)

// ConstraintMethod is the estimation method for variable consideration.
type ConstraintMethod string

const (
	MethodExpectedValue  ConstraintMethod = "EXPECTED_VALUE"
	MethodMostLikely     ConstraintMethod = "MOST_LIKELY_AMOUNT"
)

// Contract owns the transaction price and its obligations.
type Contract struct {
	ID         int64
	Reference  string
	Currency   string
	TotalPrice decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Obligation is a distinct promise within a contract, the unit of
// allocation and recognition.
type Obligation struct {
	ID                   int64
	ContractID           int64
	Name                 string
	StandaloneSellingPrice decimal.Decimal
	AllocatedPrice       decimal.Decimal
	Pattern              SatisfactionPattern
	Status               ObligationStatus
	CumulativeRecognized decimal.Decimal
	ExpectedCompletion   time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// VariableConsideration is a constrained slice of the transaction price.
// Its constraint reduces the allocatable price once resolved.
type VariableConsideration struct {
	ID              int64
	ContractID      int64
	Description     string
	EstimatedAmount decimal.Decimal
	ConstraintAmount decimal.Decimal
	Method          ConstraintMethod
	ActualAmount    *decimal.Decimal
	Resolved        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecognitionEntry is one recognised amount against an obligation, keyed
// by (obligation_id, seq).
type RecognitionEntry struct {
	ID              int64
	ObligationID    int64
	Seq             int
	RecognitionDate time.Time
	Amount          decimal.Decimal
	CumulativeAfter decimal.Decimal
	CreatedAt       time.Time
}

// PlannedEntry is one row of a straight-line recognition schedule, keyed
// by (obligation_id, period_no). Planned rows are recognised through the
// normal recognition path as they fall due.
type PlannedEntry struct {
	ID              int64
	ObligationID    int64
	PeriodNo        int
	RecognitionDate time.Time
	Amount          decimal.Decimal
	Cumulative      decimal.Decimal
	CreatedAt       time.Time
}
