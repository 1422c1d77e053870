package revenue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrContractNotFound occurs when contract lookup fails.
	ErrContractNotFound = fmt.Errorf("revenue: contract %w", shared.ErrNotFound)
	// ErrObligationNotFound occurs when obligation lookup fails.
	ErrObligationNotFound = fmt.Errorf("revenue: obligation %w", shared.ErrNotFound)
	// ErrConsiderationNotFound occurs when variable consideration lookup fails.
	ErrConsiderationNotFound = fmt.Errorf("revenue: variable consideration %w", shared.ErrNotFound)
	// ErrAlreadyRecognized indicates a point-in-time obligation with a prior entry.
	ErrAlreadyRecognized = fmt.Errorf("revenue: obligation already recognised: %w", shared.ErrStateConflict)
	// ErrAlreadyResolved indicates a second resolution attempt.
	ErrAlreadyResolved = fmt.Errorf("revenue: consideration already resolved: %w", shared.ErrStateConflict)
	// ErrScheduleExists indicates planned rows were already generated.
	ErrScheduleExists = fmt.Errorf("revenue: recognition schedule already generated: %w", shared.ErrStateConflict)
	// ErrExceedsAllocation indicates recognition beyond the allocated price.
	ErrExceedsAllocation = fmt.Errorf("revenue: amount exceeds allocated price: %w", shared.ErrInvalidInput)
)

// ObligationInput describes one promise at contract creation.
type ObligationInput struct {
	Name                   string              `json:"name" validate:"required"`
	StandaloneSellingPrice decimal.Decimal     `json:"standalone_selling_price"`
	Pattern                SatisfactionPattern `json:"pattern" validate:"required,oneof=POINT_IN_TIME OVER_TIME"`
	ExpectedCompletion     time.Time           `json:"expected_completion"`
}

// CreateContractInput captures a revenue contract and its obligations.
type CreateContractInput struct {
	Reference   string            `json:"reference" validate:"required"`
	Currency    string            `json:"currency" validate:"required,iso4217"`
	TotalPrice  decimal.Decimal   `json:"total_price"`
	StartDate   time.Time         `json:"start_date" validate:"required"`
	EndDate     time.Time         `json:"end_date" validate:"required"`
	Obligations []ObligationInput `json:"obligations" validate:"required,min=1,dive"`
	ActorID     int64             `json:"-"`
}

// AddConsiderationInput registers an estimated variable slice of the price.
type AddConsiderationInput struct {
	Description      string           `json:"description" validate:"required"`
	EstimatedAmount  decimal.Decimal  `json:"estimated_amount"`
	ConstraintAmount decimal.Decimal  `json:"constraint_amount"`
	Method           ConstraintMethod `json:"method" validate:"required,oneof=EXPECTED_VALUE MOST_LIKELY_AMOUNT"`
}

// ResolveConsiderationInput settles a variable consideration at its actual amount.
type ResolveConsiderationInput struct {
	ActualAmount decimal.Decimal `json:"actual_amount"`
	ActorID      int64           `json:"-"`
}

// ObligationAllocation is one line of an allocation result.
type ObligationAllocation struct {
	ObligationID   int64           `json:"obligation_id"`
	Name           string          `json:"name"`
	AllocatedPrice decimal.Decimal `json:"allocated_price"`
}

// RecognizeInput recognises a concrete amount against an obligation.
type RecognizeInput struct {
	Amount  decimal.Decimal `json:"amount"`
	Date    time.Time       `json:"date"`
	ActorID int64           `json:"-"`
}

// ProgressInput recognises up to a measured percentage of completion.
type ProgressInput struct {
	ProgressPercent decimal.Decimal `json:"progress_percent"`
	Date            time.Time       `json:"date"`
	ActorID         int64           `json:"-"`
}
