package instruments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrGuaranteeNotFound occurs when guarantee lookup fails.
	ErrGuaranteeNotFound = fmt.Errorf("instruments: guarantee %w", shared.ErrNotFound)
	// ErrLCNotFound occurs when letter of credit lookup fails.
	ErrLCNotFound = fmt.Errorf("instruments: letter of credit %w", shared.ErrNotFound)
	// ErrUtilizationNotFound occurs when utilization lookup fails.
	ErrUtilizationNotFound = fmt.Errorf("instruments: utilization %w", shared.ErrNotFound)
	// ErrAmendmentNotFound occurs when amendment lookup fails.
	ErrAmendmentNotFound = fmt.Errorf("instruments: amendment %w", shared.ErrNotFound)
	// ErrChequeNotFound occurs when cheque lookup fails.
	ErrChequeNotFound = fmt.Errorf("instruments: cheque %w", shared.ErrNotFound)
	// ErrLimitExceeded indicates a drawing beyond the tolerance ceiling.
	ErrLimitExceeded = fmt.Errorf("instruments: utilization exceeds available amount: %w", shared.ErrLimitExceeded)
	// ErrInstrumentBusy indicates another caller holds the instrument lock.
	ErrInstrumentBusy = fmt.Errorf("instruments: instrument busy: %w", shared.ErrStateConflict)
)

// CreateGuaranteeInput issues a bank guarantee.
type CreateGuaranteeInput struct {
	Reference   string          `json:"reference" validate:"required"`
	Beneficiary string          `json:"beneficiary" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,iso4217"`
	IssueDate   time.Time       `json:"issue_date" validate:"required"`
	ExpiryDate  time.Time       `json:"expiry_date" validate:"required"`
}

// AmendGuaranteeInput changes a guarantee's amount.
type AmendGuaranteeInput struct {
	Amount  decimal.Decimal `json:"amount"`
	ActorID int64           `json:"-"`
}

// RenewGuaranteeInput extends a guarantee's expiry.
type RenewGuaranteeInput struct {
	ExpiryDate time.Time `json:"expiry_date" validate:"required"`
	ActorID    int64     `json:"-"`
}

// CreateLCInput issues a letter of credit.
type CreateLCInput struct {
	Reference        string          `json:"reference" validate:"required"`
	Applicant        string          `json:"applicant" validate:"required"`
	Beneficiary      string          `json:"beneficiary" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	TolerancePercent decimal.Decimal `json:"tolerance_percent"`
	Currency         string          `json:"currency" validate:"required,iso4217"`
	IssueDate        time.Time       `json:"issue_date" validate:"required"`
	ExpiryDate       time.Time       `json:"expiry_date" validate:"required"`
}

// UtilizationInput requests a drawing under a letter of credit.
type UtilizationInput struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	ActorID   int64           `json:"-"`
}

// AmendmentInput proposes an LC amendment.
type AmendmentInput struct {
	NewAmount *decimal.Decimal `json:"new_amount"`
	NewExpiry *time.Time       `json:"new_expiry"`
	ActorID   int64            `json:"-"`
}

// CreateChequeInput registers a cheque.
type CreateChequeInput struct {
	Kind     ChequeKind      `json:"kind" validate:"required,oneof=ISSUED RECEIVED"`
	Number   string          `json:"number" validate:"required"`
	Party    string          `json:"party" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,iso4217"`
	DueDate  time.Time       `json:"due_date" validate:"required"`
}
