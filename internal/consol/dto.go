package consol

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrGroupNotFound occurs when group lookup fails.
	ErrGroupNotFound = fmt.Errorf("consol: group %w", shared.ErrNotFound)
	// ErrEntityNotFound occurs when entity lookup fails.
	ErrEntityNotFound = fmt.Errorf("consol: entity %w", shared.ErrNotFound)
	// ErrRunNotFound occurs when run lookup fails.
	ErrRunNotFound = fmt.Errorf("consol: run %w", shared.ErrNotFound)
	// ErrRunConflict indicates a non-error run already exists for the period.
	ErrRunConflict = fmt.Errorf("consol: run already exists for period: %w", shared.ErrStateConflict)
	// ErrRunInProgress indicates another run for the same key holds the lock.
	ErrRunInProgress = fmt.Errorf("consol: run in progress: %w", shared.ErrStateConflict)
)

// CreateGroupInput creates a consolidation group.
type CreateGroupInput struct {
	Name              string `json:"name" validate:"required"`
	ReportingCurrency string `json:"reporting_currency" validate:"required,iso4217"`
}

// AddEntityInput enrols a legal entity as a group member.
type AddEntityInput struct {
	Name             string    `json:"name" validate:"required"`
	Currency         string    `json:"currency" validate:"required,iso4217"`
	EquityOriginDate time.Time `json:"equity_origin_date" validate:"required"`
}

// AddIntercompanyInput records a cross-entity transaction for later
// elimination.
type AddIntercompanyInput struct {
	FromEntityID int64   `json:"from_entity_id" validate:"required"`
	ToEntityID   int64   `json:"to_entity_id" validate:"required,nefield=FromEntityID"`
	Amount       float64 `json:"amount" validate:"required,gt=0"`
	Currency     string  `json:"currency" validate:"required,iso4217"`
	ExchangeRate float64 `json:"exchange_rate" validate:"gte=0"`
}

// RunInput starts a consolidation run for one period.
type RunInput struct {
	Period  string `json:"period" validate:"required,len=7"`
	ActorID int64  `json:"-"`
}
