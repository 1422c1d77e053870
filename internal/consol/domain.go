package consol

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/consol/fx"
)

// AccountType drives which FX method applies during translation.
type AccountType string

const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIABILITY"
	TypeEquity    AccountType = "EQUITY"
	TypeRevenue   AccountType = "REVENUE"
	TypeExpense   AccountType = "EXPENSE"
)

// RunStatus is the consolidation run lifecycle. Both completed and error
// are terminal.
type RunStatus string

const (
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunError      RunStatus = "error"
)

// Group is a reporting perimeter: one reporting currency over member
// entities.
type Group struct {
	ID                int64
	Name              string
	ReportingCurrency string
	CreatedAt         time.Time
}

// Entity wraps one legal entity's ledger inside a group.
type Entity struct {
	ID               int64
	GroupID          int64
	Name             string
	Currency         string
	EquityOriginDate time.Time
	CreatedAt        time.Time
}

// Totals are the aggregated reporting-currency amounts of one run.
type Totals struct {
	Assets      float64 `json:"assets"`
	Liabilities float64 `json:"liabilities"`
	Equity      float64 `json:"equity"`
	Revenue     float64 `json:"revenue"`
	Expenses    float64 `json:"expenses"`
	NetIncome   float64 `json:"net_income"`
}

// Run is one consolidation attempt for a (group, period). The rates and
// per-entity translation adjustments used are stored with the run so the
// result can be audited later.
type Run struct {
	ID                     int64
	GroupID                int64
	Period                 string
	Status                 RunStatus
	Rates                  map[string]fx.Quote
	TranslationAdjustments map[int64]float64
	Totals                 Totals
	EliminationTotal       float64
	ErrorMessage           string
	StartedAt              time.Time
	CompletedAt            *time.Time
}

// IntercompanyTransaction is a cross-entity transaction inside a group.
// Elimination is one-way: once flagged, the row is pinned to the run that
// consumed it and never subtracted again.
type IntercompanyTransaction struct {
	ID           int64
	GroupID      int64
	FromEntityID int64
	ToEntityID   int64
	Amount       float64
	Currency     string
	ExchangeRate float64
	IsEliminated bool
	RunID        *int64
	CreatedAt    time.Time
}

// EliminationEntry records one elimination performed by a run.
type EliminationEntry struct {
	ID            int64
	RunID         int64
	TransactionID int64
	FromEntityID  int64
	ToEntityID    int64
	Amount        float64
	EntryType     string
	CreatedAt     time.Time
}

// AccountBalance is one trial-balance line for one entity, in local
// currency.
type AccountBalance struct {
	EntityID    int64
	AccountCode string
	AccountType AccountType
	Amount      float64
}

// TranslatedBalance is an AccountBalance expressed in the reporting
// currency.
type TranslatedBalance struct {
	EntityID    int64
	AccountCode string
	AccountType AccountType
	LocalAmount float64
	GroupAmount float64
}
