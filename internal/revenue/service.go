package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/shared/money"
)

const sourceModule = "REVENUE"

// Accounts maps recognition postings onto ledger account IDs.
type Accounts struct {
	DeferredRevenue int64
	Revenue         int64
}

// AuditPort records revenue lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates allocation and recognition for revenue contracts.
type Service struct {
	repo     Repository
	poster   ledger.Poster
	audit    AuditPort
	accounts Accounts
	now      func() time.Time
}

// NewService constructs a revenue service instance.
func NewService(repo Repository, poster ledger.Poster, audit AuditPort, accounts Accounts) *Service {
	return &Service{repo: repo, poster: poster, audit: audit, accounts: accounts, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create stores a contract together with its performance obligations.
// Allocation happens separately so obligations start with a zero
// allocated price.
func (s *Service) Create(ctx context.Context, in CreateContractInput) (Contract, []Obligation, error) {
	if !in.TotalPrice.IsPositive() {
		return Contract{}, nil, shared.InvalidInput("revenue: total price %s", in.TotalPrice)
	}
	if !in.EndDate.After(in.StartDate) {
		return Contract{}, nil, shared.InvalidInput("revenue: end date before start date")
	}
	c, obligations, err := s.repo.InsertContract(ctx, in)
	if err != nil {
		return Contract{}, nil, err
	}
	s.record(ctx, in.ActorID, "revenue.create_contract", c.ID, map[string]any{"reference": c.Reference})
	return c, obligations, nil
}

// Get loads one contract.
func (s *Service) Get(ctx context.Context, id int64) (Contract, error) {
	return s.repo.GetContract(ctx, id)
}

// List returns recent contracts.
func (s *Service) List(ctx context.Context, limit int) ([]Contract, error) {
	return s.repo.ListContracts(ctx, limit)
}

// Obligations returns a contract's performance obligations.
func (s *Service) Obligations(ctx context.Context, contractID int64) ([]Obligation, error) {
	return s.repo.ListObligations(ctx, contractID)
}

// Considerations returns a contract's variable considerations.
func (s *Service) Considerations(ctx context.Context, contractID int64) ([]VariableConsideration, error) {
	return s.repo.ListConsiderations(ctx, contractID)
}

// Entries returns the recognition history for an obligation.
func (s *Service) Entries(ctx context.Context, obligationID int64) ([]RecognitionEntry, error) {
	return s.repo.ListRecognitionEntries(ctx, obligationID)
}

// Plan returns the straight-line recognition schedule for an obligation.
func (s *Service) Plan(ctx context.Context, obligationID int64) ([]PlannedEntry, error) {
	return s.repo.ListPlannedEntries(ctx, obligationID)
}

// AddConsideration registers an estimated variable slice of the price. The
// constraint has no allocation effect until the estimate resolves.
func (s *Service) AddConsideration(ctx context.Context, contractID int64, in AddConsiderationInput) (VariableConsideration, error) {
	if in.EstimatedAmount.IsNegative() || in.ConstraintAmount.IsNegative() {
		return VariableConsideration{}, shared.InvalidInput("revenue: negative consideration amount")
	}
	if _, err := s.repo.GetContract(ctx, contractID); err != nil {
		return VariableConsideration{}, err
	}
	return s.repo.InsertConsideration(ctx, contractID, in)
}

// Allocate splits the effective transaction price across the contract's
// obligations in proportion to standalone selling price. Re-running fully
// replaces the prior allocation, so the operation is idempotent for
// unchanged inputs.
func (s *Service) Allocate(ctx context.Context, contractID, actorID int64) ([]ObligationAllocation, error) {
	var result []ObligationAllocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.reallocate(ctx, tx, contractID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "revenue.allocate", contractID, map[string]any{"obligations": len(result)})
	return result, nil
}

// RecognizePointInTime books the full allocated price of a point-in-time
// obligation in a single entry and marks it satisfied. A second call
// conflicts.
func (s *Service) RecognizePointInTime(ctx context.Context, obligationID int64, in RecognizeInput) (RecognitionEntry, error) {
	var entry RecognitionEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ob, err := tx.GetObligationForUpdate(ctx, obligationID)
		if err != nil {
			return err
		}
		if ob.Pattern != PatternPointInTime {
			return shared.InvalidInput("revenue: obligation %d is %s", ob.ID, ob.Pattern)
		}
		if ob.Status == ObligationSatisfied {
			return ErrAlreadyRecognized
		}
		n, err := tx.CountRecognitionEntries(ctx, obligationID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyRecognized
		}
		if !ob.AllocatedPrice.IsPositive() {
			return shared.StateConflict("obligation", "unallocated")
		}
		entry, err = s.book(ctx, tx, ob, ob.AllocatedPrice, in.Date, in.ActorID)
		return err
	})
	if err != nil {
		return RecognitionEntry{}, err
	}
	s.record(ctx, in.ActorID, "revenue.recognize_point_in_time", entry.ObligationID, map[string]any{
		"amount": entry.Amount.String(),
	})
	return entry, nil
}

// MeasureProgress recognises the catch-up amount for an over-time
// obligation measured at the given percentage of completion. Reported
// progress below the cumulative position recognises nothing.
func (s *Service) MeasureProgress(ctx context.Context, obligationID int64, in ProgressInput) (RecognitionEntry, error) {
	if in.ProgressPercent.IsNegative() || in.ProgressPercent.GreaterThan(decimal.NewFromInt(100)) {
		return RecognitionEntry{}, shared.InvalidInput("revenue: progress %s%%", in.ProgressPercent)
	}
	var entry RecognitionEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ob, err := tx.GetObligationForUpdate(ctx, obligationID)
		if err != nil {
			return err
		}
		if ob.Pattern != PatternOverTime {
			return shared.InvalidInput("revenue: obligation %d is %s", ob.ID, ob.Pattern)
		}
		c, err := tx.GetContractForUpdate(ctx, ob.ContractID)
		if err != nil {
			return err
		}
		amount := RecognizableAmount(ob.AllocatedPrice, ob.CumulativeRecognized, in.ProgressPercent, c.Currency)
		if amount.IsZero() {
			entry = RecognitionEntry{ObligationID: obligationID, CumulativeAfter: ob.CumulativeRecognized}
			return nil
		}
		entry, err = s.book(ctx, tx, ob, amount, in.Date, in.ActorID)
		return err
	})
	if err != nil {
		return RecognitionEntry{}, err
	}
	s.record(ctx, in.ActorID, "revenue.measure_progress", obligationID, map[string]any{
		"progress": in.ProgressPercent.String(),
		"amount":   entry.Amount.String(),
	})
	return entry, nil
}

// Recognize books an explicit amount against an over-time obligation, for
// planned-schedule and milestone releases. The cumulative total can never
// exceed the allocated price.
func (s *Service) Recognize(ctx context.Context, obligationID int64, in RecognizeInput) (RecognitionEntry, error) {
	if !in.Amount.IsPositive() {
		return RecognitionEntry{}, shared.InvalidInput("revenue: amount %s", in.Amount)
	}
	var entry RecognitionEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ob, err := tx.GetObligationForUpdate(ctx, obligationID)
		if err != nil {
			return err
		}
		if ob.Pattern != PatternOverTime {
			return shared.InvalidInput("revenue: obligation %d is %s", ob.ID, ob.Pattern)
		}
		if ob.CumulativeRecognized.Add(in.Amount).GreaterThan(ob.AllocatedPrice) {
			return ErrExceedsAllocation
		}
		entry, err = s.book(ctx, tx, ob, in.Amount, in.Date, in.ActorID)
		return err
	})
	if err != nil {
		return RecognitionEntry{}, err
	}
	s.record(ctx, in.ActorID, "revenue.recognize", obligationID, map[string]any{"amount": entry.Amount.String()})
	return entry, nil
}

// GenerateRecognitionSchedule materialises a straight-line plan for an
// over-time obligation across the months to its expected completion. The
// (obligation_id, period_no) unique key rejects a second generation.
func (s *Service) GenerateRecognitionSchedule(ctx context.Context, obligationID int64) ([]PlannedEntry, error) {
	var entries []PlannedEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ob, err := tx.GetObligationForUpdate(ctx, obligationID)
		if err != nil {
			return err
		}
		if ob.Pattern != PatternOverTime {
			return shared.InvalidInput("revenue: obligation %d is %s", ob.ID, ob.Pattern)
		}
		if !ob.AllocatedPrice.IsPositive() {
			return shared.StateConflict("obligation", "unallocated")
		}
		c, err := tx.GetContractForUpdate(ctx, ob.ContractID)
		if err != nil {
			return err
		}
		entries, err = BuildStraightLineSchedule(ob.AllocatedPrice, c.StartDate, ob.ExpectedCompletion, c.Currency)
		if err != nil {
			return err
		}
		for i := range entries {
			entries[i].ObligationID = obligationID
		}
		return tx.InsertPlannedEntries(ctx, obligationID, entries)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ResolveConsideration settles a variable estimate at its actual amount.
// Resolution binds the constraint, so the effective price drops and the
// contract is reallocated in the same transaction. Resolution fails when
// any obligation has already recognised more than its post-resolution
// allocation would allow.
func (s *Service) ResolveConsideration(ctx context.Context, considerationID int64, in ResolveConsiderationInput) ([]ObligationAllocation, error) {
	if in.ActualAmount.IsNegative() {
		return nil, shared.InvalidInput("revenue: actual amount %s", in.ActualAmount)
	}
	var result []ObligationAllocation
	var contractID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		vc, err := tx.GetConsiderationForUpdate(ctx, considerationID)
		if err != nil {
			return err
		}
		if vc.Resolved {
			return ErrAlreadyResolved
		}
		contractID = vc.ContractID
		if err := tx.MarkConsiderationResolved(ctx, considerationID, in.ActualAmount, s.now()); err != nil {
			return err
		}
		result, err = s.reallocate(ctx, tx, vc.ContractID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, in.ActorID, "revenue.resolve_consideration", contractID, map[string]any{
		"consideration_id": considerationID,
		"actual":           in.ActualAmount.String(),
	})
	return result, nil
}

// reallocate recomputes and stores the allocation for every obligation of
// the contract from the current effective price.
func (s *Service) reallocate(ctx context.Context, tx TxRepository, contractID int64) ([]ObligationAllocation, error) {
	c, err := tx.GetContractForUpdate(ctx, contractID)
	if err != nil {
		return nil, err
	}
	obligations, err := tx.ListObligations(ctx, contractID)
	if err != nil {
		return nil, err
	}
	considerations, err := tx.ListConsiderations(ctx, contractID)
	if err != nil {
		return nil, err
	}
	effective := EffectivePrice(c.TotalPrice, considerations)
	if !effective.IsPositive() {
		return nil, shared.InvalidInput("revenue: effective price %s", effective)
	}
	allocations, err := AllocatePrices(effective, obligations, c.Currency)
	if err != nil {
		return nil, err
	}
	result := make([]ObligationAllocation, len(obligations))
	for i, ob := range obligations {
		if ob.CumulativeRecognized.GreaterThan(allocations[i]) {
			return nil, ErrExceedsAllocation
		}
		if err := tx.UpdateAllocatedPrice(ctx, ob.ID, allocations[i]); err != nil {
			return nil, err
		}
		result[i] = ObligationAllocation{ObligationID: ob.ID, Name: ob.Name, AllocatedPrice: allocations[i]}
	}
	return result, nil
}

// book inserts the recognition entry, advances the obligation's cumulative
// position and status, and requests the ledger posting, all inside the
// caller's transaction.
func (s *Service) book(ctx context.Context, tx TxRepository, ob Obligation, amount decimal.Decimal, date time.Time, actorID int64) (RecognitionEntry, error) {
	c, err := tx.GetContractForUpdate(ctx, ob.ContractID)
	if err != nil {
		return RecognitionEntry{}, err
	}
	seq, err := tx.NextSeq(ctx, ob.ID)
	if err != nil {
		return RecognitionEntry{}, err
	}
	amount = money.Round(amount, c.Currency)
	cumulative := ob.CumulativeRecognized.Add(amount)
	if date.IsZero() {
		date = s.now()
	}
	entry, err := tx.InsertRecognitionEntry(ctx, RecognitionEntry{
		ObligationID:    ob.ID,
		Seq:             seq,
		RecognitionDate: date,
		Amount:          amount,
		CumulativeAfter: cumulative,
	})
	if err != nil {
		return RecognitionEntry{}, err
	}
	status := ObligationInProgress
	if cumulative.GreaterThanOrEqual(ob.AllocatedPrice) {
		status = ObligationSatisfied
	}
	if err := tx.UpdateObligationProgress(ctx, ob.ID, cumulative, status); err != nil {
		return RecognitionEntry{}, err
	}
	posting := ledger.PostingInput{
		Date:         date,
		SourceModule: sourceModule,
		SourceID:     sourceID("revenue:obligation:%d:seq:%d", ob.ID, seq),
		Memo:         fmt.Sprintf("Revenue %s obligation %d entry %d", c.Reference, ob.ID, seq),
		PostedBy:     actorID,
		Lines: []ledger.PostingLineInput{
			{AccountID: s.accounts.DeferredRevenue, Debit: amount.InexactFloat64()},
			{AccountID: s.accounts.Revenue, Credit: amount.InexactFloat64()},
		},
	}
	if _, err := s.poster.PostJournal(ctx, posting); err != nil {
		return RecognitionEntry{}, shared.Downstream("ledger", err)
	}
	return entry, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Module:   sourceModule,
		Action:   action,
		Entity:   "contract",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}

func sourceID(format string, args ...any) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf(format, args...)))
}
