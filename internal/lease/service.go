package lease

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

const sourceModule = "LEASE"

// Accounts maps the engine's posting legs onto ledger account IDs.
type Accounts struct {
	RouAsset                int64
	Liability               int64
	Clearing                int64
	InterestExpense         int64
	DepreciationExpense     int64
	AccumulatedDepreciation int64
	GainLoss                int64
	Cash                    int64
}

// AuditPort records lease lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates lease recognition, amortization, and modification.
type Service struct {
	repo     Repository
	poster   ledger.Poster
	audit    AuditPort
	accounts Accounts
	now      func() time.Time
}

// NewService constructs a lease service instance.
func NewService(repo Repository, poster ledger.Poster, audit AuditPort, accounts Accounts) *Service {
	return &Service{repo: repo, poster: poster, audit: audit, accounts: accounts, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create stores a lease at contract signing, before recognition.
func (s *Service) Create(ctx context.Context, in CreateLeaseInput) (Lease, error) {
	if in.TermMonths <= 0 {
		return Lease{}, shared.InvalidInput("lease: term %d months", in.TermMonths)
	}
	if in.PaymentAmount.IsNegative() {
		return Lease{}, shared.InvalidInput("lease: payment amount %s is negative", in.PaymentAmount)
	}
	return s.repo.InsertLease(ctx, in)
}

// Get loads one lease.
func (s *Service) Get(ctx context.Context, id int64) (Lease, error) {
	return s.repo.GetLease(ctx, id)
}

// List returns recent leases.
func (s *Service) List(ctx context.Context, limit int) ([]Lease, error) {
	return s.repo.ListLeases(ctx, limit)
}

// Schedule returns the persisted amortization schedule.
func (s *Service) Schedule(ctx context.Context, leaseID int64) ([]ScheduleEntry, error) {
	return s.repo.ListSchedule(ctx, leaseID)
}

// Modifications returns modification history.
func (s *Service) Modifications(ctx context.Context, leaseID int64) ([]Modification, error) {
	return s.repo.ListModifications(ctx, leaseID)
}

// RecognizeInitial computes the liability and right-of-use asset for a
// draft lease, persists them, and requests the recognition posting. The
// whole operation is one transaction: a poster failure leaves the lease in
// DRAFT with nothing written.
func (s *Service) RecognizeInitial(ctx context.Context, leaseID, actorID int64) (RecognitionResult, error) {
	var result RecognitionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetLeaseForUpdate(ctx, leaseID)
		if err != nil {
			return err
		}
		if l.Status != StatusDraft {
			return shared.StateConflict("lease", string(l.Status))
		}
		res, err := Recognize(l)
		if err != nil {
			return err
		}
		if err := tx.UpdateRecognition(ctx, leaseID, res, StatusActive); err != nil {
			return err
		}
		if err := s.postRecognition(ctx, l, res, actorID); err != nil {
			return shared.Downstream("ledger", err)
		}
		result = res
		return nil
	})
	if err != nil {
		return RecognitionResult{}, err
	}
	s.record(ctx, actorID, "lease.recognize", leaseID, map[string]any{
		"liability": result.Liability.String(),
		"rou_asset": result.RightOfUseAsset.String(),
	})
	return result, nil
}

// GenerateSchedule materialises the interest/principal split for an active
// lease. The (lease_id, period_no) unique key rejects a second generation.
func (s *Service) GenerateSchedule(ctx context.Context, leaseID int64) ([]ScheduleEntry, error) {
	var entries []ScheduleEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetLeaseForUpdate(ctx, leaseID)
		if err != nil {
			return err
		}
		if l.Status != StatusActive {
			return shared.StateConflict("lease", string(l.Status))
		}
		entries, err = GenerateSchedule(paymentContext(l), l.Liability, l.CommencementDate)
		if err != nil {
			return err
		}
		for i := range entries {
			entries[i].LeaseID = leaseID
		}
		return tx.InsertScheduleEntries(ctx, leaseID, entries)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PostPeriod books one period's interest accrual, payment, and
// depreciation, advancing the carrying amounts. The final period moves the
// lease to TERMINATED.
func (s *Service) PostPeriod(ctx context.Context, leaseID int64, periodNo int, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetLeaseForUpdate(ctx, leaseID)
		if err != nil {
			return err
		}
		if l.Status != StatusActive {
			return shared.StateConflict("lease", string(l.Status))
		}
		schedule, err := s.repo.ListSchedule(ctx, leaseID)
		if err != nil {
			return err
		}
		if periodNo < 1 || periodNo > len(schedule) {
			return shared.InvalidInput("lease: period %d outside schedule", periodNo)
		}
		entry := schedule[periodNo-1]
		if err := tx.MarkPeriodPosted(ctx, leaseID, periodNo); err != nil {
			return err
		}

		depreciation := s.depreciationFor(l, periodNo)
		accum := l.AccumulatedDepreciation.Add(depreciation)
		if accum.GreaterThan(l.RightOfUseAsset) {
			return shared.InvalidInput("lease: depreciation exceeds right-of-use asset")
		}
		status := StatusActive
		if periodNo == l.TermMonths {
			status = StatusTerminated
		}
		if err := tx.UpdateCarrying(ctx, leaseID, entry.ClosingBalance, accum, status); err != nil {
			return err
		}

		posting := ledger.PostingInput{
			Date:         entry.DueDate,
			SourceModule: sourceModule,
			SourceID:     sourceID("lease:%d:period:%d", leaseID, periodNo),
			Memo:         fmt.Sprintf("Lease %s period %d", l.ContractRef, periodNo),
			PostedBy:     actorID,
			Lines: []ledger.PostingLineInput{
				{AccountID: s.accounts.InterestExpense, Debit: entry.Interest.InexactFloat64()},
				{AccountID: s.accounts.Liability, Debit: entry.Principal.InexactFloat64()},
				{AccountID: s.accounts.Cash, Credit: entry.Payment.InexactFloat64()},
				{AccountID: s.accounts.DepreciationExpense, Debit: depreciation.InexactFloat64()},
				{AccountID: s.accounts.AccumulatedDepreciation, Credit: depreciation.InexactFloat64()},
			},
		}
		if _, err := s.poster.PostJournal(ctx, posting); err != nil {
			return shared.Downstream("ledger", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "lease.post_period", leaseID, map[string]any{"period": periodNo})
	return nil
}

// ApplyModification remeasures the lease and regenerates the unposted tail
// of the schedule from the revised payment stream. Posted history is never
// rewritten.
func (s *Service) ApplyModification(ctx context.Context, leaseID int64, in ModifyLeaseInput) (Modification, error) {
	var mod Modification
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetLeaseForUpdate(ctx, leaseID)
		if err != nil {
			return err
		}
		effect, err := ApplyModification(l, ModificationInput{
			Type:               in.Type,
			EffectiveDate:      in.EffectiveDate,
			RemainingPayment:   in.RemainingPayment,
			RemainingPeriods:   in.RemainingPeriods,
			RevisedRate:        in.RevisedRate,
			DecreaseProportion: in.DecreaseProportion,
		})
		if err != nil {
			return err
		}
		mod, err = tx.InsertModification(ctx, Modification{
			LeaseID:          leaseID,
			Type:             in.Type,
			EffectiveDate:    in.EffectiveDate,
			RevisedLiability: effect.RevisedLiability,
			RouAdjustment:    effect.RouAdjustment,
			GainLoss:         effect.GainLoss,
		})
		if err != nil {
			return err
		}

		posted, err := tx.CountPostedPeriods(ctx, leaseID)
		if err != nil {
			return err
		}
		if err := tx.DeleteScheduleFrom(ctx, leaseID, posted+1); err != nil {
			return err
		}
		revisedCtx := PaymentContext{
			Payment:  in.RemainingPayment,
			Periods:  in.RemainingPeriods,
			Rate:     in.RevisedRate,
			Timing:   l.PaymentTiming,
			Currency: l.Currency,
		}
		tail, err := GenerateSchedule(revisedCtx, effect.RevisedLiability, in.EffectiveDate)
		if err != nil {
			return err
		}
		for i := range tail {
			tail[i].LeaseID = leaseID
			tail[i].PeriodNo = posted + i + 1
		}
		if err := tx.InsertScheduleEntries(ctx, leaseID, tail); err != nil {
			return err
		}

		if err := tx.UpdateRecognition(ctx, leaseID, RecognitionResult{
			Liability:       effect.RevisedLiability,
			RightOfUseAsset: effect.RevisedRou.Add(l.AccumulatedDepreciation),
		}, StatusActive); err != nil {
			return err
		}
		if err := s.postModification(ctx, l, effect, in.ActorID); err != nil {
			return shared.Downstream("ledger", err)
		}
		return nil
	})
	if err != nil {
		return Modification{}, err
	}
	s.record(ctx, in.ActorID, "lease.modify", leaseID, map[string]any{
		"type":      string(in.Type),
		"gain_loss": mod.GainLoss.String(),
	})
	return mod, nil
}

func (s *Service) depreciationFor(l Lease, periodNo int) decimal.Decimal {
	parts := money.SplitEven(l.RightOfUseAsset, l.TermMonths, l.Currency)
	if periodNo < 1 || periodNo > len(parts) {
		return decimal.Zero
	}
	return parts[periodNo-1]
}

func (s *Service) postRecognition(ctx context.Context, l Lease, res RecognitionResult, actorID int64) error {
	net := res.RightOfUseAsset.Sub(res.Liability)
	lines := []ledger.PostingLineInput{
		{AccountID: s.accounts.RouAsset, Debit: res.RightOfUseAsset.InexactFloat64()},
		{AccountID: s.accounts.Liability, Credit: res.Liability.InexactFloat64()},
	}
	switch {
	case net.IsPositive():
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.Clearing, Credit: net.InexactFloat64()})
	case net.IsNegative():
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.Clearing, Debit: net.Neg().InexactFloat64()})
	}
	_, err := s.poster.PostJournal(ctx, ledger.PostingInput{
		Date:         l.CommencementDate,
		SourceModule: sourceModule,
		SourceID:     sourceID("lease:%d:recognize", l.ID),
		Memo:         fmt.Sprintf("Lease %s initial recognition", l.ContractRef),
		PostedBy:     actorID,
		Lines:        lines,
	})
	return err
}

func (s *Service) postModification(ctx context.Context, l Lease, effect ModificationEffect, actorID int64) error {
	carriedRou := l.RightOfUseAsset.Sub(l.AccumulatedDepreciation)
	rouDelta := effect.RevisedRou.Sub(carriedRou)
	liabilityDelta := effect.RevisedLiability.Sub(l.Liability)

	var lines []ledger.PostingLineInput
	if rouDelta.IsPositive() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.RouAsset, Debit: rouDelta.InexactFloat64()})
	} else if rouDelta.IsNegative() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.RouAsset, Credit: rouDelta.Neg().InexactFloat64()})
	}
	if liabilityDelta.IsPositive() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.Liability, Credit: liabilityDelta.InexactFloat64()})
	} else if liabilityDelta.IsNegative() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.Liability, Debit: liabilityDelta.Neg().InexactFloat64()})
	}
	// Plug the gain/loss leg from the other two so independent rounding
	// can never leave the entry a cent out of balance.
	plug := rouDelta.Sub(liabilityDelta)
	if plug.IsPositive() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.GainLoss, Credit: plug.InexactFloat64()})
	} else if plug.IsNegative() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.GainLoss, Debit: plug.Neg().InexactFloat64()})
	}
	if len(lines) < 2 {
		// Nothing economically changed; skip the posting.
		return nil
	}
	_, err := s.poster.PostJournal(ctx, ledger.PostingInput{
		Date:         s.now(),
		SourceModule: sourceModule,
		SourceID:     uuid.New(),
		Memo:         fmt.Sprintf("Lease %s modification", l.ContractRef),
		PostedBy:     actorID,
		Lines:        lines,
	})
	return err
}

func (s *Service) record(ctx context.Context, actorID int64, action string, leaseID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Module:   sourceModule,
		Action:   action,
		Entity:   "lease",
		EntityID: fmt.Sprintf("%d", leaseID),
		Meta:     meta,
		At:       s.now(),
	})
}

func paymentContext(l Lease) PaymentContext {
	return PaymentContext{
		Payment:  l.PaymentAmount,
		Periods:  l.TermMonths,
		Rate:     l.PeriodicRate,
		Timing:   l.PaymentTiming,
		Currency: l.Currency,
	}
}

func sourceID(format string, args ...any) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf(format, args...)))
}
