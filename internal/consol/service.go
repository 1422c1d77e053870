package consol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/consol/fx"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const sourceModule = "CONSOL"

const runLockTTL = 5 * time.Minute

// AuditPort records consolidation lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates consolidation runs.
type Service struct {
	repo  Repository
	rates fx.QuoteProvider
	redis *redis.Client
	audit AuditPort
	now   func() time.Time
}

// NewService constructs a consolidation service instance. The redis
// client is optional; the partial unique index on runs remains the
// authoritative serialization.
func NewService(repo Repository, rates fx.QuoteProvider, redisClient *redis.Client, audit AuditPort) *Service {
	return &Service{repo: repo, rates: rates, redis: redisClient, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateGroup stores a consolidation group.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (Group, error) {
	return s.repo.InsertGroup(ctx, in)
}

// GetGroup loads one group.
func (s *Service) GetGroup(ctx context.Context, id int64) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// ListGroups returns recent groups.
func (s *Service) ListGroups(ctx context.Context, limit int) ([]Group, error) {
	return s.repo.ListGroups(ctx, limit)
}

// AddEntity enrols a member entity.
func (s *Service) AddEntity(ctx context.Context, groupID int64, in AddEntityInput) (Entity, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return Entity{}, err
	}
	return s.repo.InsertEntity(ctx, groupID, in)
}

// Entities returns a group's members.
func (s *Service) Entities(ctx context.Context, groupID int64) ([]Entity, error) {
	return s.repo.ListEntities(ctx, groupID)
}

// AddIntercompany records a cross-entity transaction. Both counterparties
// must be members of the group.
func (s *Service) AddIntercompany(ctx context.Context, groupID int64, in AddIntercompanyInput) (IntercompanyTransaction, error) {
	entities, err := s.repo.ListEntities(ctx, groupID)
	if err != nil {
		return IntercompanyTransaction{}, err
	}
	members := memberSet(entities)
	if !members[in.FromEntityID] || !members[in.ToEntityID] {
		return IntercompanyTransaction{}, shared.InvalidInput("consol: counterparties %d and %d must both be group members", in.FromEntityID, in.ToEntityID)
	}
	return s.repo.InsertIntercompany(ctx, groupID, in)
}

// Intercompany returns a group's recorded cross-entity transactions.
func (s *Service) Intercompany(ctx context.Context, groupID int64) ([]IntercompanyTransaction, error) {
	return s.repo.ListIntercompany(ctx, groupID)
}

// GetRun loads one run.
func (s *Service) GetRun(ctx context.Context, id int64) (Run, error) {
	return s.repo.GetRun(ctx, id)
}

// Runs returns a group's run history.
func (s *Service) Runs(ctx context.Context, groupID int64) ([]Run, error) {
	return s.repo.ListRuns(ctx, groupID)
}

// Eliminations returns the elimination entries of one run.
func (s *Service) Eliminations(ctx context.Context, runID int64) ([]EliminationEntry, error) {
	return s.repo.ListEliminations(ctx, runID)
}

// CheckRates reports which FX methods are missing for a group at a
// period, without starting a run.
func (s *Service) CheckRates(ctx context.Context, groupID int64, period string) (fx.Result, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return fx.Result{}, err
	}
	entities, err := s.repo.ListEntities(ctx, groupID)
	if err != nil {
		return fx.Result{}, err
	}
	asOf, err := parsePeriod(period)
	if err != nil {
		return fx.Result{}, err
	}
	return fx.Validate(ctx, s.rates, asOf, rateRequirements(group, entities))
}

// RunConsolidation executes the full run for (group, period): resolve
// rates, collect trial balances, translate, eliminate intercompany
// transactions exactly once, and aggregate. All step results commit
// atomically; on any failure the run lands in error with nothing else
// persisted.
func (s *Service) RunConsolidation(ctx context.Context, groupID int64, in RunInput) (Run, error) {
	asOf, err := parsePeriod(in.Period)
	if err != nil {
		return Run{}, err
	}
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Run{}, err
	}
	entities, err := s.repo.ListEntities(ctx, groupID)
	if err != nil {
		return Run{}, err
	}
	if len(entities) == 0 {
		return Run{}, shared.InvalidInput("consol: group %d has no member entities", groupID)
	}

	if s.redis != nil {
		lock, err := cache.AcquireLock(ctx, s.redis, shared.ConsolidationLockKey(groupID, in.Period), uuid.NewString(), runLockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				return Run{}, ErrRunInProgress
			}
			return Run{}, shared.Downstream("redis", err)
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	var run Run
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		run, err = tx.InsertRun(ctx, groupID, in.Period)
		return err
	})
	if err != nil {
		return Run{}, err
	}

	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.execute(ctx, tx, &run, group, entities, asOf)
	}); err != nil {
		if failErr := s.repo.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			return Run{}, failErr
		}
		return Run{}, err
	}

	s.record(ctx, in.ActorID, "consol.run", run.ID, map[string]any{
		"group_id": groupID,
		"period":   in.Period,
	})
	return s.repo.GetRun(ctx, run.ID)
}

// execute performs steps 1-6 inside one transaction, mutating run with
// the results.
func (s *Service) execute(ctx context.Context, tx TxRepository, run *Run, group Group, entities []Entity, asOf time.Time) error {
	// Step 1: resolve rates for every non-reporting currency.
	res, err := fx.Validate(ctx, s.rates, asOf, rateRequirements(group, entities))
	if err != nil {
		return shared.Downstream("fx", err)
	}
	if len(res.Gaps) > 0 {
		return shared.Downstream("fx", fmt.Errorf("missing rates: %v", res.Gaps))
	}
	converter := fx.NewConverter(fx.Policy{ReportingCurrency: group.ReportingCurrency}, res.Available)

	// Step 2: collect every member's trial balance.
	currencies := make(map[int64]string, len(entities))
	var balances []AccountBalance
	for _, e := range entities {
		currencies[e.ID] = e.Currency
		tb, err := tx.TrialBalance(ctx, e.ID, run.Period)
		if err != nil {
			return err
		}
		balances = append(balances, tb...)
	}

	// Step 3: translate into the reporting currency.
	translated, adjustments, err := TranslateBalances(converter, balances, currencies)
	if err != nil {
		return shared.Downstream("fx", err)
	}

	// Steps 4-5: eliminate each qualifying intercompany transaction once.
	members := memberSet(entities)
	candidates, err := tx.EligibleIntercompanyForUpdate(ctx, group.ID)
	if err != nil {
		return err
	}
	var eliminationTotal float64
	for _, ict := range candidates {
		if !members[ict.FromEntityID] || !members[ict.ToEntityID] {
			continue
		}
		if err := tx.MarkEliminated(ctx, ict.ID, run.ID); err != nil {
			return err
		}
		amount := EliminationAmount(ict, group.ReportingCurrency)
		if err := tx.InsertElimination(ctx, EliminationEntry{
			RunID:         run.ID,
			TransactionID: ict.ID,
			FromEntityID:  ict.FromEntityID,
			ToEntityID:    ict.ToEntityID,
			Amount:        amount,
			EntryType:     "INTERCOMPANY",
		}); err != nil {
			return err
		}
		eliminationTotal += amount
	}
	eliminationTotal = round2(eliminationTotal)

	// Step 6: aggregate.
	run.Status = RunCompleted
	run.Rates = res.Available
	run.TranslationAdjustments = adjustments
	run.EliminationTotal = eliminationTotal
	run.Totals = Aggregate(translated, eliminationTotal)
	return tx.CompleteRun(ctx, *run)
}

func rateRequirements(group Group, entities []Entity) []fx.Requirement {
	allMethods := []fx.Method{fx.MethodAverage, fx.MethodClosing, fx.MethodHistorical}
	seen := make(map[string]bool)
	var reqs []fx.Requirement
	for _, e := range entities {
		if e.Currency == group.ReportingCurrency || seen[e.Currency] {
			continue
		}
		seen[e.Currency] = true
		reqs = append(reqs, fx.Requirement{Pair: e.Currency + group.ReportingCurrency, Methods: allMethods})
	}
	return reqs
}

func memberSet(entities []Entity) map[int64]bool {
	members := make(map[int64]bool, len(entities))
	for _, e := range entities {
		members[e.ID] = true
	}
	return members
}

func parsePeriod(period string) (time.Time, error) {
	asOf, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, shared.InvalidInput("consol: period %q", period)
	}
	return asOf, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, runID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Module:   sourceModule,
		Action:   action,
		Entity:   "consolidation_run",
		EntityID: fmt.Sprintf("%d", runID),
		Meta:     meta,
		At:       s.now(),
	})
}
