package consol

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/consol/fx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryConsolRepo struct {
	groups       map[int64]Group
	entities     map[int64]Entity
	balances     map[int64]map[string][]AccountBalance
	intercompany map[int64]IntercompanyTransaction
	runs         map[int64]Run
	eliminations map[int64][]EliminationEntry
	nextID       int64
}

func newMemoryConsolRepo() *memoryConsolRepo {
	return &memoryConsolRepo{
		groups:       make(map[int64]Group),
		entities:     make(map[int64]Entity),
		balances:     make(map[int64]map[string][]AccountBalance),
		intercompany: make(map[int64]IntercompanyTransaction),
		runs:         make(map[int64]Run),
		eliminations: make(map[int64][]EliminationEntry),
	}
}

func (r *memoryConsolRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryConsolRepo) GetGroup(ctx context.Context, id int64) (Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}

func (r *memoryConsolRepo) ListGroups(ctx context.Context, limit int) ([]Group, error) {
	var out []Group
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out, nil
}

func (r *memoryConsolRepo) InsertGroup(ctx context.Context, in CreateGroupInput) (Group, error) {
	g := Group{ID: r.id(), Name: in.Name, ReportingCurrency: in.ReportingCurrency}
	r.groups[g.ID] = g
	return g, nil
}

func (r *memoryConsolRepo) ListEntities(ctx context.Context, groupID int64) ([]Entity, error) {
	var out []Entity
	for id := int64(1); id <= r.nextID; id++ {
		if e, ok := r.entities[id]; ok && e.GroupID == groupID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryConsolRepo) InsertEntity(ctx context.Context, groupID int64, in AddEntityInput) (Entity, error) {
	e := Entity{ID: r.id(), GroupID: groupID, Name: in.Name, Currency: in.Currency, EquityOriginDate: in.EquityOriginDate}
	r.entities[e.ID] = e
	return e, nil
}

func (r *memoryConsolRepo) InsertIntercompany(ctx context.Context, groupID int64, in AddIntercompanyInput) (IntercompanyTransaction, error) {
	t := IntercompanyTransaction{
		ID:           r.id(),
		GroupID:      groupID,
		FromEntityID: in.FromEntityID,
		ToEntityID:   in.ToEntityID,
		Amount:       in.Amount,
		Currency:     in.Currency,
		ExchangeRate: in.ExchangeRate,
	}
	r.intercompany[t.ID] = t
	return t, nil
}

func (r *memoryConsolRepo) ListIntercompany(ctx context.Context, groupID int64) ([]IntercompanyTransaction, error) {
	var out []IntercompanyTransaction
	for id := int64(1); id <= r.nextID; id++ {
		if t, ok := r.intercompany[id]; ok && t.GroupID == groupID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryConsolRepo) GetRun(ctx context.Context, id int64) (Run, error) {
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (r *memoryConsolRepo) ListRuns(ctx context.Context, groupID int64) ([]Run, error) {
	var out []Run
	for _, run := range r.runs {
		if run.GroupID == groupID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *memoryConsolRepo) ListEliminations(ctx context.Context, runID int64) ([]EliminationEntry, error) {
	return append([]EliminationEntry(nil), r.eliminations[runID]...), nil
}

func (r *memoryConsolRepo) FailRun(ctx context.Context, runID int64, message string) error {
	run, ok := r.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = RunError
	run.ErrorMessage = message
	r.runs[runID] = run
	return nil
}

func (r *memoryConsolRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryConsolTx{repo: r})
}

type memoryConsolTx struct {
	repo *memoryConsolRepo
}

func (t *memoryConsolTx) InsertRun(ctx context.Context, groupID int64, period string) (Run, error) {
	for _, run := range t.repo.runs {
		if run.GroupID == groupID && run.Period == period && run.Status != RunError {
			return Run{}, ErrRunConflict
		}
	}
	run := Run{ID: t.repo.id(), GroupID: groupID, Period: period, Status: RunProcessing}
	t.repo.runs[run.ID] = run
	return run, nil
}

func (t *memoryConsolTx) TrialBalance(ctx context.Context, entityID int64, period string) ([]AccountBalance, error) {
	return append([]AccountBalance(nil), t.repo.balances[entityID][period]...), nil
}

func (t *memoryConsolTx) EligibleIntercompanyForUpdate(ctx context.Context, groupID int64) ([]IntercompanyTransaction, error) {
	var out []IntercompanyTransaction
	for id := int64(1); id <= t.repo.nextID; id++ {
		if ict, ok := t.repo.intercompany[id]; ok && ict.GroupID == groupID && !ict.IsEliminated {
			out = append(out, ict)
		}
	}
	return out, nil
}

func (t *memoryConsolTx) MarkEliminated(ctx context.Context, transactionID, runID int64) error {
	ict, ok := t.repo.intercompany[transactionID]
	if !ok || ict.IsEliminated {
		return ErrRunConflict
	}
	ict.IsEliminated = true
	ict.RunID = &runID
	t.repo.intercompany[transactionID] = ict
	return nil
}

func (t *memoryConsolTx) InsertElimination(ctx context.Context, e EliminationEntry) error {
	e.ID = t.repo.id()
	t.repo.eliminations[e.RunID] = append(t.repo.eliminations[e.RunID], e)
	return nil
}

func (t *memoryConsolTx) CompleteRun(ctx context.Context, run Run) error {
	stored, ok := t.repo.runs[run.ID]
	if !ok || stored.Status != RunProcessing {
		return ErrRunNotFound
	}
	now := time.Now()
	run.CompletedAt = &now
	t.repo.runs[run.ID] = run
	return nil
}

type staticQuotes struct {
	quotes map[string]fx.Quote
}

func (p staticQuotes) QuoteForPeriod(ctx context.Context, asOf time.Time, pair string) (fx.Quote, bool, error) {
	q, ok := p.quotes[pair]
	return q, ok, nil
}

func newTestConsol(t *testing.T, quotes map[string]fx.Quote) (*Service, *memoryConsolRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newMemoryConsolRepo()
	svc := NewService(repo, staticQuotes{quotes: quotes}, client, nil)
	return svc, repo
}

func seedTwoEntityGroup(t *testing.T, svc *Service, repo *memoryConsolRepo) (Group, Entity, Entity) {
	t.Helper()
	ctx := context.Background()
	g, err := svc.CreateGroup(ctx, CreateGroupInput{Name: "Meridian Group", ReportingCurrency: "USD"})
	require.NoError(t, err)
	home, err := svc.AddEntity(ctx, g.ID, AddEntityInput{Name: "Meridian US", Currency: "USD", EquityOriginDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	foreign, err := svc.AddEntity(ctx, g.ID, AddEntityInput{Name: "Meridian EU", Currency: "EUR", EquityOriginDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	repo.balances[home.ID] = map[string][]AccountBalance{"2026-03": {
		{EntityID: home.ID, AccountCode: "1000", AccountType: TypeAsset, Amount: 20000},
		{EntityID: home.ID, AccountCode: "2000", AccountType: TypeLiability, Amount: 8000},
		{EntityID: home.ID, AccountCode: "4000", AccountType: TypeRevenue, Amount: 5000},
		{EntityID: home.ID, AccountCode: "5000", AccountType: TypeExpense, Amount: 2000},
	}}
	repo.balances[foreign.ID] = map[string][]AccountBalance{"2026-03": {
		{EntityID: foreign.ID, AccountCode: "1000", AccountType: TypeAsset, Amount: 8000},
		{EntityID: foreign.ID, AccountCode: "3000", AccountType: TypeEquity, Amount: 1000},
	}}
	return g, home, foreign
}

func TestRunConsolidationScenario(t *testing.T) {
	svc, repo := newTestConsol(t, map[string]fx.Quote{
		"EURUSD": {Closing: 0.75, Average: 0.80, Historical: 0.85},
	})
	ctx := context.Background()
	g, home, foreign := seedTwoEntityGroup(t, svc, repo)

	// An intercompany receivable/payable of 5,000 between the members.
	ict, err := svc.AddIntercompany(ctx, g.ID, AddIntercompanyInput{
		FromEntityID: home.ID,
		ToEntityID:   foreign.ID,
		Amount:       5000,
		Currency:     "USD",
	})
	require.NoError(t, err)

	run, err := svc.RunConsolidation(ctx, g.ID, RunInput{Period: "2026-03", ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, RunCompleted, run.Status)

	// 20,000 + 8,000×0.75 = 26,000 gross, less the 5,000 double-count.
	require.Equal(t, 21000.0, run.Totals.Assets)
	require.Equal(t, 3000.0, run.Totals.Liabilities)
	require.Equal(t, 850.0, run.Totals.Equity)
	require.Equal(t, 3000.0, run.Totals.NetIncome)
	require.Equal(t, 5000.0, run.EliminationTotal)
	require.Equal(t, -100.0, run.TranslationAdjustments[foreign.ID])
	require.Contains(t, run.Rates, "EURUSD")

	stored := repo.intercompany[ict.ID]
	require.True(t, stored.IsEliminated)
	require.Equal(t, run.ID, *stored.RunID)

	entries, err := svc.Eliminations(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 5000.0, entries[0].Amount)
}

func TestRunConsolidationEliminatesOnce(t *testing.T) {
	svc, repo := newTestConsol(t, map[string]fx.Quote{
		"EURUSD": {Closing: 0.75, Average: 0.80, Historical: 0.85},
	})
	ctx := context.Background()
	g, home, foreign := seedTwoEntityGroup(t, svc, repo)
	repo.balances[home.ID]["2026-04"] = repo.balances[home.ID]["2026-03"]
	repo.balances[foreign.ID]["2026-04"] = repo.balances[foreign.ID]["2026-03"]

	_, err := svc.AddIntercompany(ctx, g.ID, AddIntercompanyInput{
		FromEntityID: home.ID, ToEntityID: foreign.ID, Amount: 5000, Currency: "USD",
	})
	require.NoError(t, err)

	first, err := svc.RunConsolidation(ctx, g.ID, RunInput{Period: "2026-03"})
	require.NoError(t, err)
	require.Equal(t, 5000.0, first.EliminationTotal)

	// A later run never subtracts the same transaction again.
	second, err := svc.RunConsolidation(ctx, g.ID, RunInput{Period: "2026-04"})
	require.NoError(t, err)
	require.Equal(t, 0.0, second.EliminationTotal)
	require.Equal(t, 26000.0, second.Totals.Assets)
}

func TestRunConsolidationDuplicatePeriodConflicts(t *testing.T) {
	svc, repo := newTestConsol(t, map[string]fx.Quote{
		"EURUSD": {Closing: 0.75, Average: 0.80, Historical: 0.85},
	})
	ctx := context.Background()
	g, _, _ := seedTwoEntityGroup(t, svc, repo)

	_, err := svc.RunConsolidation(ctx, g.ID, RunInput{Period: "2026-03"})
	require.NoError(t, err)

	_, err = svc.RunConsolidation(ctx, g.ID, RunInput{Period: "2026-03"})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestRunConsolidationMissingRatesFailsRun(t *testing.T) {
	svc, repo := newTestConsol(t, map[string]fx.Quote{})
	ctx := context.Background()
	g, _, _ := seedTwoEntityGroup(t, svc, repo)

	_, err := svc.RunConsolidation(ctx, g.ID, RunInput{Period: "2026-03"})
	require.ErrorIs(t, err, shared.ErrDownstream)

	runs, err := svc.Runs(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, RunError, runs[0].Status)
	require.NotEmpty(t, runs[0].ErrorMessage)

	// The failed run does not block a retry once rates exist.
	svc.rates = staticQuotes{quotes: map[string]fx.Quote{
		"EURUSD": {Closing: 0.75, Average: 0.80, Historical: 0.85},
	}}
	run, err := svc.RunConsolidation(ctx, g.ID, RunInput{Period: "2026-03"})
	require.NoError(t, err)
	require.Equal(t, RunCompleted, run.Status)
}

func TestAddIntercompanyRequiresMembers(t *testing.T) {
	svc, repo := newTestConsol(t, nil)
	ctx := context.Background()
	g, home, _ := seedTwoEntityGroup(t, svc, repo)

	_, err := svc.AddIntercompany(ctx, g.ID, AddIntercompanyInput{
		FromEntityID: home.ID, ToEntityID: 999, Amount: 100, Currency: "USD",
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCheckRatesReportsGaps(t *testing.T) {
	svc, repo := newTestConsol(t, map[string]fx.Quote{
		"EURUSD": {Closing: 0.75, Average: 0.80},
	})
	ctx := context.Background()
	g, _, _ := seedTwoEntityGroup(t, svc, repo)

	res, err := svc.CheckRates(ctx, g.ID, "2026-03")
	require.NoError(t, err)
	require.Len(t, res.Gaps, 1)
	require.Equal(t, "EURUSD", res.Gaps[0].Pair)
	require.Equal(t, []fx.Method{fx.MethodHistorical}, res.Gaps[0].Methods)
}
