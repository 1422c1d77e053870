package consol

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/consol/fx"
)

// Repository encapsulates DB operations for consolidation.
type Repository interface {
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context, limit int) ([]Group, error)
	InsertGroup(ctx context.Context, in CreateGroupInput) (Group, error)
	ListEntities(ctx context.Context, groupID int64) ([]Entity, error)
	InsertEntity(ctx context.Context, groupID int64, in AddEntityInput) (Entity, error)
	InsertIntercompany(ctx context.Context, groupID int64, in AddIntercompanyInput) (IntercompanyTransaction, error)
	ListIntercompany(ctx context.Context, groupID int64) ([]IntercompanyTransaction, error)
	GetRun(ctx context.Context, id int64) (Run, error)
	ListRuns(ctx context.Context, groupID int64) ([]Run, error)
	ListEliminations(ctx context.Context, runID int64) ([]EliminationEntry, error)
	FailRun(ctx context.Context, runID int64, message string) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertRun(ctx context.Context, groupID int64, period string) (Run, error)
	TrialBalance(ctx context.Context, entityID int64, period string) ([]AccountBalance, error)
	EligibleIntercompanyForUpdate(ctx context.Context, groupID int64) ([]IntercompanyTransaction, error)
	MarkEliminated(ctx context.Context, transactionID, runID int64) error
	InsertElimination(ctx context.Context, e EliminationEntry) error
	CompleteRun(ctx context.Context, run Run) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetGroup(ctx context.Context, id int64) (Group, error) {
	var g Group
	err := r.db.QueryRow(ctx, `SELECT id, name, reporting_currency, created_at
FROM consolidation_groups WHERE id=$1`, id).Scan(&g.ID, &g.Name, &g.ReportingCurrency, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	return g, err
}

func (r *repository) ListGroups(ctx context.Context, limit int) ([]Group, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT id, name, reporting_currency, created_at
FROM consolidation_groups ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.ReportingCurrency, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *repository) InsertGroup(ctx context.Context, in CreateGroupInput) (Group, error) {
	var g Group
	err := r.db.QueryRow(ctx, `INSERT INTO consolidation_groups (name, reporting_currency)
VALUES ($1, $2) RETURNING id, name, reporting_currency, created_at`,
		in.Name, in.ReportingCurrency).Scan(&g.ID, &g.Name, &g.ReportingCurrency, &g.CreatedAt)
	return g, err
}

func (r *repository) ListEntities(ctx context.Context, groupID int64) ([]Entity, error) {
	rows, err := r.db.Query(ctx, `SELECT id, group_id, name, currency, equity_origin_date, created_at
FROM consolidation_entities WHERE group_id=$1 ORDER BY id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Name, &e.Currency, &e.EquityOriginDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (r *repository) InsertEntity(ctx context.Context, groupID int64, in AddEntityInput) (Entity, error) {
	var e Entity
	err := r.db.QueryRow(ctx, `INSERT INTO consolidation_entities (group_id, name, currency, equity_origin_date)
VALUES ($1,$2,$3,$4) RETURNING id, group_id, name, currency, equity_origin_date, created_at`,
		groupID, in.Name, in.Currency, in.EquityOriginDate).Scan(&e.ID, &e.GroupID, &e.Name, &e.Currency, &e.EquityOriginDate, &e.CreatedAt)
	return e, err
}

const intercompanyColumns = `id, group_id, from_entity_id, to_entity_id, amount, currency, exchange_rate,
is_eliminated, run_id, created_at`

func scanIntercompany(row pgx.Row) (IntercompanyTransaction, error) {
	var t IntercompanyTransaction
	err := row.Scan(&t.ID, &t.GroupID, &t.FromEntityID, &t.ToEntityID, &t.Amount, &t.Currency, &t.ExchangeRate,
		&t.IsEliminated, &t.RunID, &t.CreatedAt)
	return t, err
}

func (r *repository) InsertIntercompany(ctx context.Context, groupID int64, in AddIntercompanyInput) (IntercompanyTransaction, error) {
	return scanIntercompany(r.db.QueryRow(ctx, `INSERT INTO intercompany_transactions
(group_id, from_entity_id, to_entity_id, amount, currency, exchange_rate, is_eliminated)
VALUES ($1,$2,$3,$4,$5,$6,FALSE) RETURNING `+intercompanyColumns,
		groupID, in.FromEntityID, in.ToEntityID, in.Amount, in.Currency, in.ExchangeRate))
}

func (r *repository) ListIntercompany(ctx context.Context, groupID int64) ([]IntercompanyTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+intercompanyColumns+`
FROM intercompany_transactions WHERE group_id=$1 ORDER BY id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []IntercompanyTransaction
	for rows.Next() {
		t, err := scanIntercompany(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

const runColumns = `id, group_id, period, status, rates, translation_adjustments,
assets, liabilities, equity, revenue, expenses, net_income, elimination_total,
error_message, started_at, completed_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	var rates, adjustments []byte
	err := row.Scan(&run.ID, &run.GroupID, &run.Period, &run.Status, &rates, &adjustments,
		&run.Totals.Assets, &run.Totals.Liabilities, &run.Totals.Equity, &run.Totals.Revenue,
		&run.Totals.Expenses, &run.Totals.NetIncome, &run.EliminationTotal,
		&run.ErrorMessage, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	if len(rates) > 0 {
		if err := json.Unmarshal(rates, &run.Rates); err != nil {
			return Run{}, err
		}
	}
	if len(adjustments) > 0 {
		if err := json.Unmarshal(adjustments, &run.TranslationAdjustments); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func (r *repository) GetRun(ctx context.Context, id int64) (Run, error) {
	return scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM consolidation_runs WHERE id=$1`, id))
}

func (r *repository) ListRuns(ctx context.Context, groupID int64) ([]Run, error) {
	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM consolidation_runs WHERE group_id=$1 ORDER BY id DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *repository) ListEliminations(ctx context.Context, runID int64) ([]EliminationEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, run_id, transaction_id, from_entity_id, to_entity_id, amount, entry_type, created_at
FROM elimination_entries WHERE run_id=$1 ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []EliminationEntry
	for rows.Next() {
		var e EliminationEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.TransactionID, &e.FromEntityID, &e.ToEntityID, &e.Amount, &e.EntryType, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FailRun runs outside the main transaction: the processing row must move
// to error even though every step result was rolled back.
func (r *repository) FailRun(ctx context.Context, runID int64, message string) error {
	_, err := r.db.Exec(ctx, `UPDATE consolidation_runs
SET status='error', error_message=$2, completed_at=NOW() WHERE id=$1 AND status='processing'`, runID, message)
	return err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

// InsertRun relies on the partial unique index over (group_id, period)
// excluding error runs, which is what makes "at most one non-error run per
// period" hold even when two callers race past the redis lock.
func (r *txRepository) InsertRun(ctx context.Context, groupID int64, period string) (Run, error) {
	var run Run
	err := r.tx.QueryRow(ctx, `INSERT INTO consolidation_runs (group_id, period, status)
VALUES ($1,$2,'processing') RETURNING id, group_id, period, status, started_at`,
		groupID, period).Scan(&run.ID, &run.GroupID, &run.Period, &run.Status, &run.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Run{}, ErrRunConflict
		}
		return Run{}, err
	}
	return run, nil
}

func (r *txRepository) TrialBalance(ctx context.Context, entityID int64, period string) ([]AccountBalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT entity_id, account_code, account_type, SUM(amount)
FROM entity_account_balances WHERE entity_id=$1 AND period=$2
GROUP BY entity_id, account_code, account_type ORDER BY account_code`, entityID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.EntityID, &b.AccountCode, &b.AccountType, &b.Amount); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (r *txRepository) EligibleIntercompanyForUpdate(ctx context.Context, groupID int64) ([]IntercompanyTransaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+intercompanyColumns+`
FROM intercompany_transactions WHERE group_id=$1 AND is_eliminated=FALSE ORDER BY id ASC FOR UPDATE`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []IntercompanyTransaction
	for rows.Next() {
		t, err := scanIntercompany(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *txRepository) MarkEliminated(ctx context.Context, transactionID, runID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE intercompany_transactions
SET is_eliminated=TRUE, run_id=$2 WHERE id=$1 AND is_eliminated=FALSE`, transactionID, runID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRunConflict
	}
	return nil
}

func (r *txRepository) InsertElimination(ctx context.Context, e EliminationEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO elimination_entries
(run_id, transaction_id, from_entity_id, to_entity_id, amount, entry_type)
VALUES ($1,$2,$3,$4,$5,$6)`, e.RunID, e.TransactionID, e.FromEntityID, e.ToEntityID, e.Amount, e.EntryType)
	return err
}

func (r *txRepository) CompleteRun(ctx context.Context, run Run) error {
	rates, err := json.Marshal(run.Rates)
	if err != nil {
		return err
	}
	adjustments, err := json.Marshal(run.TranslationAdjustments)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE consolidation_runs
SET status='completed', rates=$2, translation_adjustments=$3,
    assets=$4, liabilities=$5, equity=$6, revenue=$7, expenses=$8, net_income=$9,
    elimination_total=$10, completed_at=NOW()
WHERE id=$1 AND status='processing'`,
		run.ID, rates, adjustments,
		run.Totals.Assets, run.Totals.Liabilities, run.Totals.Equity,
		run.Totals.Revenue, run.Totals.Expenses, run.Totals.NetIncome, run.EliminationTotal)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// DBRateProvider reads FX quotes from the fx_rates table, most recent row
// at or before the requested period.
type DBRateProvider struct {
	db *pgxpool.Pool
}

// NewDBRateProvider constructs a pgx-backed rate provider.
func NewDBRateProvider(db *pgxpool.Pool) *DBRateProvider {
	return &DBRateProvider{db: db}
}

func (p *DBRateProvider) QuoteForPeriod(ctx context.Context, asOf time.Time, pair string) (fx.Quote, bool, error) {
	var q fx.Quote
	err := p.db.QueryRow(ctx, `SELECT closing_rate, average_rate, historical_rate
FROM fx_rates WHERE pair=$1 AND as_of <= $2 ORDER BY as_of DESC LIMIT 1`, pair, asOf).Scan(&q.Closing, &q.Average, &q.Historical)
	if errors.Is(err, pgx.ErrNoRows) {
		return fx.Quote{}, false, nil
	}
	if err != nil {
		return fx.Quote{}, false, err
	}
	return q, true, nil
}
