package revenue

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for revenue contracts.
type Repository interface {
	GetContract(ctx context.Context, id int64) (Contract, error)
	ListContracts(ctx context.Context, limit int) ([]Contract, error)
	InsertContract(ctx context.Context, in CreateContractInput) (Contract, []Obligation, error)
	ListObligations(ctx context.Context, contractID int64) ([]Obligation, error)
	ListConsiderations(ctx context.Context, contractID int64) ([]VariableConsideration, error)
	InsertConsideration(ctx context.Context, contractID int64, in AddConsiderationInput) (VariableConsideration, error)
	ListRecognitionEntries(ctx context.Context, obligationID int64) ([]RecognitionEntry, error)
	ListPlannedEntries(ctx context.Context, obligationID int64) ([]PlannedEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetContractForUpdate(ctx context.Context, id int64) (Contract, error)
	ListObligations(ctx context.Context, contractID int64) ([]Obligation, error)
	ListConsiderations(ctx context.Context, contractID int64) ([]VariableConsideration, error)
	GetObligationForUpdate(ctx context.Context, id int64) (Obligation, error)
	GetConsiderationForUpdate(ctx context.Context, id int64) (VariableConsideration, error)
	UpdateAllocatedPrice(ctx context.Context, obligationID int64, allocated decimal.Decimal) error
	UpdateObligationProgress(ctx context.Context, id int64, cumulative decimal.Decimal, status ObligationStatus) error
	InsertRecognitionEntry(ctx context.Context, e RecognitionEntry) (RecognitionEntry, error)
	NextSeq(ctx context.Context, obligationID int64) (int, error)
	CountRecognitionEntries(ctx context.Context, obligationID int64) (int, error)
	InsertPlannedEntries(ctx context.Context, obligationID int64, entries []PlannedEntry) error
	MarkConsiderationResolved(ctx context.Context, id int64, actual decimal.Decimal, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const contractColumns = `id, reference, currency, total_price, start_date, end_date, created_at, updated_at`

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	var total float64
	err := row.Scan(&c.ID, &c.Reference, &c.Currency, &total, &c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrContractNotFound
		}
		return Contract{}, err
	}
	c.TotalPrice = decimal.NewFromFloat(total)
	return c, nil
}

const obligationColumns = `id, contract_id, name, standalone_selling_price, allocated_price, pattern,
status, cumulative_recognized, expected_completion, created_at, updated_at`

func scanObligation(row pgx.Row) (Obligation, error) {
	var ob Obligation
	var ssp, allocated, cumulative float64
	err := row.Scan(&ob.ID, &ob.ContractID, &ob.Name, &ssp, &allocated, &ob.Pattern,
		&ob.Status, &cumulative, &ob.ExpectedCompletion, &ob.CreatedAt, &ob.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Obligation{}, ErrObligationNotFound
		}
		return Obligation{}, err
	}
	ob.StandaloneSellingPrice = decimal.NewFromFloat(ssp)
	ob.AllocatedPrice = decimal.NewFromFloat(allocated)
	ob.CumulativeRecognized = decimal.NewFromFloat(cumulative)
	return ob, nil
}

const considerationColumns = `id, contract_id, description, estimated_amount, constraint_amount, method,
actual_amount, resolved, created_at, updated_at`

func scanConsideration(row pgx.Row) (VariableConsideration, error) {
	var vc VariableConsideration
	var estimated, constraint float64
	var actual *float64
	err := row.Scan(&vc.ID, &vc.ContractID, &vc.Description, &estimated, &constraint, &vc.Method,
		&actual, &vc.Resolved, &vc.CreatedAt, &vc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VariableConsideration{}, ErrConsiderationNotFound
		}
		return VariableConsideration{}, err
	}
	vc.EstimatedAmount = decimal.NewFromFloat(estimated)
	vc.ConstraintAmount = decimal.NewFromFloat(constraint)
	if actual != nil {
		d := decimal.NewFromFloat(*actual)
		vc.ActualAmount = &d
	}
	return vc, nil
}

func (r *repository) GetContract(ctx context.Context, id int64) (Contract, error) {
	return scanContract(r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM revenue_contracts WHERE id=$1`, id))
}

func (r *repository) ListContracts(ctx context.Context, limit int) ([]Contract, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+contractColumns+` FROM revenue_contracts ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contracts []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func (r *repository) InsertContract(ctx context.Context, in CreateContractInput) (Contract, []Obligation, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Contract{}, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c, err := scanContract(tx.QueryRow(ctx, `INSERT INTO revenue_contracts
(reference, currency, total_price, start_date, end_date)
VALUES ($1,$2,$3,$4,$5) RETURNING `+contractColumns,
		in.Reference, in.Currency, in.TotalPrice.InexactFloat64(), in.StartDate, in.EndDate))
	if err != nil {
		return Contract{}, nil, err
	}
	obligations := make([]Obligation, 0, len(in.Obligations))
	for _, obIn := range in.Obligations {
		ob, err := scanObligation(tx.QueryRow(ctx, `INSERT INTO performance_obligations
(contract_id, name, standalone_selling_price, allocated_price, pattern, status, cumulative_recognized, expected_completion)
VALUES ($1,$2,$3,0,$4,'PENDING',0,$5) RETURNING `+obligationColumns,
			c.ID, obIn.Name, obIn.StandaloneSellingPrice.InexactFloat64(), obIn.Pattern, obIn.ExpectedCompletion))
		if err != nil {
			return Contract{}, nil, err
		}
		obligations = append(obligations, ob)
	}
	if err := tx.Commit(ctx); err != nil {
		return Contract{}, nil, err
	}
	return c, obligations, nil
}

func listObligations(ctx context.Context, q querier, contractID int64) ([]Obligation, error) {
	rows, err := q.Query(ctx, `SELECT `+obligationColumns+` FROM performance_obligations WHERE contract_id=$1 ORDER BY id ASC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var obligations []Obligation
	for rows.Next() {
		ob, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, ob)
	}
	return obligations, rows.Err()
}

func listConsiderations(ctx context.Context, q querier, contractID int64) ([]VariableConsideration, error) {
	rows, err := q.Query(ctx, `SELECT `+considerationColumns+` FROM variable_considerations WHERE contract_id=$1 ORDER BY id ASC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var considerations []VariableConsideration
	for rows.Next() {
		vc, err := scanConsideration(rows)
		if err != nil {
			return nil, err
		}
		considerations = append(considerations, vc)
	}
	return considerations, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *repository) ListObligations(ctx context.Context, contractID int64) ([]Obligation, error) {
	return listObligations(ctx, r.db, contractID)
}

func (r *repository) ListConsiderations(ctx context.Context, contractID int64) ([]VariableConsideration, error) {
	return listConsiderations(ctx, r.db, contractID)
}

func (r *repository) InsertConsideration(ctx context.Context, contractID int64, in AddConsiderationInput) (VariableConsideration, error) {
	return scanConsideration(r.db.QueryRow(ctx, `INSERT INTO variable_considerations
(contract_id, description, estimated_amount, constraint_amount, method, resolved)
VALUES ($1,$2,$3,$4,$5,FALSE) RETURNING `+considerationColumns,
		contractID, in.Description, in.EstimatedAmount.InexactFloat64(), in.ConstraintAmount.InexactFloat64(), in.Method))
}

func (r *repository) ListRecognitionEntries(ctx context.Context, obligationID int64) ([]RecognitionEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, obligation_id, seq, recognition_date, amount, cumulative_after, created_at
FROM recognition_entries WHERE obligation_id=$1 ORDER BY seq ASC`, obligationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []RecognitionEntry
	for rows.Next() {
		var e RecognitionEntry
		var amount, cumulative float64
		if err := rows.Scan(&e.ID, &e.ObligationID, &e.Seq, &e.RecognitionDate, &amount, &cumulative, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount = decimal.NewFromFloat(amount)
		e.CumulativeAfter = decimal.NewFromFloat(cumulative)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) ListPlannedEntries(ctx context.Context, obligationID int64) ([]PlannedEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, obligation_id, period_no, recognition_date, amount, cumulative, created_at
FROM planned_recognition_entries WHERE obligation_id=$1 ORDER BY period_no ASC`, obligationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []PlannedEntry
	for rows.Next() {
		var e PlannedEntry
		var amount, cumulative float64
		if err := rows.Scan(&e.ID, &e.ObligationID, &e.PeriodNo, &e.RecognitionDate, &amount, &cumulative, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount = decimal.NewFromFloat(amount)
		e.Cumulative = decimal.NewFromFloat(cumulative)
		entries = append(entries, e)
	}
	return entries, rows.Err()
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

func (r *txRepository) GetContractForUpdate(ctx context.Context, id int64) (Contract, error) {
	return scanContract(r.tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM revenue_contracts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) ListObligations(ctx context.Context, contractID int64) ([]Obligation, error) {
	return listObligations(ctx, r.tx, contractID)
}

func (r *txRepository) ListConsiderations(ctx context.Context, contractID int64) ([]VariableConsideration, error) {
	return listConsiderations(ctx, r.tx, contractID)
}

func (r *txRepository) GetObligationForUpdate(ctx context.Context, id int64) (Obligation, error) {
	return scanObligation(r.tx.QueryRow(ctx, `SELECT `+obligationColumns+` FROM performance_obligations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetConsiderationForUpdate(ctx context.Context, id int64) (VariableConsideration, error) {
	return scanConsideration(r.tx.QueryRow(ctx, `SELECT `+considerationColumns+` FROM variable_considerations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateAllocatedPrice(ctx context.Context, obligationID int64, allocated decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE performance_obligations SET allocated_price=$2, updated_at=NOW() WHERE id=$1`,
		obligationID, allocated.InexactFloat64())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrObligationNotFound
	}
	return nil
}

func (r *txRepository) UpdateObligationProgress(ctx context.Context, id int64, cumulative decimal.Decimal, status ObligationStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE performance_obligations SET cumulative_recognized=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		id, cumulative.InexactFloat64(), status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrObligationNotFound
	}
	return nil
}

func (r *txRepository) InsertRecognitionEntry(ctx context.Context, e RecognitionEntry) (RecognitionEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO recognition_entries
(obligation_id, seq, recognition_date, amount, cumulative_after)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		e.ObligationID, e.Seq, e.RecognitionDate, e.Amount.InexactFloat64(), e.CumulativeAfter.InexactFloat64())
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return RecognitionEntry{}, ErrAlreadyRecognized
		}
		return RecognitionEntry{}, err
	}
	return e, nil
}

func (r *txRepository) NextSeq(ctx context.Context, obligationID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM recognition_entries WHERE obligation_id=$1`, obligationID).Scan(&n)
	return n, err
}

func (r *txRepository) CountRecognitionEntries(ctx context.Context, obligationID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM recognition_entries WHERE obligation_id=$1`, obligationID).Scan(&n)
	return n, err
}

func (r *txRepository) InsertPlannedEntries(ctx context.Context, obligationID int64, entries []PlannedEntry) error {
	for _, e := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO planned_recognition_entries
(obligation_id, period_no, recognition_date, amount, cumulative)
VALUES ($1,$2,$3,$4,$5)`,
			obligationID, e.PeriodNo, e.RecognitionDate, e.Amount.InexactFloat64(), e.Cumulative.InexactFloat64())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrScheduleExists
			}
			return err
		}
	}
	return nil
}

func (r *txRepository) MarkConsiderationResolved(ctx context.Context, id int64, actual decimal.Decimal, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE variable_considerations SET actual_amount=$2, resolved=TRUE, updated_at=$3 WHERE id=$1 AND NOT resolved`,
		id, actual.InexactFloat64(), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}
