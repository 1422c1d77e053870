package lease

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for leases.
type Repository interface {
	GetLease(ctx context.Context, id int64) (Lease, error)
	ListLeases(ctx context.Context, limit int) ([]Lease, error)
	InsertLease(ctx context.Context, in CreateLeaseInput) (Lease, error)
	ListSchedule(ctx context.Context, leaseID int64) ([]ScheduleEntry, error)
	ListModifications(ctx context.Context, leaseID int64) ([]Modification, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetLeaseForUpdate(ctx context.Context, id int64) (Lease, error)
	UpdateRecognition(ctx context.Context, id int64, res RecognitionResult, status Status) error
	InsertScheduleEntries(ctx context.Context, leaseID int64, entries []ScheduleEntry) error
	UpdateCarrying(ctx context.Context, id int64, liability, accumulatedDepreciation decimal.Decimal, status Status) error
	InsertModification(ctx context.Context, mod Modification) (Modification, error)
	DeleteScheduleFrom(ctx context.Context, leaseID int64, fromPeriod int) error
	CountPostedPeriods(ctx context.Context, leaseID int64) (int, error)
	MarkPeriodPosted(ctx context.Context, leaseID int64, periodNo int) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const leaseColumns = `id, contract_ref, currency, status, commencement_date, term_months,
payment_amount, payment_timing, periodic_rate, initial_direct_costs, incentives, restoration_costs,
liability, rou_asset, accumulated_depreciation, created_at, updated_at`

func scanLease(row pgx.Row) (Lease, error) {
	var l Lease
	var payment, rate, idc, incentives, restoration, liability, rou, accum float64
	err := row.Scan(&l.ID, &l.ContractRef, &l.Currency, &l.Status, &l.CommencementDate, &l.TermMonths,
		&payment, &l.PaymentTiming, &rate, &idc, &incentives, &restoration,
		&liability, &rou, &accum, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lease{}, ErrLeaseNotFound
		}
		return Lease{}, err
	}
	l.PaymentAmount = decimal.NewFromFloat(payment)
	l.PeriodicRate = decimal.NewFromFloat(rate)
	l.InitialDirectCosts = decimal.NewFromFloat(idc)
	l.Incentives = decimal.NewFromFloat(incentives)
	l.RestorationCosts = decimal.NewFromFloat(restoration)
	l.Liability = decimal.NewFromFloat(liability)
	l.RightOfUseAsset = decimal.NewFromFloat(rou)
	l.AccumulatedDepreciation = decimal.NewFromFloat(accum)
	return l, nil
}

func (r *repository) GetLease(ctx context.Context, id int64) (Lease, error) {
	return scanLease(r.db.QueryRow(ctx, `SELECT `+leaseColumns+` FROM leases WHERE id=$1`, id))
}

func (r *repository) ListLeases(ctx context.Context, limit int) ([]Lease, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+leaseColumns+` FROM leases ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var leases []Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

func (r *repository) InsertLease(ctx context.Context, in CreateLeaseInput) (Lease, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO leases
(contract_ref, currency, status, commencement_date, term_months, payment_amount, payment_timing,
 periodic_rate, initial_direct_costs, incentives, restoration_costs)
VALUES ($1,$2,'DRAFT',$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING `+leaseColumns,
		in.ContractRef, in.Currency, in.CommencementDate, in.TermMonths,
		in.PaymentAmount.InexactFloat64(), in.PaymentTiming, in.PeriodicRate.InexactFloat64(),
		in.InitialDirectCosts.InexactFloat64(), in.Incentives.InexactFloat64(), in.RestorationCosts.InexactFloat64())
	return scanLease(row)
}

func (r *repository) ListSchedule(ctx context.Context, leaseID int64) ([]ScheduleEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, lease_id, period_no, due_date, payment, interest, principal, opening_balance, closing_balance, created_at
FROM lease_schedule_entries WHERE lease_id=$1 ORDER BY period_no ASC`, leaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		var payment, interest, principal, opening, closing float64
		if err := rows.Scan(&e.ID, &e.LeaseID, &e.PeriodNo, &e.DueDate, &payment, &interest, &principal, &opening, &closing, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payment = decimal.NewFromFloat(payment)
		e.Interest = decimal.NewFromFloat(interest)
		e.Principal = decimal.NewFromFloat(principal)
		e.OpeningBalance = decimal.NewFromFloat(opening)
		e.ClosingBalance = decimal.NewFromFloat(closing)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) ListModifications(ctx context.Context, leaseID int64) ([]Modification, error) {
	rows, err := r.db.Query(ctx, `SELECT id, lease_id, type, effective_date, revised_liability, rou_adjustment, gain_loss, created_at
FROM lease_modifications WHERE lease_id=$1 ORDER BY id ASC`, leaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mods []Modification
	for rows.Next() {
		var m Modification
		var revised, rouAdj, gainLoss float64
		if err := rows.Scan(&m.ID, &m.LeaseID, &m.Type, &m.EffectiveDate, &revised, &rouAdj, &gainLoss, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.RevisedLiability = decimal.NewFromFloat(revised)
		m.RouAdjustment = decimal.NewFromFloat(rouAdj)
		m.GainLoss = decimal.NewFromFloat(gainLoss)
		mods = append(mods, m)
	}
	return mods, rows.Err()
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

func (r *txRepository) GetLeaseForUpdate(ctx context.Context, id int64) (Lease, error) {
	return scanLease(r.tx.QueryRow(ctx, `SELECT `+leaseColumns+` FROM leases WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateRecognition(ctx context.Context, id int64, res RecognitionResult, status Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE leases SET liability=$2, rou_asset=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		id, res.Liability.InexactFloat64(), res.RightOfUseAsset.InexactFloat64(), status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLeaseNotFound
	}
	return nil
}

func (r *txRepository) InsertScheduleEntries(ctx context.Context, leaseID int64, entries []ScheduleEntry) error {
	for _, e := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO lease_schedule_entries
(lease_id, period_no, due_date, payment, interest, principal, opening_balance, closing_balance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			leaseID, e.PeriodNo, e.DueDate, e.Payment.InexactFloat64(), e.Interest.InexactFloat64(),
			e.Principal.InexactFloat64(), e.OpeningBalance.InexactFloat64(), e.ClosingBalance.InexactFloat64())
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

func (r *txRepository) UpdateCarrying(ctx context.Context, id int64, liability, accumulatedDepreciation decimal.Decimal, status Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE leases SET liability=$2, accumulated_depreciation=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		id, liability.InexactFloat64(), accumulatedDepreciation.InexactFloat64(), status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLeaseNotFound
	}
	return nil
}

func (r *txRepository) InsertModification(ctx context.Context, mod Modification) (Modification, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO lease_modifications
(lease_id, type, effective_date, revised_liability, rou_adjustment, gain_loss)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		mod.LeaseID, mod.Type, mod.EffectiveDate, mod.RevisedLiability.InexactFloat64(),
		mod.RouAdjustment.InexactFloat64(), mod.GainLoss.InexactFloat64())
	if err := row.Scan(&mod.ID, &mod.CreatedAt); err != nil {
		return Modification{}, err
	}
	return mod, nil
}

func (r *txRepository) DeleteScheduleFrom(ctx context.Context, leaseID int64, fromPeriod int) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM lease_schedule_entries WHERE lease_id=$1 AND period_no >= $2 AND posted_at IS NULL`, leaseID, fromPeriod)
	return err
}

func (r *txRepository) CountPostedPeriods(ctx context.Context, leaseID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM lease_schedule_entries WHERE lease_id=$1 AND posted_at IS NOT NULL`, leaseID).Scan(&n)
	return n, err
}

func (r *txRepository) MarkPeriodPosted(ctx context.Context, leaseID int64, periodNo int) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE lease_schedule_entries SET posted_at=NOW() WHERE lease_id=$1 AND period_no=$2 AND posted_at IS NULL`, leaseID, periodNo)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodAlreadyPosted
	}
	return nil
}
