package instruments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for financial instruments.
type Repository interface {
	GetGuarantee(ctx context.Context, id int64) (BankGuarantee, error)
	ListGuarantees(ctx context.Context, limit int) ([]BankGuarantee, error)
	InsertGuarantee(ctx context.Context, in CreateGuaranteeInput) (BankGuarantee, error)
	GetLC(ctx context.Context, id int64) (LetterOfCredit, error)
	ListLCs(ctx context.Context, limit int) ([]LetterOfCredit, error)
	InsertLC(ctx context.Context, in CreateLCInput) (LetterOfCredit, error)
	ListUtilizations(ctx context.Context, lcID int64) ([]Utilization, error)
	ListAmendments(ctx context.Context, lcID int64) ([]Amendment, error)
	GetCheque(ctx context.Context, id int64) (Cheque, error)
	ListCheques(ctx context.Context, limit int) ([]Cheque, error)
	InsertCheque(ctx context.Context, in CreateChequeInput) (Cheque, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. The
// ForUpdate getters take the row lock that spans every recompute.
type TxRepository interface {
	GetGuaranteeForUpdate(ctx context.Context, id int64) (BankGuarantee, error)
	UpdateGuarantee(ctx context.Context, g BankGuarantee) error
	GetLCForUpdate(ctx context.Context, id int64) (LetterOfCredit, error)
	UpdateLC(ctx context.Context, lc LetterOfCredit) error
	InsertUtilization(ctx context.Context, u Utilization) (Utilization, error)
	GetUtilizationForUpdate(ctx context.Context, id int64) (Utilization, error)
	UpdateUtilizationStatus(ctx context.Context, id int64, status UtilizationStatus) error
	SumUtilized(ctx context.Context, lcID int64) (decimal.Decimal, error)
	InsertAmendment(ctx context.Context, a Amendment) (Amendment, error)
	GetAmendmentForUpdate(ctx context.Context, id int64) (Amendment, error)
	UpdateAmendmentStatus(ctx context.Context, id int64, status AmendmentStatus) error
	GetChequeForUpdate(ctx context.Context, id int64) (Cheque, error)
	UpdateChequeStatus(ctx context.Context, id int64, status ChequeStatus) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const guaranteeColumns = `id, reference, beneficiary, amount, currency, issue_date, expiry_date, status, created_at, updated_at`

func scanGuarantee(row pgx.Row) (BankGuarantee, error) {
	var g BankGuarantee
	var amount float64
	err := row.Scan(&g.ID, &g.Reference, &g.Beneficiary, &amount, &g.Currency, &g.IssueDate, &g.ExpiryDate,
		&g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankGuarantee{}, ErrGuaranteeNotFound
		}
		return BankGuarantee{}, err
	}
	g.Amount = decimal.NewFromFloat(amount)
	return g, nil
}

func (r *repository) GetGuarantee(ctx context.Context, id int64) (BankGuarantee, error) {
	return scanGuarantee(r.db.QueryRow(ctx, `SELECT `+guaranteeColumns+` FROM bank_guarantees WHERE id=$1`, id))
}

func (r *repository) ListGuarantees(ctx context.Context, limit int) ([]BankGuarantee, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+guaranteeColumns+` FROM bank_guarantees ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankGuarantee
	for rows.Next() {
		g, err := scanGuarantee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *repository) InsertGuarantee(ctx context.Context, in CreateGuaranteeInput) (BankGuarantee, error) {
	return scanGuarantee(r.db.QueryRow(ctx, `INSERT INTO bank_guarantees
(reference, beneficiary, amount, currency, issue_date, expiry_date, status)
VALUES ($1,$2,$3,$4,$5,$6,'ACTIVE') RETURNING `+guaranteeColumns,
		in.Reference, in.Beneficiary, in.Amount.InexactFloat64(), in.Currency, in.IssueDate, in.ExpiryDate))
}

const lcColumns = `id, reference, applicant, beneficiary, amount, tolerance_percent, currency,
issue_date, expiry_date, status, utilized_amount, created_at, updated_at`

func scanLC(row pgx.Row) (LetterOfCredit, error) {
	var lc LetterOfCredit
	var amount, tolerance, utilized float64
	err := row.Scan(&lc.ID, &lc.Reference, &lc.Applicant, &lc.Beneficiary, &amount, &tolerance, &lc.Currency,
		&lc.IssueDate, &lc.ExpiryDate, &lc.Status, &utilized, &lc.CreatedAt, &lc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LetterOfCredit{}, ErrLCNotFound
		}
		return LetterOfCredit{}, err
	}
	lc.Amount = decimal.NewFromFloat(amount)
	lc.TolerancePercent = decimal.NewFromFloat(tolerance)
	lc.UtilizedAmount = decimal.NewFromFloat(utilized)
	return lc, nil
}

func (r *repository) GetLC(ctx context.Context, id int64) (LetterOfCredit, error) {
	return scanLC(r.db.QueryRow(ctx, `SELECT `+lcColumns+` FROM letters_of_credit WHERE id=$1`, id))
}

func (r *repository) ListLCs(ctx context.Context, limit int) ([]LetterOfCredit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+lcColumns+` FROM letters_of_credit ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LetterOfCredit
	for rows.Next() {
		lc, err := scanLC(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (r *repository) InsertLC(ctx context.Context, in CreateLCInput) (LetterOfCredit, error) {
	return scanLC(r.db.QueryRow(ctx, `INSERT INTO letters_of_credit
(reference, applicant, beneficiary, amount, tolerance_percent, currency, issue_date, expiry_date, status, utilized_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'ISSUED',0) RETURNING `+lcColumns,
		in.Reference, in.Applicant, in.Beneficiary, in.Amount.InexactFloat64(),
		in.TolerancePercent.InexactFloat64(), in.Currency, in.IssueDate, in.ExpiryDate))
}

const utilizationColumns = `id, lc_id, amount, reference, status, created_at, updated_at`

func scanUtilization(row pgx.Row) (Utilization, error) {
	var u Utilization
	var amount float64
	err := row.Scan(&u.ID, &u.LCID, &amount, &u.Reference, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Utilization{}, ErrUtilizationNotFound
		}
		return Utilization{}, err
	}
	u.Amount = decimal.NewFromFloat(amount)
	return u, nil
}

func (r *repository) ListUtilizations(ctx context.Context, lcID int64) ([]Utilization, error) {
	rows, err := r.db.Query(ctx, `SELECT `+utilizationColumns+` FROM lc_utilizations WHERE lc_id=$1 ORDER BY id ASC`, lcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Utilization
	for rows.Next() {
		u, err := scanUtilization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const amendmentColumns = `id, lc_id, new_amount, new_expiry, status, created_at, updated_at`

func scanAmendment(row pgx.Row) (Amendment, error) {
	var a Amendment
	var amount *float64
	var expiry *time.Time
	err := row.Scan(&a.ID, &a.LCID, &amount, &expiry, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Amendment{}, ErrAmendmentNotFound
		}
		return Amendment{}, err
	}
	if amount != nil {
		d := decimal.NewFromFloat(*amount)
		a.NewAmount = &d
	}
	a.NewExpiry = expiry
	return a, nil
}

func (r *repository) ListAmendments(ctx context.Context, lcID int64) ([]Amendment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+amendmentColumns+` FROM lc_amendments WHERE lc_id=$1 ORDER BY id ASC`, lcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Amendment
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const chequeColumns = `id, kind, number, party, amount, currency, due_date, status, created_at, updated_at`

func scanCheque(row pgx.Row) (Cheque, error) {
	var c Cheque
	var amount float64
	err := row.Scan(&c.ID, &c.Kind, &c.Number, &c.Party, &amount, &c.Currency, &c.DueDate, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cheque{}, ErrChequeNotFound
		}
		return Cheque{}, err
	}
	c.Amount = decimal.NewFromFloat(amount)
	return c, nil
}

func (r *repository) GetCheque(ctx context.Context, id int64) (Cheque, error) {
	return scanCheque(r.db.QueryRow(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE id=$1`, id))
}

func (r *repository) ListCheques(ctx context.Context, limit int) ([]Cheque, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+chequeColumns+` FROM cheques ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Cheque
	for rows.Next() {
		c, err := scanCheque(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) InsertCheque(ctx context.Context, in CreateChequeInput) (Cheque, error) {
	return scanCheque(r.db.QueryRow(ctx, `INSERT INTO cheques
(kind, number, party, amount, currency, due_date, status)
VALUES ($1,$2,$3,$4,$5,$6,'ISSUED') RETURNING `+chequeColumns,
		in.Kind, in.Number, in.Party, in.Amount.InexactFloat64(), in.Currency, in.DueDate))
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

func (r *txRepository) GetGuaranteeForUpdate(ctx context.Context, id int64) (BankGuarantee, error) {
	return scanGuarantee(r.tx.QueryRow(ctx, `SELECT `+guaranteeColumns+` FROM bank_guarantees WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateGuarantee(ctx context.Context, g BankGuarantee) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_guarantees SET amount=$2, expiry_date=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		g.ID, g.Amount.InexactFloat64(), g.ExpiryDate, g.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrGuaranteeNotFound
	}
	return nil
}

func (r *txRepository) GetLCForUpdate(ctx context.Context, id int64) (LetterOfCredit, error) {
	return scanLC(r.tx.QueryRow(ctx, `SELECT `+lcColumns+` FROM letters_of_credit WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateLC(ctx context.Context, lc LetterOfCredit) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE letters_of_credit
SET amount=$2, expiry_date=$3, status=$4, utilized_amount=$5, updated_at=NOW() WHERE id=$1`,
		lc.ID, lc.Amount.InexactFloat64(), lc.ExpiryDate, lc.Status, lc.UtilizedAmount.InexactFloat64())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLCNotFound
	}
	return nil
}

func (r *txRepository) InsertUtilization(ctx context.Context, u Utilization) (Utilization, error) {
	return scanUtilization(r.tx.QueryRow(ctx, `INSERT INTO lc_utilizations
(lc_id, amount, reference, status)
VALUES ($1,$2,$3,$4) RETURNING `+utilizationColumns,
		u.LCID, u.Amount.InexactFloat64(), u.Reference, u.Status))
}

func (r *txRepository) GetUtilizationForUpdate(ctx context.Context, id int64) (Utilization, error) {
	return scanUtilization(r.tx.QueryRow(ctx, `SELECT `+utilizationColumns+` FROM lc_utilizations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateUtilizationStatus(ctx context.Context, id int64, status UtilizationStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE lc_utilizations SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUtilizationNotFound
	}
	return nil
}

// SumUtilized recomputes the utilized total from accepted and paid rows.
func (r *txRepository) SumUtilized(ctx context.Context, lcID int64) (decimal.Decimal, error) {
	var sum float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM lc_utilizations
WHERE lc_id=$1 AND status IN ('ACCEPTED','PAID')`, lcID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(sum), nil
}

func (r *txRepository) InsertAmendment(ctx context.Context, a Amendment) (Amendment, error) {
	var amount *float64
	if a.NewAmount != nil {
		f := a.NewAmount.InexactFloat64()
		amount = &f
	}
	return scanAmendment(r.tx.QueryRow(ctx, `INSERT INTO lc_amendments
(lc_id, new_amount, new_expiry, status)
VALUES ($1,$2,$3,$4) RETURNING `+amendmentColumns,
		a.LCID, amount, a.NewExpiry, a.Status))
}

func (r *txRepository) GetAmendmentForUpdate(ctx context.Context, id int64) (Amendment, error) {
	return scanAmendment(r.tx.QueryRow(ctx, `SELECT `+amendmentColumns+` FROM lc_amendments WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateAmendmentStatus(ctx context.Context, id int64, status AmendmentStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE lc_amendments SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAmendmentNotFound
	}
	return nil
}

func (r *txRepository) GetChequeForUpdate(ctx context.Context, id int64) (Cheque, error) {
	return scanCheque(r.tx.QueryRow(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateChequeStatus(ctx context.Context, id int64, status ChequeStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cheques SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrChequeNotFound
	}
	return nil
}
