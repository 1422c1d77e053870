package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for journal postings.
type Repository interface {
	List(ctx context.Context, limit int) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT id, number, date, source_module, source_id, memo, posted_by, posted_at, status, created_at, updated_at
FROM journal_entries ORDER BY number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Number, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo, &e.PostedBy, &e.PostedAt, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
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

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, source_module, source_id, memo, posted_by, status)
VALUES ($1,$2,$3,$4,$5,'POSTED') RETURNING id, number, posted_at, created_at, updated_at`,
		in.Date, in.SourceModule, in.SourceID, in.Memo, in.PostedBy)
	var entry JournalEntry
	entry.Date = in.Date
	entry.SourceModule = in.SourceModule
	entry.SourceID = in.SourceID
	entry.Memo = in.Memo
	entry.PostedBy = in.PostedBy
	entry.Status = JournalStatusPosted
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit, dim_company_id)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.AccountID, line.Debit, line.Credit, line.CompanyID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, je_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_source_links" {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

// IsNotFound reports whether err is the pgx no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
