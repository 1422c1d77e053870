package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrSourceAlreadyLinked indicates the source reference was posted before.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrSourceConflict indicates the source link already exists.
	ErrSourceConflict = errors.New("ledger: source link conflict")
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID int64
	Debit     float64
	Credit    float64
	CompanyID *int64
}

// PostingInput groups fields required to create a journal entry. SourceID
// together with SourceModule is the idempotency key: a calculator that
// retries a failed run reuses its reference and the second post is rejected
// with ErrSourceAlreadyLinked instead of double-booking.
type PostingInput struct {
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Lines        []PostingLineInput
}

// Validate ensures the two sides sum to zero before the post is requested.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	return nil
}
