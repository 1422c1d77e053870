package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Poster is the posting contract the calculators consume. The core only
// guarantees the two sides sum to zero before requesting the post; account
// chart validation belongs to the ledger side of the boundary.
type Poster interface {
	PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error)
}

// AuditPort records posting events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements Poster on top of the journal repository.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the posting service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns recent journal entries.
func (s *Service) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.List(ctx, limit)
}

// PostJournal validates and persists a balanced double-entry posting.
// The source link insert makes retried posts idempotent.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceID, inserted.ID); err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return ErrSourceAlreadyLinked
			}
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PostedBy,
			Module:   input.SourceModule,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":    entry.Number,
				"source_id": input.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}
