package instruments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const auditModule = "INSTRUMENTS"

const utilizationLockTTL = 30 * time.Second

// AuditPort records instrument lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives guarantee, LC and cheque lifecycles.
type Service struct {
	repo  Repository
	redis *redis.Client
	audit AuditPort
	now   func() time.Time
}

// NewService constructs an instruments service. The redis client is
// optional; the row lock inside the transaction remains the
// authoritative guard on utilization recomputes.
func NewService(repo Repository, redisClient *redis.Client, audit AuditPort) *Service {
	return &Service{repo: repo, redis: redisClient, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateGuarantee issues a bank guarantee in the active state.
func (s *Service) CreateGuarantee(ctx context.Context, in CreateGuaranteeInput) (BankGuarantee, error) {
	if !in.Amount.IsPositive() {
		return BankGuarantee{}, shared.InvalidInput("instruments: guarantee amount %s", in.Amount)
	}
	if !in.ExpiryDate.After(in.IssueDate) {
		return BankGuarantee{}, shared.InvalidInput("instruments: expiry %s not after issue %s",
			in.ExpiryDate.Format("2006-01-02"), in.IssueDate.Format("2006-01-02"))
	}
	g, err := s.repo.InsertGuarantee(ctx, in)
	if err != nil {
		return BankGuarantee{}, err
	}
	s.record(ctx, 0, "guarantee.create", "guarantee", g.ID, map[string]any{"reference": g.Reference})
	return g, nil
}

// GetGuarantee loads a single guarantee.
func (s *Service) GetGuarantee(ctx context.Context, id int64) (BankGuarantee, error) {
	return s.repo.GetGuarantee(ctx, id)
}

// ListGuarantees returns recent guarantees.
func (s *Service) ListGuarantees(ctx context.Context, limit int) ([]BankGuarantee, error) {
	return s.repo.ListGuarantees(ctx, limit)
}

// AmendGuarantee changes the guaranteed amount while the guarantee is
// active.
func (s *Service) AmendGuarantee(ctx context.Context, id int64, in AmendGuaranteeInput) (BankGuarantee, error) {
	return s.guaranteeTransition(ctx, id, in.ActorID, "guarantee.amend", func(g *BankGuarantee) error {
		return g.Amend(in.Amount)
	})
}

// RenewGuarantee extends the expiry of an active guarantee.
func (s *Service) RenewGuarantee(ctx context.Context, id int64, in RenewGuaranteeInput) (BankGuarantee, error) {
	return s.guaranteeTransition(ctx, id, in.ActorID, "guarantee.renew", func(g *BankGuarantee) error {
		return g.Renew(in.ExpiryDate)
	})
}

// ReleaseGuarantee returns the guarantee to the applicant.
func (s *Service) ReleaseGuarantee(ctx context.Context, id, actorID int64) (BankGuarantee, error) {
	return s.guaranteeTransition(ctx, id, actorID, "guarantee.release", (*BankGuarantee).Release)
}

// ClaimGuarantee records a beneficiary call on the guarantee.
func (s *Service) ClaimGuarantee(ctx context.Context, id, actorID int64) (BankGuarantee, error) {
	return s.guaranteeTransition(ctx, id, actorID, "guarantee.claim", (*BankGuarantee).Claim)
}

// ExpireGuarantee closes the guarantee past its expiry date.
func (s *Service) ExpireGuarantee(ctx context.Context, id, actorID int64) (BankGuarantee, error) {
	return s.guaranteeTransition(ctx, id, actorID, "guarantee.expire", (*BankGuarantee).Expire)
}

func (s *Service) guaranteeTransition(ctx context.Context, id, actorID int64, action string, fn func(*BankGuarantee) error) (BankGuarantee, error) {
	var out BankGuarantee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetGuaranteeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&g); err != nil {
			return err
		}
		if err := tx.UpdateGuarantee(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return BankGuarantee{}, err
	}
	s.record(ctx, actorID, action, "guarantee", out.ID, map[string]any{"status": out.Status})
	return out, nil
}

// CreateLC issues a letter of credit.
func (s *Service) CreateLC(ctx context.Context, in CreateLCInput) (LetterOfCredit, error) {
	if !in.Amount.IsPositive() {
		return LetterOfCredit{}, shared.InvalidInput("instruments: LC amount %s", in.Amount)
	}
	if in.TolerancePercent.IsNegative() {
		return LetterOfCredit{}, shared.InvalidInput("instruments: tolerance %s", in.TolerancePercent)
	}
	if !in.ExpiryDate.After(in.IssueDate) {
		return LetterOfCredit{}, shared.InvalidInput("instruments: expiry %s not after issue %s",
			in.ExpiryDate.Format("2006-01-02"), in.IssueDate.Format("2006-01-02"))
	}
	lc, err := s.repo.InsertLC(ctx, in)
	if err != nil {
		return LetterOfCredit{}, err
	}
	s.record(ctx, 0, "lc.create", "letter_of_credit", lc.ID, map[string]any{"reference": lc.Reference})
	return lc, nil
}

// GetLC loads a single letter of credit.
func (s *Service) GetLC(ctx context.Context, id int64) (LetterOfCredit, error) {
	return s.repo.GetLC(ctx, id)
}

// ListLCs returns recent letters of credit.
func (s *Service) ListLCs(ctx context.Context, limit int) ([]LetterOfCredit, error) {
	return s.repo.ListLCs(ctx, limit)
}

// Utilizations lists drawings under one LC.
func (s *Service) Utilizations(ctx context.Context, lcID int64) ([]Utilization, error) {
	if _, err := s.repo.GetLC(ctx, lcID); err != nil {
		return nil, err
	}
	return s.repo.ListUtilizations(ctx, lcID)
}

// Amendments lists proposed and resolved amendments for one LC.
func (s *Service) Amendments(ctx context.Context, lcID int64) ([]Amendment, error) {
	if _, err := s.repo.GetLC(ctx, lcID); err != nil {
		return nil, err
	}
	return s.repo.ListAmendments(ctx, lcID)
}

// RequestUtilization registers a drawing in the requested state. The
// limit is enforced at acceptance, not here.
func (s *Service) RequestUtilization(ctx context.Context, lcID int64, in UtilizationInput) (Utilization, error) {
	if !in.Amount.IsPositive() {
		return Utilization{}, shared.InvalidInput("instruments: utilization amount %s", in.Amount)
	}
	var out Utilization
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lc, err := tx.GetLCForUpdate(ctx, lcID)
		if err != nil {
			return err
		}
		if err := lc.ensureIssued(); err != nil {
			return err
		}
		out, err = tx.InsertUtilization(ctx, Utilization{
			LCID:      lcID,
			Amount:    in.Amount,
			Reference: in.Reference,
			Status:    UtilizationRequested,
		})
		return err
	})
	if err != nil {
		return Utilization{}, err
	}
	s.record(ctx, in.ActorID, "lc.utilization.request", "lc_utilization", out.ID, map[string]any{"lc_id": lcID})
	return out, nil
}

// AcceptUtilization accepts a requested drawing. The utilized total is
// recomputed from accepted and paid rows under the LC row lock, so two
// concurrent acceptances cannot both fit inside the same headroom.
func (s *Service) AcceptUtilization(ctx context.Context, lcID, utilizationID, actorID int64) (Utilization, error) {
	if s.redis != nil {
		lock, err := cache.AcquireLock(ctx, s.redis, shared.InstrumentLockKey("lc", lcID), uuid.NewString(), utilizationLockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				return Utilization{}, ErrInstrumentBusy
			}
			return Utilization{}, shared.Downstream("redis", err)
		}
		defer func() { _ = lock.Release(ctx) }()
	}
	var out Utilization
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lc, err := tx.GetLCForUpdate(ctx, lcID)
		if err != nil {
			return err
		}
		u, err := tx.GetUtilizationForUpdate(ctx, utilizationID)
		if err != nil {
			return err
		}
		if u.LCID != lcID {
			return ErrUtilizationNotFound
		}
		if u.Status != UtilizationRequested {
			return shared.StateConflict("utilization", string(u.Status))
		}
		utilized, err := tx.SumUtilized(ctx, lcID)
		if err != nil {
			return err
		}
		if err := lc.CheckUtilization(utilized, u.Amount); err != nil {
			return err
		}
		if err := tx.UpdateUtilizationStatus(ctx, u.ID, UtilizationAccepted); err != nil {
			return err
		}
		lc.UtilizedAmount = utilized.Add(u.Amount)
		if err := tx.UpdateLC(ctx, lc); err != nil {
			return err
		}
		u.Status = UtilizationAccepted
		out = u
		return nil
	})
	if err != nil {
		return Utilization{}, err
	}
	s.record(ctx, actorID, "lc.utilization.accept", "lc_utilization", out.ID, map[string]any{
		"lc_id":  lcID,
		"amount": out.Amount.String(),
	})
	return out, nil
}

// RejectUtilization declines a requested drawing.
func (s *Service) RejectUtilization(ctx context.Context, lcID, utilizationID, actorID int64) (Utilization, error) {
	return s.utilizationTransition(ctx, lcID, utilizationID, actorID, "lc.utilization.reject",
		UtilizationRequested, UtilizationRejected)
}

// PayUtilization settles an accepted drawing. The utilized total does
// not move: paid rows already count against the ceiling.
func (s *Service) PayUtilization(ctx context.Context, lcID, utilizationID, actorID int64) (Utilization, error) {
	return s.utilizationTransition(ctx, lcID, utilizationID, actorID, "lc.utilization.pay",
		UtilizationAccepted, UtilizationPaid)
}

func (s *Service) utilizationTransition(ctx context.Context, lcID, utilizationID, actorID int64, action string, from, to UtilizationStatus) (Utilization, error) {
	var out Utilization
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.GetUtilizationForUpdate(ctx, utilizationID)
		if err != nil {
			return err
		}
		if u.LCID != lcID {
			return ErrUtilizationNotFound
		}
		if u.Status != from {
			return shared.StateConflict("utilization", string(u.Status))
		}
		if err := tx.UpdateUtilizationStatus(ctx, u.ID, to); err != nil {
			return err
		}
		u.Status = to
		out = u
		return nil
	})
	if err != nil {
		return Utilization{}, err
	}
	s.record(ctx, actorID, action, "lc_utilization", out.ID, map[string]any{"lc_id": lcID})
	return out, nil
}

// ProposeAmendment registers a pending change to amount and/or expiry.
func (s *Service) ProposeAmendment(ctx context.Context, lcID int64, in AmendmentInput) (Amendment, error) {
	if in.NewAmount == nil && in.NewExpiry == nil {
		return Amendment{}, shared.InvalidInput("instruments: amendment must change amount or expiry")
	}
	if in.NewAmount != nil && !in.NewAmount.IsPositive() {
		return Amendment{}, shared.InvalidInput("instruments: amended amount %s", in.NewAmount)
	}
	var out Amendment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lc, err := tx.GetLCForUpdate(ctx, lcID)
		if err != nil {
			return err
		}
		if err := lc.ensureIssued(); err != nil {
			return err
		}
		out, err = tx.InsertAmendment(ctx, Amendment{
			LCID:      lcID,
			NewAmount: in.NewAmount,
			NewExpiry: in.NewExpiry,
			Status:    AmendmentPending,
		})
		return err
	})
	if err != nil {
		return Amendment{}, err
	}
	s.record(ctx, in.ActorID, "lc.amendment.propose", "lc_amendment", out.ID, map[string]any{"lc_id": lcID})
	return out, nil
}

// AcceptAmendment applies a pending amendment to the LC. The amendment
// is refused when the already utilized total would overflow the new
// ceiling.
func (s *Service) AcceptAmendment(ctx context.Context, lcID, amendmentID, actorID int64) (LetterOfCredit, error) {
	var out LetterOfCredit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lc, err := tx.GetLCForUpdate(ctx, lcID)
		if err != nil {
			return err
		}
		a, err := tx.GetAmendmentForUpdate(ctx, amendmentID)
		if err != nil {
			return err
		}
		if a.LCID != lcID {
			return ErrAmendmentNotFound
		}
		if a.Status != AmendmentPending {
			return shared.StateConflict("amendment", string(a.Status))
		}
		if err := lc.ApplyAmendment(a); err != nil {
			return err
		}
		utilized, err := tx.SumUtilized(ctx, lcID)
		if err != nil {
			return err
		}
		if utilized.GreaterThan(lc.Ceiling()) {
			return ErrLimitExceeded
		}
		if err := tx.UpdateAmendmentStatus(ctx, a.ID, AmendmentAccepted); err != nil {
			return err
		}
		lc.UtilizedAmount = utilized
		if err := tx.UpdateLC(ctx, lc); err != nil {
			return err
		}
		out = lc
		return nil
	})
	if err != nil {
		return LetterOfCredit{}, err
	}
	s.record(ctx, actorID, "lc.amendment.accept", "letter_of_credit", out.ID, map[string]any{"amendment_id": amendmentID})
	return out, nil
}

// RejectAmendment declines a pending amendment.
func (s *Service) RejectAmendment(ctx context.Context, lcID, amendmentID, actorID int64) (Amendment, error) {
	var out Amendment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAmendmentForUpdate(ctx, amendmentID)
		if err != nil {
			return err
		}
		if a.LCID != lcID {
			return ErrAmendmentNotFound
		}
		if a.Status != AmendmentPending {
			return shared.StateConflict("amendment", string(a.Status))
		}
		if err := tx.UpdateAmendmentStatus(ctx, a.ID, AmendmentRejected); err != nil {
			return err
		}
		a.Status = AmendmentRejected
		out = a
		return nil
	})
	if err != nil {
		return Amendment{}, err
	}
	s.record(ctx, actorID, "lc.amendment.reject", "lc_amendment", out.ID, map[string]any{"lc_id": lcID})
	return out, nil
}

// CloseLC ends the LC after business completion.
func (s *Service) CloseLC(ctx context.Context, id, actorID int64) (LetterOfCredit, error) {
	return s.lcTransition(ctx, id, actorID, "lc.close", (*LetterOfCredit).Close)
}

// ExpireLC ends the LC past its expiry date.
func (s *Service) ExpireLC(ctx context.Context, id, actorID int64) (LetterOfCredit, error) {
	return s.lcTransition(ctx, id, actorID, "lc.expire", (*LetterOfCredit).Expire)
}

func (s *Service) lcTransition(ctx context.Context, id, actorID int64, action string, fn func(*LetterOfCredit) error) (LetterOfCredit, error) {
	var out LetterOfCredit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lc, err := tx.GetLCForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&lc); err != nil {
			return err
		}
		if err := tx.UpdateLC(ctx, lc); err != nil {
			return err
		}
		out = lc
		return nil
	})
	if err != nil {
		return LetterOfCredit{}, err
	}
	s.record(ctx, actorID, action, "letter_of_credit", out.ID, map[string]any{"status": out.Status})
	return out, nil
}

// CreateCheque registers an issued or received cheque.
func (s *Service) CreateCheque(ctx context.Context, in CreateChequeInput) (Cheque, error) {
	if !in.Amount.IsPositive() {
		return Cheque{}, shared.InvalidInput("instruments: cheque amount %s", in.Amount)
	}
	c, err := s.repo.InsertCheque(ctx, in)
	if err != nil {
		return Cheque{}, err
	}
	s.record(ctx, 0, "cheque.create", "cheque", c.ID, map[string]any{"number": c.Number})
	return c, nil
}

// GetCheque loads one cheque.
func (s *Service) GetCheque(ctx context.Context, id int64) (Cheque, error) {
	return s.repo.GetCheque(ctx, id)
}

// ListCheques returns recent cheques.
func (s *Service) ListCheques(ctx context.Context, limit int) ([]Cheque, error) {
	return s.repo.ListCheques(ctx, limit)
}

// DepositCheque banks a received cheque.
func (s *Service) DepositCheque(ctx context.Context, id, actorID int64) (Cheque, error) {
	return s.chequeTransition(ctx, id, actorID, "cheque.deposit", (*Cheque).Deposit)
}

// PrintCheque marks an issued cheque as printed.
func (s *Service) PrintCheque(ctx context.Context, id, actorID int64) (Cheque, error) {
	return s.chequeTransition(ctx, id, actorID, "cheque.print", (*Cheque).Print)
}

// ClearCheque settles the cheque.
func (s *Service) ClearCheque(ctx context.Context, id, actorID int64) (Cheque, error) {
	return s.chequeTransition(ctx, id, actorID, "cheque.clear", (*Cheque).Clear)
}

// BounceCheque records a dishonoured cheque.
func (s *Service) BounceCheque(ctx context.Context, id, actorID int64) (Cheque, error) {
	return s.chequeTransition(ctx, id, actorID, "cheque.bounce", (*Cheque).Bounce)
}

// StopCheque blocks payment on an issued cheque.
func (s *Service) StopCheque(ctx context.Context, id, actorID int64) (Cheque, error) {
	return s.chequeTransition(ctx, id, actorID, "cheque.stop", (*Cheque).Stop)
}

// CancelCheque voids the cheque.
func (s *Service) CancelCheque(ctx context.Context, id, actorID int64) (Cheque, error) {
	return s.chequeTransition(ctx, id, actorID, "cheque.cancel", (*Cheque).Cancel)
}

func (s *Service) chequeTransition(ctx context.Context, id, actorID int64, action string, fn func(*Cheque) error) (Cheque, error) {
	var out Cheque
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetChequeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		if err := tx.UpdateChequeStatus(ctx, c.ID, c.Status); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Cheque{}, err
	}
	s.record(ctx, actorID, action, "cheque", out.ID, map[string]any{"status": out.Status})
	return out, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Module:   auditModule,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}
