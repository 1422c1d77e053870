package instruments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryInstrumentsRepo struct {
	guarantees   map[int64]BankGuarantee
	lcs          map[int64]LetterOfCredit
	utilizations map[int64]Utilization
	amendments   map[int64]Amendment
	cheques      map[int64]Cheque
	nextID       int64
}

func newMemoryInstrumentsRepo() *memoryInstrumentsRepo {
	return &memoryInstrumentsRepo{
		guarantees:   make(map[int64]BankGuarantee),
		lcs:          make(map[int64]LetterOfCredit),
		utilizations: make(map[int64]Utilization),
		amendments:   make(map[int64]Amendment),
		cheques:      make(map[int64]Cheque),
	}
}

func (r *memoryInstrumentsRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryInstrumentsRepo) GetGuarantee(ctx context.Context, id int64) (BankGuarantee, error) {
	g, ok := r.guarantees[id]
	if !ok {
		return BankGuarantee{}, ErrGuaranteeNotFound
	}
	return g, nil
}

func (r *memoryInstrumentsRepo) ListGuarantees(ctx context.Context, limit int) ([]BankGuarantee, error) {
	var out []BankGuarantee
	for _, g := range r.guarantees {
		out = append(out, g)
	}
	return out, nil
}

func (r *memoryInstrumentsRepo) InsertGuarantee(ctx context.Context, in CreateGuaranteeInput) (BankGuarantee, error) {
	g := BankGuarantee{
		ID:          r.id(),
		Reference:   in.Reference,
		Beneficiary: in.Beneficiary,
		Amount:      in.Amount,
		Currency:    in.Currency,
		IssueDate:   in.IssueDate,
		ExpiryDate:  in.ExpiryDate,
		Status:      GuaranteeActive,
	}
	r.guarantees[g.ID] = g
	return g, nil
}

func (r *memoryInstrumentsRepo) GetLC(ctx context.Context, id int64) (LetterOfCredit, error) {
	lc, ok := r.lcs[id]
	if !ok {
		return LetterOfCredit{}, ErrLCNotFound
	}
	return lc, nil
}

func (r *memoryInstrumentsRepo) ListLCs(ctx context.Context, limit int) ([]LetterOfCredit, error) {
	var out []LetterOfCredit
	for _, lc := range r.lcs {
		out = append(out, lc)
	}
	return out, nil
}

func (r *memoryInstrumentsRepo) InsertLC(ctx context.Context, in CreateLCInput) (LetterOfCredit, error) {
	lc := LetterOfCredit{
		ID:               r.id(),
		Reference:        in.Reference,
		Applicant:        in.Applicant,
		Beneficiary:      in.Beneficiary,
		Amount:           in.Amount,
		TolerancePercent: in.TolerancePercent,
		Currency:         in.Currency,
		IssueDate:        in.IssueDate,
		ExpiryDate:       in.ExpiryDate,
		Status:           LCIssued,
		UtilizedAmount:   decimal.Zero,
	}
	r.lcs[lc.ID] = lc
	return lc, nil
}

func (r *memoryInstrumentsRepo) ListUtilizations(ctx context.Context, lcID int64) ([]Utilization, error) {
	var out []Utilization
	for id := int64(1); id <= r.nextID; id++ {
		if u, ok := r.utilizations[id]; ok && u.LCID == lcID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memoryInstrumentsRepo) ListAmendments(ctx context.Context, lcID int64) ([]Amendment, error) {
	var out []Amendment
	for id := int64(1); id <= r.nextID; id++ {
		if a, ok := r.amendments[id]; ok && a.LCID == lcID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryInstrumentsRepo) GetCheque(ctx context.Context, id int64) (Cheque, error) {
	c, ok := r.cheques[id]
	if !ok {
		return Cheque{}, ErrChequeNotFound
	}
	return c, nil
}

func (r *memoryInstrumentsRepo) ListCheques(ctx context.Context, limit int) ([]Cheque, error) {
	var out []Cheque
	for _, c := range r.cheques {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryInstrumentsRepo) InsertCheque(ctx context.Context, in CreateChequeInput) (Cheque, error) {
	c := Cheque{
		ID:       r.id(),
		Kind:     in.Kind,
		Number:   in.Number,
		Party:    in.Party,
		Amount:   in.Amount,
		Currency: in.Currency,
		DueDate:  in.DueDate,
		Status:   ChequeOpen,
	}
	r.cheques[c.ID] = c
	return c, nil
}

func (r *memoryInstrumentsRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryInstrumentsTx{repo: r})
}

type memoryInstrumentsTx struct {
	repo *memoryInstrumentsRepo
}

func (t *memoryInstrumentsTx) GetGuaranteeForUpdate(ctx context.Context, id int64) (BankGuarantee, error) {
	return t.repo.GetGuarantee(ctx, id)
}

func (t *memoryInstrumentsTx) UpdateGuarantee(ctx context.Context, g BankGuarantee) error {
	if _, ok := t.repo.guarantees[g.ID]; !ok {
		return ErrGuaranteeNotFound
	}
	t.repo.guarantees[g.ID] = g
	return nil
}

func (t *memoryInstrumentsTx) GetLCForUpdate(ctx context.Context, id int64) (LetterOfCredit, error) {
	return t.repo.GetLC(ctx, id)
}

func (t *memoryInstrumentsTx) UpdateLC(ctx context.Context, lc LetterOfCredit) error {
	if _, ok := t.repo.lcs[lc.ID]; !ok {
		return ErrLCNotFound
	}
	t.repo.lcs[lc.ID] = lc
	return nil
}

func (t *memoryInstrumentsTx) InsertUtilization(ctx context.Context, u Utilization) (Utilization, error) {
	u.ID = t.repo.id()
	t.repo.utilizations[u.ID] = u
	return u, nil
}

func (t *memoryInstrumentsTx) GetUtilizationForUpdate(ctx context.Context, id int64) (Utilization, error) {
	u, ok := t.repo.utilizations[id]
	if !ok {
		return Utilization{}, ErrUtilizationNotFound
	}
	return u, nil
}

func (t *memoryInstrumentsTx) UpdateUtilizationStatus(ctx context.Context, id int64, status UtilizationStatus) error {
	u, ok := t.repo.utilizations[id]
	if !ok {
		return ErrUtilizationNotFound
	}
	u.Status = status
	t.repo.utilizations[id] = u
	return nil
}

func (t *memoryInstrumentsTx) SumUtilized(ctx context.Context, lcID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, u := range t.repo.utilizations {
		if u.LCID == lcID && (u.Status == UtilizationAccepted || u.Status == UtilizationPaid) {
			sum = sum.Add(u.Amount)
		}
	}
	return sum, nil
}

func (t *memoryInstrumentsTx) InsertAmendment(ctx context.Context, a Amendment) (Amendment, error) {
	a.ID = t.repo.id()
	t.repo.amendments[a.ID] = a
	return a, nil
}

func (t *memoryInstrumentsTx) GetAmendmentForUpdate(ctx context.Context, id int64) (Amendment, error) {
	a, ok := t.repo.amendments[id]
	if !ok {
		return Amendment{}, ErrAmendmentNotFound
	}
	return a, nil
}

func (t *memoryInstrumentsTx) UpdateAmendmentStatus(ctx context.Context, id int64, status AmendmentStatus) error {
	a, ok := t.repo.amendments[id]
	if !ok {
		return ErrAmendmentNotFound
	}
	a.Status = status
	t.repo.amendments[id] = a
	return nil
}

func (t *memoryInstrumentsTx) GetChequeForUpdate(ctx context.Context, id int64) (Cheque, error) {
	return t.repo.GetCheque(ctx, id)
}

func (t *memoryInstrumentsTx) UpdateChequeStatus(ctx context.Context, id int64, status ChequeStatus) error {
	c, ok := t.repo.cheques[id]
	if !ok {
		return ErrChequeNotFound
	}
	c.Status = status
	t.repo.cheques[id] = c
	return nil
}

func newTestInstruments(t *testing.T) (*Service, *memoryInstrumentsRepo, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newMemoryInstrumentsRepo()
	svc := NewService(repo, client, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return svc, repo, client
}

func seedLC(t *testing.T, svc *Service) LetterOfCredit {
	t.Helper()
	lc, err := svc.CreateLC(context.Background(), CreateLCInput{
		Reference:        "LC-100",
		Applicant:        "Meridian Trading",
		Beneficiary:      "Pacific Mills",
		Amount:           d("50000"),
		TolerancePercent: d("5"),
		Currency:         "USD",
		IssueDate:        date("2026-01-15"),
		ExpiryDate:       date("2026-07-15"),
	})
	require.NoError(t, err)
	return lc
}

func TestLCUtilizationLifecycle(t *testing.T) {
	svc, _, _ := newTestInstruments(t)
	ctx := context.Background()
	lc := seedLC(t, svc)
	require.True(t, lc.Ceiling().Equal(d("52500")))

	first, err := svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("40000"), Reference: "INV-1"})
	require.NoError(t, err)
	require.Equal(t, UtilizationRequested, first.Status)

	first, err = svc.AcceptUtilization(ctx, lc.ID, first.ID, 7)
	require.NoError(t, err)
	require.Equal(t, UtilizationAccepted, first.Status)

	lc, err = svc.GetLC(ctx, lc.ID)
	require.NoError(t, err)
	require.True(t, lc.Available().Equal(d("12500")))

	over, err := svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("15000"), Reference: "INV-2"})
	require.NoError(t, err)
	_, err = svc.AcceptUtilization(ctx, lc.ID, over.ID, 7)
	require.ErrorIs(t, err, shared.ErrLimitExceeded)

	over, err = svc.RejectUtilization(ctx, lc.ID, over.ID, 7)
	require.NoError(t, err)
	require.Equal(t, UtilizationRejected, over.Status)

	exact, err := svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("12500"), Reference: "INV-3"})
	require.NoError(t, err)
	exact, err = svc.AcceptUtilization(ctx, lc.ID, exact.ID, 7)
	require.NoError(t, err)

	lc, err = svc.GetLC(ctx, lc.ID)
	require.NoError(t, err)
	require.True(t, lc.Available().IsZero())

	first, err = svc.PayUtilization(ctx, lc.ID, first.ID, 7)
	require.NoError(t, err)
	require.Equal(t, UtilizationPaid, first.Status)

	// Paid rows still count against the ceiling.
	lc, err = svc.GetLC(ctx, lc.ID)
	require.NoError(t, err)
	require.True(t, lc.Available().IsZero())

	_, err = svc.PayUtilization(ctx, lc.ID, exact.ID, 7)
	require.NoError(t, err)
	_, err = svc.PayUtilization(ctx, lc.ID, exact.ID, 7)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestAcceptUtilizationRecomputesFromRows(t *testing.T) {
	svc, repo, _ := newTestInstruments(t)
	ctx := context.Background()
	lc := seedLC(t, svc)

	u, err := svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("40000")})
	require.NoError(t, err)
	_, err = svc.AcceptUtilization(ctx, lc.ID, u.ID, 1)
	require.NoError(t, err)

	// Corrupt the cached column. Acceptance must trust the rows, not
	// the cache.
	stale := repo.lcs[lc.ID]
	stale.UtilizedAmount = d("52500")
	repo.lcs[lc.ID] = stale

	next, err := svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("12500")})
	require.NoError(t, err)
	_, err = svc.AcceptUtilization(ctx, lc.ID, next.ID, 1)
	require.NoError(t, err)

	lc, err = svc.GetLC(ctx, lc.ID)
	require.NoError(t, err)
	require.True(t, lc.UtilizedAmount.Equal(d("52500")))
}

func TestAcceptUtilizationWhileLockHeld(t *testing.T) {
	svc, _, client := newTestInstruments(t)
	ctx := context.Background()
	lc := seedLC(t, svc)
	u, err := svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("1000")})
	require.NoError(t, err)

	lock, err := cache.AcquireLock(ctx, client, shared.InstrumentLockKey("lc", lc.ID), uuid.NewString(), time.Minute)
	require.NoError(t, err)
	defer func() { _ = lock.Release(ctx) }()

	_, err = svc.AcceptUtilization(ctx, lc.ID, u.ID, 1)
	require.ErrorIs(t, err, ErrInstrumentBusy)
}

func TestAmendmentFlow(t *testing.T) {
	svc, _, _ := newTestInstruments(t)
	ctx := context.Background()
	lc := seedLC(t, svc)

	_, err := svc.ProposeAmendment(ctx, lc.ID, AmendmentInput{})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	amount := d("60000")
	a, err := svc.ProposeAmendment(ctx, lc.ID, AmendmentInput{NewAmount: &amount})
	require.NoError(t, err)
	require.Equal(t, AmendmentPending, a.Status)

	lc, err = svc.AcceptAmendment(ctx, lc.ID, a.ID, 3)
	require.NoError(t, err)
	require.True(t, lc.Amount.Equal(d("60000")))
	require.True(t, lc.Ceiling().Equal(d("63000")))

	_, err = svc.RejectAmendment(ctx, lc.ID, a.ID, 3)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestAmendmentBelowUtilizedRejected(t *testing.T) {
	svc, _, _ := newTestInstruments(t)
	ctx := context.Background()
	lc := seedLC(t, svc)

	u, err := svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("40000")})
	require.NoError(t, err)
	_, err = svc.AcceptUtilization(ctx, lc.ID, u.ID, 1)
	require.NoError(t, err)

	reduced := d("30000")
	a, err := svc.ProposeAmendment(ctx, lc.ID, AmendmentInput{NewAmount: &reduced})
	require.NoError(t, err)
	_, err = svc.AcceptAmendment(ctx, lc.ID, a.ID, 1)
	require.ErrorIs(t, err, shared.ErrLimitExceeded)
}

func TestClosedLCRefusesDrawings(t *testing.T) {
	svc, _, _ := newTestInstruments(t)
	ctx := context.Background()
	lc := seedLC(t, svc)

	_, err := svc.CloseLC(ctx, lc.ID, 1)
	require.NoError(t, err)

	_, err = svc.RequestUtilization(ctx, lc.ID, UtilizationInput{Amount: d("100")})
	require.ErrorIs(t, err, shared.ErrStateConflict)

	amount := d("10")
	_, err = svc.ProposeAmendment(ctx, lc.ID, AmendmentInput{NewAmount: &amount})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestGuaranteeServiceLifecycle(t *testing.T) {
	svc, _, _ := newTestInstruments(t)
	ctx := context.Background()

	_, err := svc.CreateGuarantee(ctx, CreateGuaranteeInput{
		Reference:   "BG-100",
		Beneficiary: "Harbour Authority",
		Amount:      d("0"),
		Currency:    "USD",
		IssueDate:   date("2026-01-01"),
		ExpiryDate:  date("2026-12-31"),
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	g, err := svc.CreateGuarantee(ctx, CreateGuaranteeInput{
		Reference:   "BG-100",
		Beneficiary: "Harbour Authority",
		Amount:      d("250000"),
		Currency:    "USD",
		IssueDate:   date("2026-01-01"),
		ExpiryDate:  date("2026-12-31"),
	})
	require.NoError(t, err)

	g, err = svc.AmendGuarantee(ctx, g.ID, AmendGuaranteeInput{Amount: d("300000"), ActorID: 2})
	require.NoError(t, err)
	require.True(t, g.Amount.Equal(d("300000")))

	g, err = svc.RenewGuarantee(ctx, g.ID, RenewGuaranteeInput{ExpiryDate: date("2027-06-30"), ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, GuaranteeActive, g.Status)

	g, err = svc.ReleaseGuarantee(ctx, g.ID, 2)
	require.NoError(t, err)
	require.Equal(t, GuaranteeReleased, g.Status)

	_, err = svc.ClaimGuarantee(ctx, g.ID, 2)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestChequeServiceTransitions(t *testing.T) {
	svc, _, _ := newTestInstruments(t)
	ctx := context.Background()

	c, err := svc.CreateCheque(ctx, CreateChequeInput{
		Kind:     ChequeReceived,
		Number:   "000123",
		Party:    "Northwind Supplies",
		Amount:   d("1200"),
		Currency: "USD",
		DueDate:  date("2026-03-10"),
	})
	require.NoError(t, err)

	c, err = svc.DepositCheque(ctx, c.ID, 5)
	require.NoError(t, err)
	require.Equal(t, ChequeDeposited, c.Status)

	c, err = svc.ClearCheque(ctx, c.ID, 5)
	require.NoError(t, err)
	require.Equal(t, ChequeCleared, c.Status)

	_, err = svc.ClearCheque(ctx, c.ID, 5)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	_, err = svc.DepositCheque(ctx, 999, 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
