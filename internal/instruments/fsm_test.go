package instruments

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func activeGuarantee() BankGuarantee {
	return BankGuarantee{
		ID:          1,
		Reference:   "BG-001",
		Beneficiary: "Harbour Authority",
		Amount:      d("250000"),
		Currency:    "USD",
		IssueDate:   date("2026-01-01"),
		ExpiryDate:  date("2026-12-31"),
		Status:      GuaranteeActive,
	}
}

func TestGuaranteeAmendAndRenewKeepActive(t *testing.T) {
	g := activeGuarantee()
	if err := g.Amend(d("300000")); err != nil {
		t.Fatalf("amend: %v", err)
	}
	if !g.Amount.Equal(d("300000")) {
		t.Fatalf("amount = %s", g.Amount)
	}
	if err := g.Renew(date("2027-06-30")); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if g.Status != GuaranteeActive {
		t.Fatalf("status = %s", g.Status)
	}
}

func TestGuaranteeRenewRequiresLaterExpiry(t *testing.T) {
	g := activeGuarantee()
	err := g.Renew(date("2026-06-30"))
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestGuaranteeTerminalStatesBlockTransitions(t *testing.T) {
	cases := []struct {
		name string
		end  func(*BankGuarantee) error
	}{
		{"released", (*BankGuarantee).Release},
		{"claimed", (*BankGuarantee).Claim},
		{"expired", (*BankGuarantee).Expire},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := activeGuarantee()
			if err := tc.end(&g); err != nil {
				t.Fatalf("transition: %v", err)
			}
			if err := g.Amend(d("1")); !errors.Is(err, shared.ErrStateConflict) {
				t.Fatalf("amend after %s: %v", tc.name, err)
			}
			if err := g.Release(); !errors.Is(err, shared.ErrStateConflict) {
				t.Fatalf("release after %s: %v", tc.name, err)
			}
		})
	}
}

func issuedLC() LetterOfCredit {
	return LetterOfCredit{
		ID:               1,
		Reference:        "LC-001",
		Applicant:        "Meridian Trading",
		Beneficiary:      "Pacific Mills",
		Amount:           d("50000"),
		TolerancePercent: d("5"),
		Currency:         "USD",
		IssueDate:        date("2026-01-15"),
		ExpiryDate:       date("2026-07-15"),
		Status:           LCIssued,
	}
}

func TestLCCeilingIncludesTolerance(t *testing.T) {
	lc := issuedLC()
	if !lc.Ceiling().Equal(d("52500")) {
		t.Fatalf("ceiling = %s", lc.Ceiling())
	}
}

func TestLCUtilizationWithinCeiling(t *testing.T) {
	lc := issuedLC()
	if err := lc.CheckUtilization(decimal.Zero, d("40000")); err != nil {
		t.Fatalf("first drawing: %v", err)
	}
	lc.UtilizedAmount = d("40000")
	if !lc.Available().Equal(d("12500")) {
		t.Fatalf("available = %s", lc.Available())
	}
	if err := lc.CheckUtilization(d("40000"), d("12500")); err != nil {
		t.Fatalf("drawing to the ceiling: %v", err)
	}
}

func TestLCUtilizationBeyondCeilingRejected(t *testing.T) {
	lc := issuedLC()
	err := lc.CheckUtilization(d("40000"), d("15000"))
	if !errors.Is(err, shared.ErrLimitExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestLCUtilizationRequiresPositiveAmount(t *testing.T) {
	lc := issuedLC()
	err := lc.CheckUtilization(decimal.Zero, d("-5"))
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestLCApplyAmendment(t *testing.T) {
	lc := issuedLC()
	amount := d("60000")
	expiry := date("2026-12-15")
	err := lc.ApplyAmendment(Amendment{NewAmount: &amount, NewExpiry: &expiry})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !lc.Amount.Equal(d("60000")) || !lc.ExpiryDate.Equal(expiry) {
		t.Fatalf("lc = %+v", lc)
	}
	if !lc.Ceiling().Equal(d("63000")) {
		t.Fatalf("ceiling = %s", lc.Ceiling())
	}
}

func TestLCApplyAmendmentRejectsClosedAndBadAmount(t *testing.T) {
	lc := issuedLC()
	bad := d("0")
	if err := lc.ApplyAmendment(Amendment{NewAmount: &bad}); !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("zero amount: %v", err)
	}
	if err := lc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	amount := d("60000")
	if err := lc.ApplyAmendment(Amendment{NewAmount: &amount}); !errors.Is(err, shared.ErrStateConflict) {
		t.Fatalf("closed LC: %v", err)
	}
	if err := lc.CheckUtilization(decimal.Zero, d("1")); !errors.Is(err, shared.ErrStateConflict) {
		t.Fatalf("drawing on closed LC: %v", err)
	}
}

func cheque(kind ChequeKind) Cheque {
	return Cheque{
		ID:       1,
		Kind:     kind,
		Number:   "000123",
		Party:    "Northwind Supplies",
		Amount:   d("1200"),
		Currency: "USD",
		DueDate:  date("2026-03-10"),
		Status:   ChequeOpen,
	}
}

func TestChequeReceivedDepositThenClear(t *testing.T) {
	c := cheque(ChequeReceived)
	if err := c.Deposit(); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if c.Status != ChequeDeposited {
		t.Fatalf("status = %s", c.Status)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := c.Bounce(); !errors.Is(err, shared.ErrStateConflict) {
		t.Fatalf("bounce after clear: %v", err)
	}
}

func TestChequeIssuedPrintThenStop(t *testing.T) {
	c := cheque(ChequeIssued)
	if err := c.Print(); err != nil {
		t.Fatalf("print: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Cancel(); !errors.Is(err, shared.ErrStateConflict) {
		t.Fatalf("cancel after stop: %v", err)
	}
}

func TestChequeKindGuards(t *testing.T) {
	issued := cheque(ChequeIssued)
	if err := issued.Deposit(); !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("deposit issued cheque: %v", err)
	}
	received := cheque(ChequeReceived)
	if err := received.Print(); !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("print received cheque: %v", err)
	}
	if err := received.Stop(); !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("stop received cheque: %v", err)
	}
}

func TestChequeBounceAfterDeposit(t *testing.T) {
	c := cheque(ChequeReceived)
	if err := c.Deposit(); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := c.Bounce(); err != nil {
		t.Fatalf("bounce: %v", err)
	}
	if c.Status != ChequeBounced {
		t.Fatalf("status = %s", c.Status)
	}
}
