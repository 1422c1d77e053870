package instruments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Guarantee transitions. Amend and renew keep the guarantee active;
// release, claim and expire each end the lifecycle.

func (g *BankGuarantee) ensureActive() error {
	if g.Status != GuaranteeActive {
		return shared.StateConflict("guarantee", string(g.Status))
	}
	return nil
}

func (g *BankGuarantee) Amend(amount decimal.Decimal) error {
	if err := g.ensureActive(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return shared.InvalidInput("instruments: guarantee amount %s", amount)
	}
	g.Amount = amount
	return nil
}

func (g *BankGuarantee) Renew(expiry time.Time) error {
	if err := g.ensureActive(); err != nil {
		return err
	}
	if !expiry.After(g.ExpiryDate) {
		return shared.InvalidInput("instruments: renewal expiry %s not after current %s",
			expiry.Format("2006-01-02"), g.ExpiryDate.Format("2006-01-02"))
	}
	g.ExpiryDate = expiry
	return nil
}

func (g *BankGuarantee) Release() error {
	if err := g.ensureActive(); err != nil {
		return err
	}
	g.Status = GuaranteeReleased
	return nil
}

func (g *BankGuarantee) Claim() error {
	if err := g.ensureActive(); err != nil {
		return err
	}
	g.Status = GuaranteeClaimed
	return nil
}

func (g *BankGuarantee) Expire() error {
	if err := g.ensureActive(); err != nil {
		return err
	}
	g.Status = GuaranteeExpired
	return nil
}

// Letter of credit.

func (lc *LetterOfCredit) ensureIssued() error {
	if lc.Status != LCIssued {
		return shared.StateConflict("letter of credit", string(lc.Status))
	}
	return nil
}

// Ceiling is the drawable limit including the tolerance band.
func (lc *LetterOfCredit) Ceiling() decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(lc.TolerancePercent.Div(decimal.NewFromInt(100)))
	return lc.Amount.Mul(factor)
}

// Available is the derived headroom: ceiling less the utilized total.
func (lc *LetterOfCredit) Available() decimal.Decimal {
	return lc.Ceiling().Sub(lc.UtilizedAmount)
}

// CheckUtilization rejects a drawing that would push the utilized total
// past the ceiling. utilized must be the freshly recomputed sum, not the
// cached column.
func (lc *LetterOfCredit) CheckUtilization(utilized, amount decimal.Decimal) error {
	if err := lc.ensureIssued(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return shared.InvalidInput("instruments: utilization amount %s", amount)
	}
	if utilized.Add(amount).GreaterThan(lc.Ceiling()) {
		return ErrLimitExceeded
	}
	return nil
}

// ApplyAmendment is the domain event handler for an accepted amendment:
// the aggregate takes the new amount and expiry itself so invariants stay
// in one place.
func (lc *LetterOfCredit) ApplyAmendment(a Amendment) error {
	if err := lc.ensureIssued(); err != nil {
		return err
	}
	if a.NewAmount != nil {
		if !a.NewAmount.IsPositive() {
			return shared.InvalidInput("instruments: amended amount %s", a.NewAmount)
		}
		lc.Amount = *a.NewAmount
	}
	if a.NewExpiry != nil {
		lc.ExpiryDate = *a.NewExpiry
	}
	return nil
}

func (lc *LetterOfCredit) Close() error {
	if err := lc.ensureIssued(); err != nil {
		return err
	}
	lc.Status = LCClosed
	return nil
}

func (lc *LetterOfCredit) Expire() error {
	if err := lc.ensureIssued(); err != nil {
		return err
	}
	lc.Status = LCExpired
	return nil
}

// Cheques.

func (c *Cheque) terminal() bool {
	switch c.Status {
	case ChequeCleared, ChequeBounced, ChequeStopped, ChequeCancelled:
		return true
	}
	return false
}

// Deposit moves a received cheque to the bank.
func (c *Cheque) Deposit() error {
	if c.Kind != ChequeReceived {
		return shared.InvalidInput("instruments: only received cheques can be deposited")
	}
	if c.Status != ChequeOpen {
		return shared.StateConflict("cheque", string(c.Status))
	}
	c.Status = ChequeDeposited
	return nil
}

// Print marks an issued cheque as physically printed.
func (c *Cheque) Print() error {
	if c.Kind != ChequeIssued {
		return shared.InvalidInput("instruments: only issued cheques can be printed")
	}
	if c.Status != ChequeOpen {
		return shared.StateConflict("cheque", string(c.Status))
	}
	c.Status = ChequePrinted
	return nil
}

func (c *Cheque) Clear() error {
	if c.terminal() {
		return shared.StateConflict("cheque", string(c.Status))
	}
	c.Status = ChequeCleared
	return nil
}

func (c *Cheque) Bounce() error {
	if c.terminal() {
		return shared.StateConflict("cheque", string(c.Status))
	}
	c.Status = ChequeBounced
	return nil
}

// Stop blocks payment on an issued cheque.
func (c *Cheque) Stop() error {
	if c.Kind != ChequeIssued {
		return shared.InvalidInput("instruments: only issued cheques can be stopped")
	}
	if c.terminal() {
		return shared.StateConflict("cheque", string(c.Status))
	}
	c.Status = ChequeStopped
	return nil
}

func (c *Cheque) Cancel() error {
	if c.terminal() {
		return shared.StateConflict("cheque", string(c.Status))
	}
	c.Status = ChequeCancelled
	return nil
}
