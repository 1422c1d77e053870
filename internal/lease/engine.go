package lease

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/shared/money"
)

var one = decimal.NewFromInt(1)

// PaymentContext is the principal input to the engine: a level payment
// stream discounted at a periodic rate.
type PaymentContext struct {
	Payment  decimal.Decimal
	Periods  int
	Rate     decimal.Decimal
	Timing   PaymentTiming
	Currency string
}

// PresentValue computes the discounted value of the payment stream. The
// intermediate terms stay unrounded; only the final result is rounded to
// the currency's minor unit, so per-term rounding error cannot compound.
// A zero or negative rate is permitted; a negative payment is not.
func PresentValue(ctx PaymentContext) (decimal.Decimal, error) {
	if ctx.Payment.IsNegative() {
		return decimal.Zero, shared.InvalidInput("lease: payment amount %s is negative", ctx.Payment)
	}
	if ctx.Periods <= 0 {
		return decimal.Zero, shared.InvalidInput("lease: period count %d", ctx.Periods)
	}
	factor := one.Add(ctx.Rate)
	if factor.IsZero() {
		return decimal.Zero, shared.InvalidInput("lease: rate %s discounts to zero", ctx.Rate)
	}

	// Walk the discount factor period by period instead of exponentiating,
	// so the same division precision applies to every term.
	df := one
	pv := decimal.Zero
	for k := 1; k <= ctx.Periods; k++ {
		if ctx.Timing != TimingAdvance || k > 1 {
			df = df.Div(factor)
		}
		pv = pv.Add(ctx.Payment.Mul(df))
	}
	return money.Round(pv, ctx.Currency), nil
}

// GenerateSchedule splits each payment into interest and principal against
// a running balance starting at liability. The final period absorbs the
// accumulated rounding remainder so the closing balance lands on exactly
// zero and the principal column reconciles against the recognised
// liability.
func GenerateSchedule(ctx PaymentContext, liability decimal.Decimal, commencement time.Time) ([]ScheduleEntry, error) {
	if ctx.Payment.IsNegative() {
		return nil, shared.InvalidInput("lease: payment amount %s is negative", ctx.Payment)
	}
	if ctx.Periods <= 0 {
		return nil, shared.InvalidInput("lease: period count %d", ctx.Periods)
	}
	scale := money.Scale(ctx.Currency)
	entries := make([]ScheduleEntry, 0, ctx.Periods)
	balance := liability
	for period := 1; period <= ctx.Periods; period++ {
		// Payments in advance settle before interest accrues, so the
		// accrual base is the post-payment balance.
		base := balance
		if ctx.Timing == TimingAdvance {
			base = balance.Sub(ctx.Payment)
		}
		interest := base.Mul(ctx.Rate).Round(scale)
		principal := ctx.Payment.Sub(interest)
		payment := ctx.Payment
		if period == ctx.Periods {
			principal = balance
			payment = principal.Add(interest)
		}
		closing := balance.Sub(principal)
		if closing.IsNegative() {
			closing = decimal.Zero
		}
		entries = append(entries, ScheduleEntry{
			PeriodNo:       period,
			DueDate:        dueDate(commencement, period, ctx.Timing),
			Payment:        payment,
			Interest:       interest,
			Principal:      principal,
			OpeningBalance: balance,
			ClosingBalance: closing,
		})
		balance = closing
	}
	return entries, nil
}

func dueDate(commencement time.Time, period int, timing PaymentTiming) time.Time {
	if timing == TimingAdvance {
		return commencement.AddDate(0, period-1, 0)
	}
	return commencement.AddDate(0, period, 0)
}

// RecognitionResult carries the two values computed at initial recognition.
type RecognitionResult struct {
	Liability       decimal.Decimal
	RightOfUseAsset decimal.Decimal
}

// Recognize computes the lease liability and the right-of-use asset:
// rou = liability + initial direct costs - incentives + restoration costs.
func Recognize(l Lease) (RecognitionResult, error) {
	pv, err := PresentValue(PaymentContext{
		Payment:  l.PaymentAmount,
		Periods:  l.TermMonths,
		Rate:     l.PeriodicRate,
		Timing:   l.PaymentTiming,
		Currency: l.Currency,
	})
	if err != nil {
		return RecognitionResult{}, err
	}
	rou := pv.Add(l.InitialDirectCosts).Sub(l.Incentives).Add(l.RestorationCosts)
	return RecognitionResult{
		Liability:       pv,
		RightOfUseAsset: money.Round(rou, l.Currency),
	}, nil
}

// ModificationInput describes a renegotiation: the remaining payment
// stream at the modification date and, for scope decreases, the proportion
// of the original scope given up.
type ModificationInput struct {
	Type             ModificationType
	EffectiveDate    time.Time
	RemainingPayment decimal.Decimal
	RemainingPeriods int
	RevisedRate      decimal.Decimal
	// DecreaseProportion is in (0,1]; only read for SCOPE_DECREASE.
	DecreaseProportion decimal.Decimal
}

// ModificationEffect is the one-shot mutation ApplyModification produces.
type ModificationEffect struct {
	RevisedLiability decimal.Decimal
	RevisedRou       decimal.Decimal
	RouAdjustment    decimal.Decimal
	GainLoss         decimal.Decimal
}

// ApplyModification remeasures the liability as the present value of the
// remaining payment stream. A scope decrease derecognises liability and
// ROU proportionally and books the difference as gain/loss before the
// remeasurement delta is applied; every other type adjusts the ROU by the
// full liability delta. The ROU cannot go below zero: any excess of a
// downward adjustment lands in gain/loss.
func ApplyModification(l Lease, in ModificationInput) (ModificationEffect, error) {
	if l.Status != StatusActive {
		return ModificationEffect{}, shared.StateConflict("lease", string(l.Status))
	}
	revised, err := PresentValue(PaymentContext{
		Payment:  in.RemainingPayment,
		Periods:  in.RemainingPeriods,
		Rate:     in.RevisedRate,
		Timing:   l.PaymentTiming,
		Currency: l.Currency,
	})
	if err != nil {
		return ModificationEffect{}, err
	}

	carriedLiability := l.Liability
	carriedRou := l.RightOfUseAsset.Sub(l.AccumulatedDepreciation)
	var gainLoss decimal.Decimal

	if in.Type == ModificationScopeDecrease {
		p := in.DecreaseProportion
		if !p.IsPositive() || p.GreaterThan(one) {
			return ModificationEffect{}, shared.InvalidInput("lease: decrease proportion %s", p)
		}
		liabilityGone := carriedLiability.Mul(p)
		rouGone := carriedRou.Mul(p)
		gainLoss = liabilityGone.Sub(rouGone)
		carriedLiability = carriedLiability.Sub(liabilityGone)
		carriedRou = carriedRou.Sub(rouGone)
	}

	delta := revised.Sub(carriedLiability)
	revisedRou := carriedRou.Add(delta)
	if revisedRou.IsNegative() {
		gainLoss = gainLoss.Add(revisedRou.Neg())
		revisedRou = decimal.Zero
	}

	scale := money.Scale(l.Currency)
	return ModificationEffect{
		RevisedLiability: revised,
		RevisedRou:       revisedRou.Round(scale),
		RouAdjustment:    revisedRou.Sub(carriedRou).Round(scale),
		GainLoss:         gainLoss.Round(scale),
	}, nil
}
