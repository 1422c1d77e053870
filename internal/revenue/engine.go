package revenue

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/shared/money"
)

// AllocatePrices splits the effective transaction price across obligations
// in proportion to standalone selling price. The result fully replaces any
// prior allocation: re-running with the same inputs yields the same
// output, and the parts always sum exactly to the effective price because
// the last obligation absorbs the rounding remainder.
func AllocatePrices(effectivePrice decimal.Decimal, obligations []Obligation, currency string) ([]decimal.Decimal, error) {
	if len(obligations) == 0 {
		return nil, shared.InvalidInput("revenue: contract has no obligations")
	}
	var totalSSP decimal.Decimal
	for _, ob := range obligations {
		if ob.StandaloneSellingPrice.IsNegative() {
			return nil, shared.InvalidInput("revenue: obligation %d negative standalone price", ob.ID)
		}
		totalSSP = totalSSP.Add(ob.StandaloneSellingPrice)
	}
	if totalSSP.IsZero() {
		return nil, shared.InvalidInput("revenue: total standalone selling price is zero")
	}

	scale := money.Scale(currency)
	allocations := make([]decimal.Decimal, len(obligations))
	var allocated decimal.Decimal
	for i, ob := range obligations {
		if i == len(obligations)-1 {
			allocations[i] = effectivePrice.Sub(allocated)
			break
		}
		share := effectivePrice.Mul(ob.StandaloneSellingPrice).Div(totalSSP).Round(scale)
		allocations[i] = share
		allocated = allocated.Add(share)
	}
	return allocations, nil
}

// EffectivePrice is the allocatable transaction price: the contract total
// less every resolved constraint. Unresolved estimates do not move the
// allocation until they settle.
func EffectivePrice(total decimal.Decimal, considerations []VariableConsideration) decimal.Decimal {
	effective := total
	for _, vc := range considerations {
		if vc.Resolved {
			effective = effective.Sub(vc.ConstraintAmount)
		}
	}
	return effective
}

// RecognizableAmount computes how much can be recognised for a progress
// measurement, clamped at zero so regressions in reported progress never
// produce negative revenue.
func RecognizableAmount(allocated, cumulative, progressPercent decimal.Decimal, currency string) decimal.Decimal {
	target := allocated.Mul(progressPercent).Div(decimal.NewFromInt(100))
	recognizable := money.Round(target, currency).Sub(cumulative)
	if recognizable.IsNegative() {
		return decimal.Zero
	}
	return recognizable
}

// BuildStraightLineSchedule spreads the allocated amount evenly over the
// elapsed calendar months between start and expected completion. The last
// period absorbs the rounding remainder so the schedule sums exactly to
// the allocated amount.
func BuildStraightLineSchedule(allocated decimal.Decimal, start, end time.Time, currency string) ([]PlannedEntry, error) {
	n := monthsBetween(start, end)
	if n <= 0 {
		return nil, shared.InvalidInput("revenue: schedule window %s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	parts := money.SplitEven(allocated, n, currency)
	entries := make([]PlannedEntry, n)
	var cumulative decimal.Decimal
	for i, amount := range parts {
		cumulative = cumulative.Add(amount)
		entries[i] = PlannedEntry{
			PeriodNo:        i + 1,
			RecognitionDate: start.AddDate(0, i+1, 0),
			Amount:          amount,
			Cumulative:      cumulative,
		}
	}
	return entries, nil
}

func monthsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	years := end.Year() - start.Year()
	months := int(end.Month()) - int(start.Month())
	total := years*12 + months
	if total == 0 {
		total = 1
	}
	return total
}
