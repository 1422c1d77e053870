package consol

import (
	"math"

	"github.com/meridian-erp/meridian-erp/internal/consol/fx"
)

// methodFor maps account types onto FX translation methods: period-end
// rate for the balance sheet, period-average for the income statement,
// origination rate for equity.
func methodFor(t AccountType) fx.Method {
	switch t {
	case TypeRevenue, TypeExpense:
		return fx.MethodAverage
	case TypeEquity:
		return fx.MethodHistorical
	default:
		return fx.MethodClosing
	}
}

// TranslateBalances converts every trial-balance line into the reporting
// currency. The per-entity translation adjustment is the difference
// between equity at the closing rate and equity at the historical rate,
// captured rather than discarded so consolidated equity still articulates
// with the translated balance sheet.
func TranslateBalances(converter *fx.Converter, balances []AccountBalance, currencies map[int64]string) ([]TranslatedBalance, map[int64]float64, error) {
	translated := make([]TranslatedBalance, 0, len(balances))
	adjustments := make(map[int64]float64)
	for _, b := range balances {
		currency := currencies[b.EntityID]
		amount, err := converter.Translate(currency, methodFor(b.AccountType), b.Amount)
		if err != nil {
			return nil, nil, err
		}
		translated = append(translated, TranslatedBalance{
			EntityID:    b.EntityID,
			AccountCode: b.AccountCode,
			AccountType: b.AccountType,
			LocalAmount: b.Amount,
			GroupAmount: round2(amount),
		})
		if b.AccountType == TypeEquity {
			atClosing, err := converter.Translate(currency, fx.MethodClosing, b.Amount)
			if err != nil {
				return nil, nil, err
			}
			adjustments[b.EntityID] = round2(adjustments[b.EntityID] + atClosing - amount)
		}
	}
	return translated, adjustments, nil
}

// EliminationAmount converts an intercompany transaction into the
// reporting currency at its recorded exchange rate.
func EliminationAmount(tx IntercompanyTransaction, reportingCurrency string) float64 {
	if tx.Currency == reportingCurrency || tx.ExchangeRate == 0 {
		return round2(tx.Amount)
	}
	return round2(tx.Amount * tx.ExchangeRate)
}

// Aggregate sums translated balances by account type and removes the
// eliminated intercompany total from both sides of the balance sheet.
func Aggregate(translated []TranslatedBalance, eliminationTotal float64) Totals {
	var t Totals
	for _, b := range translated {
		switch b.AccountType {
		case TypeAsset:
			t.Assets += b.GroupAmount
		case TypeLiability:
			t.Liabilities += b.GroupAmount
		case TypeEquity:
			t.Equity += b.GroupAmount
		case TypeRevenue:
			t.Revenue += b.GroupAmount
		case TypeExpense:
			t.Expenses += b.GroupAmount
		}
	}
	t.Assets = round2(t.Assets - eliminationTotal)
	t.Liabilities = round2(t.Liabilities - eliminationTotal)
	t.Equity = round2(t.Equity)
	t.Revenue = round2(t.Revenue)
	t.Expenses = round2(t.Expenses)
	t.NetIncome = round2(t.Revenue - t.Expenses)
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
