package consol

import (
	"testing"

	"github.com/meridian-erp/meridian-erp/internal/consol/fx"
)

func testConverter() *fx.Converter {
	return fx.NewConverter(fx.Policy{ReportingCurrency: "USD"}, map[string]fx.Quote{
		"EURUSD": {Closing: 0.75, Average: 0.80, Historical: 0.85},
	})
}

func TestTranslateBalancesByAccountType(t *testing.T) {
	currencies := map[int64]string{1: "USD", 2: "EUR"}
	balances := []AccountBalance{
		{EntityID: 1, AccountCode: "1000", AccountType: TypeAsset, Amount: 10000},
		{EntityID: 2, AccountCode: "1000", AccountType: TypeAsset, Amount: 8000},
		{EntityID: 2, AccountCode: "4000", AccountType: TypeRevenue, Amount: 2000},
		{EntityID: 2, AccountCode: "3000", AccountType: TypeEquity, Amount: 1000},
	}
	translated, adjustments, err := TranslateBalances(testConverter(), balances, currencies)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := []float64{10000, 6000, 1600, 850}
	for i, tb := range translated {
		if tb.GroupAmount != want[i] {
			t.Errorf("line %d group amount = %.2f, want %.2f", i, tb.GroupAmount, want[i])
		}
	}
	// CTA on the foreign entity: equity at closing (750) less equity at
	// historical (850).
	if got := adjustments[2]; got != -100 {
		t.Errorf("entity 2 adjustment = %.2f, want -100", got)
	}
	if _, ok := adjustments[1]; ok {
		t.Errorf("reporting-currency entity has an adjustment")
	}
}

func TestTranslateBalancesMissingRate(t *testing.T) {
	currencies := map[int64]string{1: "GBP"}
	_, _, err := TranslateBalances(testConverter(), []AccountBalance{
		{EntityID: 1, AccountCode: "1000", AccountType: TypeAsset, Amount: 100},
	}, currencies)
	if err == nil {
		t.Fatalf("expected missing rate error")
	}
}

func TestEliminationAmount(t *testing.T) {
	same := IntercompanyTransaction{Amount: 5000, Currency: "USD"}
	if got := EliminationAmount(same, "USD"); got != 5000 {
		t.Errorf("same currency = %.2f, want 5000", got)
	}
	foreign := IntercompanyTransaction{Amount: 5000, Currency: "EUR", ExchangeRate: 0.75}
	if got := EliminationAmount(foreign, "USD"); got != 3750 {
		t.Errorf("foreign = %.2f, want 3750", got)
	}
	unrated := IntercompanyTransaction{Amount: 5000, Currency: "EUR"}
	if got := EliminationAmount(unrated, "USD"); got != 5000 {
		t.Errorf("unrated = %.2f, want 5000", got)
	}
}

func TestAggregate(t *testing.T) {
	translated := []TranslatedBalance{
		{AccountType: TypeAsset, GroupAmount: 16000},
		{AccountType: TypeLiability, GroupAmount: 9000},
		{AccountType: TypeEquity, GroupAmount: 850},
		{AccountType: TypeRevenue, GroupAmount: 1600},
		{AccountType: TypeExpense, GroupAmount: 700},
	}
	totals := Aggregate(translated, 5000)
	if totals.Assets != 11000 {
		t.Errorf("assets = %.2f, want 11000", totals.Assets)
	}
	if totals.Liabilities != 4000 {
		t.Errorf("liabilities = %.2f, want 4000", totals.Liabilities)
	}
	if totals.Equity != 850 {
		t.Errorf("equity = %.2f", totals.Equity)
	}
	if totals.NetIncome != 900 {
		t.Errorf("net income = %.2f, want 900", totals.NetIncome)
	}
}
