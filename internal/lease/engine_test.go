package lease

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func monthlyContext(payment string, rate string, periods int, timing PaymentTiming) PaymentContext {
	return PaymentContext{
		Payment:  decimal.RequireFromString(payment),
		Periods:  periods,
		Rate:     decimal.RequireFromString(rate),
		Timing:   timing,
		Currency: "USD",
	}
}

func TestPresentValueArrears(t *testing.T) {
	// 12 x 1000 at 1% a month, payments at period end.
	pv, err := PresentValue(monthlyContext("1000", "0.01", 12, TimingArrears))
	if err != nil {
		t.Fatalf("PresentValue returned error: %v", err)
	}
	want := decimal.RequireFromString("11255.08")
	if !pv.Equal(want) {
		t.Fatalf("expected %s got %s", want, pv)
	}
}

func TestPresentValueAdvance(t *testing.T) {
	// Payments due at period start shift every discount term by one.
	pv, err := PresentValue(monthlyContext("1000", "0.01", 12, TimingAdvance))
	if err != nil {
		t.Fatalf("PresentValue returned error: %v", err)
	}
	want := decimal.RequireFromString("11367.63")
	if !pv.Equal(want) {
		t.Fatalf("expected %s got %s", want, pv)
	}
}

func TestPresentValueZeroRate(t *testing.T) {
	pv, err := PresentValue(monthlyContext("500", "0", 10, TimingArrears))
	if err != nil {
		t.Fatalf("PresentValue returned error: %v", err)
	}
	if !pv.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("zero rate should sum payments, got %s", pv)
	}
}

func TestPresentValueNegativePaymentRejected(t *testing.T) {
	_, err := PresentValue(monthlyContext("-1", "0.01", 12, TimingArrears))
	if err == nil {
		t.Fatal("expected error for negative payment")
	}
}

func TestGenerateScheduleZeroesOut(t *testing.T) {
	ctx := monthlyContext("1000", "0.01", 12, TimingArrears)
	liability, err := PresentValue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, err := GenerateSchedule(ctx, liability, start)
	if err != nil {
		t.Fatalf("GenerateSchedule returned error: %v", err)
	}
	if len(entries) != 12 {
		t.Fatalf("expected 12 entries got %d", len(entries))
	}

	var principalSum decimal.Decimal
	for i, e := range entries {
		if !e.OpeningBalance.Sub(e.Principal).Equal(e.ClosingBalance) {
			t.Fatalf("period %d: opening - principal != closing", i+1)
		}
		if e.ClosingBalance.IsNegative() {
			t.Fatalf("period %d: negative closing balance %s", i+1, e.ClosingBalance)
		}
		principalSum = principalSum.Add(e.Principal)
	}
	if !principalSum.Equal(liability) {
		t.Fatalf("principal sum %s != liability %s", principalSum, liability)
	}
	if !entries[11].ClosingBalance.IsZero() {
		t.Fatalf("final closing balance %s, want 0", entries[11].ClosingBalance)
	}
	// First period sanity: interest = 1% of the liability.
	if !entries[0].Interest.Equal(decimal.RequireFromString("112.55")) {
		t.Fatalf("first interest %s", entries[0].Interest)
	}
}

func TestGenerateScheduleZeroRate(t *testing.T) {
	ctx := monthlyContext("1000", "0", 12, TimingArrears)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, err := GenerateSchedule(ctx, decimal.RequireFromString("12000"), start)
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range entries {
		if !e.Interest.IsZero() {
			t.Fatalf("period %d: rate 0 should carry no interest", i+1)
		}
		if !e.Principal.Equal(decimal.RequireFromString("1000")) {
			t.Fatalf("period %d: principal %s", i+1, e.Principal)
		}
	}
	if !entries[11].ClosingBalance.IsZero() {
		t.Fatalf("final closing balance %s", entries[11].ClosingBalance)
	}
}

func TestGenerateScheduleAdvanceZeroesOut(t *testing.T) {
	ctx := monthlyContext("1000", "0.01", 12, TimingAdvance)
	liability, err := PresentValue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, err := GenerateSchedule(ctx, liability, start)
	if err != nil {
		t.Fatal(err)
	}
	if !entries[0].Interest.Equal(decimal.RequireFromString("103.68")) {
		// Interest accrues on the post-payment balance: (11367.63-1000) * 1%.
		t.Fatalf("first advance interest %s", entries[0].Interest)
	}
	if !entries[11].ClosingBalance.IsZero() {
		t.Fatalf("final closing balance %s", entries[11].ClosingBalance)
	}
}

func TestRecognizeAppliesCostComponents(t *testing.T) {
	l := Lease{
		Currency:           "USD",
		PaymentAmount:      decimal.RequireFromString("1000"),
		TermMonths:         12,
		PeriodicRate:       decimal.RequireFromString("0.01"),
		PaymentTiming:      TimingArrears,
		InitialDirectCosts: decimal.RequireFromString("500"),
		Incentives:         decimal.RequireFromString("200"),
		RestorationCosts:   decimal.RequireFromString("100"),
	}
	res, err := Recognize(l)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Liability.Equal(decimal.RequireFromString("11255.08")) {
		t.Fatalf("liability %s", res.Liability)
	}
	want := res.Liability.Add(decimal.RequireFromString("400"))
	if !res.RightOfUseAsset.Equal(want) {
		t.Fatalf("rou %s want %s", res.RightOfUseAsset, want)
	}
}

func TestApplyModificationScopeDecrease(t *testing.T) {
	l := Lease{
		Status:          StatusActive,
		Currency:        "USD",
		PaymentTiming:   TimingArrears,
		Liability:       decimal.RequireFromString("10000"),
		RightOfUseAsset: decimal.RequireFromString("9000"),
	}
	effect, err := ApplyModification(l, ModificationInput{
		Type:               ModificationScopeDecrease,
		RemainingPayment:   decimal.RequireFromString("500"),
		RemainingPeriods:   10,
		RevisedRate:        decimal.RequireFromString("0.01"),
		DecreaseProportion: decimal.RequireFromString("0.5"),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Half of liability (5000) and half of ROU (4500) derecognised.
	if !effect.GainLoss.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("gain/loss %s want 500", effect.GainLoss)
	}
	if !effect.RevisedLiability.Equal(decimal.RequireFromString("4735.65")) {
		t.Fatalf("revised liability %s", effect.RevisedLiability)
	}
}

func TestApplyModificationFullDeltaToRou(t *testing.T) {
	l := Lease{
		Status:          StatusActive,
		Currency:        "USD",
		PaymentTiming:   TimingArrears,
		Liability:       decimal.RequireFromString("10000"),
		RightOfUseAsset: decimal.RequireFromString("9000"),
	}
	effect, err := ApplyModification(l, ModificationInput{
		Type:             ModificationTermChange,
		RemainingPayment: decimal.RequireFromString("1000"),
		RemainingPeriods: 12,
		RevisedRate:      decimal.RequireFromString("0.01"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !effect.GainLoss.IsZero() {
		t.Fatalf("expected no gain/loss, got %s", effect.GainLoss)
	}
	delta := effect.RevisedLiability.Sub(l.Liability)
	if !effect.RevisedRou.Equal(l.RightOfUseAsset.Add(delta)) {
		t.Fatalf("rou %s should carry the full liability delta", effect.RevisedRou)
	}
}

func TestApplyModificationRequiresActiveLease(t *testing.T) {
	l := Lease{Status: StatusDraft}
	_, err := ApplyModification(l, ModificationInput{Type: ModificationTermChange, RemainingPayment: decimal.NewFromInt(1), RemainingPeriods: 1})
	if err == nil {
		t.Fatal("expected state conflict")
	}
}

func TestInvalidInputClassification(t *testing.T) {
	_, err := PresentValue(monthlyContext("-1", "0.01", 12, TimingArrears))
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("expected invalid-input class, got %v", err)
	}
}
