package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestScale(t *testing.T) {
	cases := []struct {
		code string
		want int32
	}{
		{"USD", 2},
		{"usd", 2},
		{"JPY", 0},
		{"KWD", 3},
		{"", 2},
		{"XXXX", 2},
	}
	for _, tt := range cases {
		if got := Scale(tt.code); got != tt.want {
			t.Fatalf("Scale(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestSplitEvenSumsExactly(t *testing.T) {
	total := decimal.RequireFromString("1000.00")
	parts := SplitEven(total, 3, "USD")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts got %d", len(parts))
	}
	var sum decimal.Decimal
	for _, p := range parts {
		sum = sum.Add(p)
	}
	if !sum.Equal(total) {
		t.Fatalf("parts sum to %s, want %s", sum, total)
	}
	// 333.33 + 333.33 + 333.34
	if !parts[0].Equal(decimal.RequireFromString("333.33")) {
		t.Fatalf("unexpected even part %s", parts[0])
	}
	if !parts[2].Equal(decimal.RequireFromString("333.34")) {
		t.Fatalf("last part should absorb remainder, got %s", parts[2])
	}
}

func TestSplitEvenZeroPeriods(t *testing.T) {
	if parts := SplitEven(decimal.NewFromInt(100), 0, "USD"); parts != nil {
		t.Fatalf("expected nil for zero periods, got %v", parts)
	}
}
