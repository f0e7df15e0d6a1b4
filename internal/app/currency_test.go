package app

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCurrencyConverter_ToLocalUnitsRoundsUp(t *testing.T) {
	converter := NewCurrencyConverter(decimal.NewFromInt(115))

	cases := []struct {
		amount string
		want   int64
	}{
		{amount: "0.1", want: 12},
		{amount: "1", want: 115},
		{amount: "2.50", want: 288},
		{amount: "0.01", want: 2},
		{amount: "10", want: 1150},
	}
	for _, tc := range cases {
		if got := converter.ToLocalUnits(decimal.RequireFromString(tc.amount)); got != tc.want {
			t.Fatalf("ToLocalUnits(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestCurrencyConverter_DefaultsInvalidRate(t *testing.T) {
	if rate := NewCurrencyConverter(decimal.Zero).Rate(); !rate.Equal(DefaultUSDKESRate) {
		t.Fatalf("expected default rate, got %s", rate)
	}
	if rate := NewCurrencyConverter(decimal.NewFromInt(-3)).Rate(); !rate.Equal(DefaultUSDKESRate) {
		t.Fatalf("expected default rate, got %s", rate)
	}
}
