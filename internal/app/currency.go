package app

import (
	"github.com/shopspring/decimal"
)

// DefaultUSDKESRate is used when no rate is configured.
var DefaultUSDKESRate = decimal.NewFromInt(115)

// CurrencyConverter turns USD amounts into whole local-currency units.
type CurrencyConverter struct {
	rate decimal.Decimal
}

// NewCurrencyConverter returns a converter for rate local units per USD.
func NewCurrencyConverter(rate decimal.Decimal) CurrencyConverter {
	if !rate.IsPositive() {
		rate = DefaultUSDKESRate
	}
	return CurrencyConverter{rate: rate}
}

// Rate returns the configured exchange rate.
func (c CurrencyConverter) Rate() decimal.Decimal {
	return c.rate
}

// ToLocalUnits converts amount and rounds up so the customer never underpays.
func (c CurrencyConverter) ToLocalUnits(amount decimal.Decimal) int64 {
	return amount.Mul(c.rate).Ceil().IntPart()
}
