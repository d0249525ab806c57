package billing

import "github.com/shopspring/decimal"

// CurrencyPlaces is the minor-unit precision of every charge.
const CurrencyPlaces = 2

// RoundCurrency rounds half away from zero to two places, which is half-up
// for the non-negative amounts the valuator produces.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}
