package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit at the gateway.
var zeroDecimalCurrencies = map[string]bool{
	"jpy": true,
	"krw": true,
	"vnd": true,
	"clp": true,
}

func exponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// FromMinor converts an integer minor-unit amount into a decimal major-unit value.
func FromMinor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -exponent(currency))
}

// ToMinor converts a major-unit value back to minor units, rounding half away from zero.
func ToMinor(value decimal.Decimal, currency string) int64 {
	return value.Shift(exponent(currency)).Round(0).IntPart()
}

// Format renders an amount for line items and admin views, e.g. "15.00 USD".
func Format(amount int64, currency string) string {
	exp := exponent(currency)
	return FromMinor(amount, currency).StringFixed(exp) + " " + strings.ToUpper(currency)
}

// Sum adds minor-unit amounts.
func Sum(amounts ...int64) int64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromInt(a))
	}
	return total.IntPart()
}
