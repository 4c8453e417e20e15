// Package money holds the fixed-precision arithmetic used for prices, quantities
// and sale totals. Values are decimal.Decimal end to end; rounding happens only
// when a value is displayed or persisted.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// CurrencyPlaces is the number of fractional digits persisted for amounts.
	CurrencyPlaces int32 = 2
	// DefaultQuantityPlaces applies when no quantity precision is configured.
	DefaultQuantityPlaces int32 = 3
	// MaxQuantityPlaces matches the numeric(18,3) quantity columns.
	MaxQuantityPlaces int32 = 3
)

var (
	Zero = decimal.Zero
)

// RoundCurrency rounds half-up (away from zero) to two fractional digits.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// Mul multiplies a price by a quantity without rounding.
func Mul(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty)
}

// LineTotal returns price × qty − discount at full precision.
func LineTotal(price, qty, discount decimal.Decimal) decimal.Decimal {
	return price.Mul(qty).Sub(discount)
}

// Average divides total by count, rounding half-up to two places. A zero count
// yields zero.
func Average(total decimal.Decimal, count int64) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(count), CurrencyPlaces)
}

// Format renders an amount with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return RoundCurrency(d).StringFixed(CurrencyPlaces)
}

// CheckAmount rejects amounts with more than two fractional digits.
func CheckAmount(d decimal.Decimal) error {
	return CheckPlaces(d, CurrencyPlaces)
}

// CheckPlaces rejects values with more than places significant fractional
// digits. Trailing zeros are fine.
func CheckPlaces(d decimal.Decimal, places int32) error {
	if places < 0 {
		places = DefaultQuantityPlaces
	}
	if !d.Equal(d.Truncate(places)) {
		return fmt.Errorf("value %s exceeds %d fractional digits", d.String(), places)
	}
	return nil
}
