// Package format renders amounts, rates and day counts in the single locale
// convention of the simulator (pt-BR, BRL).
package format

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency returns a BRL string with thousands separators (e.g., "-R$ 1.234,56").
func Currency(amount float64) string {
	formatted := Number(math.Abs(amount), 2)
	if isNegative(amount, 2) {
		return "-R$ " + formatted
	}
	return "R$ " + formatted
}

// Percent renders a fraction as a percentage (0.265 -> "26,50%").
func Percent(fraction float64, places int32) string {
	return Signed(fraction*100, places) + "%"
}

// Days renders a day count with two decimals (35 -> "35,00 dias").
func Days(days float64) string {
	return Signed(days, 2) + " dias"
}

// Number renders a non-negative value with the given decimal places using
// "." for thousands and "," for decimals.
func Number(value float64, places int32) string {
	fixed := decimal.NewFromFloat(value).Abs().StringFixed(places)
	parts := strings.SplitN(fixed, ".", 2)
	intPart := parts[0]

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte('.')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	if len(parts) == 2 {
		return intPart + "," + parts[1]
	}
	return intPart
}

// Signed is Number with a leading minus for values that stay negative after
// rounding.
func Signed(value float64, places int32) string {
	if isNegative(value, places) {
		return "-" + Number(math.Abs(value), places)
	}
	return Number(math.Abs(value), places)
}

// isNegative ignores values that round to zero so "-0,00" is never printed.
func isNegative(value float64, places int32) bool {
	return decimal.NewFromFloat(value).Round(places).IsNegative()
}
