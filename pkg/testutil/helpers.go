// Package testutil provides common utility functions for testing.
package testutil

import (
	"math"

	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

// FindYear finds a year in the results slice.
// Returns a pointer to the result if found, nil otherwise.
func FindYear(results []model.YearResult, year int) *model.YearResult {
	for i := range results {
		if results[i].Year == year {
			return &results[i]
		}
	}
	return nil
}

// AlmostEqual reports whether two amounts differ by less than one cent.
func AlmostEqual(a, b float64) bool {
	return math.Abs(a-b) < constants.CurrencyTolerance
}
