// Package schedule holds the Split Payment phase-in schedule, the yearly
// cumulative fraction of tax value retained at payment time, and resolves the
// fraction in force for a given year and sector.
package schedule

import (
	"fmt"
	"sort"

	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

// Schedule maps a calendar year to its cumulative retention fraction.
type Schedule map[int]float64

// Default returns the reference phase-in for 2026 through 2033.
func Default() Schedule {
	return Schedule{
		2026: 0.10,
		2027: 0.25,
		2028: 0.40,
		2029: 0.55,
		2030: 0.70,
		2031: 0.85,
		2032: 0.95,
		2033: 1.00,
	}
}

// Years returns the configured years in ascending order.
func (s Schedule) Years() []int {
	years := make([]int, 0, len(s))
	for year := range s {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

// Clone returns an independent copy.
func (s Schedule) Clone() Schedule {
	if s == nil {
		return nil
	}
	out := make(Schedule, len(s))
	for year, fraction := range s {
		out[year] = fraction
	}
	return out
}

// Validate checks that every fraction lies in [0, 1] and that fractions never
// decrease as years advance.
func (s Schedule) Validate() error {
	previous := 0.0
	for i, year := range s.Years() {
		fraction := s[year]
		if fraction < 0 || fraction > 1 {
			return simerr.NewValidation(fmt.Sprintf("implementationSchedule.%d", year), fraction, "retention fraction must be within [0, 1]")
		}
		if i > 0 && fraction < previous {
			return simerr.NewValidation(fmt.Sprintf("implementationSchedule.%d", year), fraction,
				fmt.Sprintf("retention fraction decreases from %.4f", previous))
		}
		previous = fraction
	}
	return nil
}

// Missing returns the years in [from, to] without an explicit entry.
func (s Schedule) Missing(from, to int) []int {
	var missing []int
	for year := from; year <= to; year++ {
		if _, ok := s[year]; !ok {
			missing = append(missing, year)
		}
	}
	return missing
}

// Lookup returns the fraction for year. A missing year after the first
// configured year keeps the cumulative fraction of the closest earlier entry.
// Years before the first entry yield fallback, capped at the first entry's
// fraction so the series never decreases. The boolean is false whenever the
// fraction did not come from an explicit entry.
func (s Schedule) Lookup(year int, fallback float64) (float64, bool) {
	if fraction, ok := s[year]; ok {
		return fraction, true
	}
	years := s.Years()
	if len(years) == 0 {
		return fallback, false
	}
	if year < years[0] {
		return min(fallback, s[years[0]]), false
	}
	// Index of the first configured year after year.
	i := sort.SearchInts(years, year)
	return s[years[i-1]], false
}

// Earliest returns the fraction of the first configured year, or the package
// default fallback when the schedule is empty.
func (s Schedule) Earliest() float64 {
	years := s.Years()
	if len(years) == 0 {
		return constants.DefaultFallbackRetention
	}
	return s[years[0]]
}
