// Package cycle computes the financial (cash conversion) cycle, its Split
// Payment adjusted counterpart, and the working-capital need both imply.
package cycle

import (
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/mathutil"
)

// Traditional returns PMR + PME - PMP in days. Negative cycles are valid and
// mean suppliers finance the operation.
func Traditional(pmr, pmp, pme float64) float64 {
	return pmr + pme - pmp
}

// WorkingCapitalNeed returns (monthlyRevenue / 30) x cycleDays.
func WorkingCapitalNeed(monthlyRevenue, cycleDays float64) float64 {
	return DailyRevenue(monthlyRevenue) * cycleDays
}

// DailyRevenue converts monthly revenue into the commercial-month daily figure.
func DailyRevenue(monthlyRevenue float64) float64 {
	return monthlyRevenue / constants.DaysPerMonth
}

// TaxDebit returns revenue x effectiveRate.
func TaxDebit(revenue, effectiveRate float64) float64 {
	return revenue * effectiveRate
}

// RetainedTax returns the share of the tax debit withheld at payment time.
func RetainedTax(taxDebit, retentionFraction float64) float64 {
	return taxDebit * retentionFraction
}

// AffectedProportion returns the share of sales exposed to the collection
// delay. All-cash businesses count as fully exposed.
func AffectedProportion(percTerm float64) float64 {
	if percTerm > 0 {
		return percTerm
	}
	return 1
}

// DaysImpact returns PMR x (retainedTax / totalTaxDebit) x affectedProportion,
// or zero when there is no tax debit.
func DaysImpact(pmr, retainedTax, totalTaxDebit, affectedProportion float64) float64 {
	return pmr * mathutil.SafeDivide(retainedTax, totalTaxDebit) * affectedProportion
}

// Input carries everything Adjust needs for one period.
type Input struct {
	PMR               float64
	PMP               float64
	PME               float64
	MonthlyRevenue    float64
	EffectiveRate     float64
	RetentionFraction float64
	PercTerm          float64
}

// Validate rejects inputs the formulas cannot give meaning to.
func (in Input) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"cashCycle.pmr", in.PMR},
		{"cashCycle.pmp", in.PMP},
		{"cashCycle.pme", in.PME},
		{"company.monthlyRevenue", in.MonthlyRevenue},
		{"fiscalParameters.effectiveRate", in.EffectiveRate},
		{"implementationSchedule", in.RetentionFraction},
		{"cashCycle.percTerm", in.PercTerm},
	}
	for _, c := range checks {
		if !mathutil.IsFinite(c.value) {
			return simerr.NewValidation(c.field, c.value, "must be a finite number")
		}
		if c.value < 0 {
			return simerr.NewValidation(c.field, c.value, "must be >= 0")
		}
	}
	if in.EffectiveRate > 1 {
		return simerr.NewValidation("fiscalParameters.effectiveRate", in.EffectiveRate, "must be within [0, 1]")
	}
	if in.RetentionFraction > 1 {
		return simerr.NewValidation("implementationSchedule", in.RetentionFraction, "must be within [0, 1]")
	}
	if in.PercTerm > 1 {
		return simerr.NewValidation("cashCycle.percTerm", in.PercTerm, "must be within [0, 1]")
	}
	return nil
}

// Result is the full trace of one adjusted-cycle evaluation.
type Result struct {
	TraditionalCycle   float64 `json:"traditionalCycle"`
	TotalTaxDebit      float64 `json:"totalTaxDebit"`
	RetainedTax        float64 `json:"retainedTax"`
	AffectedProportion float64 `json:"affectedProportion"`
	DaysImpact         float64 `json:"daysImpact"`
	AdjustedCycle      float64 `json:"adjustedCycle"`
	CurrentNeed        float64 `json:"currentNeed"`
	AdjustedNeed       float64 `json:"adjustedNeed"`
	Delta              float64 `json:"delta"`
}

// Adjust evaluates the Split Payment adjusted cycle. Retained tax leaves the
// firm before receivables are collected, so it lengthens the cycle.
func Adjust(in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	traditional := Traditional(in.PMR, in.PMP, in.PME)
	totalTaxDebit := TaxDebit(in.MonthlyRevenue, in.EffectiveRate)
	retained := RetainedTax(totalTaxDebit, in.RetentionFraction)
	affected := AffectedProportion(in.PercTerm)
	daysImpact := DaysImpact(in.PMR, retained, totalTaxDebit, affected)
	adjusted := traditional + daysImpact

	current := WorkingCapitalNeed(in.MonthlyRevenue, traditional)
	adjustedNeed := WorkingCapitalNeed(in.MonthlyRevenue, adjusted)

	return Result{
		TraditionalCycle:   traditional,
		TotalTaxDebit:      totalTaxDebit,
		RetainedTax:        retained,
		AffectedProportion: affected,
		DaysImpact:         daysImpact,
		AdjustedCycle:      adjusted,
		CurrentNeed:        current,
		AdjustedNeed:       adjustedNeed,
		Delta:              adjustedNeed - current,
	}, nil
}
