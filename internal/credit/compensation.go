// Package credit models how available tax credits offset the tax retained
// under Split Payment, and when that offset turns into cash.
package credit

import (
	"fmt"
	"math"
	"strings"

	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/mathutil"
)

// Policy is the credit compensation timing.
type Policy string

const (
	PolicyImmediate Policy = "immediate"
	PolicyMonthly   Policy = "monthly"
	PolicyQuarterly Policy = "quarterly"

	// PolicyAutomatic is the user-facing name of immediate compensation.
	PolicyAutomatic Policy = "automatic"
)

// ParsePolicy normalises a policy name; "automatic" maps to immediate.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case PolicyImmediate, PolicyAutomatic, "":
		return PolicyImmediate, nil
	case PolicyMonthly:
		return PolicyMonthly, nil
	case PolicyQuarterly:
		return PolicyQuarterly, nil
	default:
		return "", simerr.NewValidation("fiscalParameters.compensationPolicy", name,
			fmt.Sprintf("expected %s, %s, %s or %s", PolicyAutomatic, PolicyImmediate, PolicyMonthly, PolicyQuarterly))
	}
}

// DeferralDays returns how long the credit benefit takes to reach cash.
func (p Policy) DeferralDays() int {
	switch p {
	case PolicyMonthly:
		return constants.MonthlyDeferralDays
	case PolicyQuarterly:
		return constants.QuarterlyDeferralDays
	default:
		return 0
	}
}

// Retention is the outcome of compensating a tax debit with credits.
type Retention struct {
	Policy             Policy  `json:"policy"`
	TaxDebit           float64 `json:"taxDebit"`
	AvailableCredits   float64 `json:"availableCredits"`
	ConsumedCredits    float64 `json:"consumedCredits"`
	RemainingCredits   float64 `json:"remainingCredits"`
	EffectiveRetention float64 `json:"effectiveRetention"`
}

// ComputeRetention applies availableCredits against taxDebit. Immediate
// compensation reduces the retention now; monthly and quarterly keep the full
// retention and defer the consumed credits.
func ComputeRetention(taxDebit, availableCredits float64, policy Policy) (Retention, error) {
	if !mathutil.IsFinite(taxDebit) || taxDebit < 0 {
		return Retention{}, simerr.NewValidation("taxDebit", taxDebit, "must be a finite number >= 0")
	}
	if !mathutil.IsFinite(availableCredits) || availableCredits < 0 {
		return Retention{}, simerr.NewValidation("fiscalParameters.availableCredits", availableCredits, "must be a finite number >= 0")
	}
	if policy == PolicyAutomatic {
		policy = PolicyImmediate
	}

	consumed := math.Min(availableCredits, taxDebit)
	r := Retention{
		Policy:           policy,
		TaxDebit:         taxDebit,
		AvailableCredits: availableCredits,
		ConsumedCredits:  consumed,
		RemainingCredits: math.Max(0, availableCredits-consumed),
	}

	switch policy {
	case PolicyImmediate:
		r.EffectiveRetention = taxDebit - consumed
	case PolicyMonthly, PolicyQuarterly:
		r.EffectiveRetention = taxDebit
	default:
		return Retention{}, simerr.NewValidation("fiscalParameters.compensationPolicy", string(policy), "unknown compensation policy")
	}
	return r, nil
}

// Impact splits a retention into what leaves cash now and what returns later.
type Impact struct {
	ImmediateImpact  float64 `json:"immediateImpact"`
	FutureBenefit    float64 `json:"futureBenefit"`
	DeferralDays     int     `json:"deferralDays"`
	DiscountFactor   float64 `json:"discountFactor"`
	NetPresentImpact float64 `json:"netPresentImpact"`
}

// CashFlowImpact discounts the deferred credit benefit at monthlyDiscount per
// 30 days: net = immediate - future / (1 + monthlyDiscount)^(deferralDays/30).
func CashFlowImpact(r Retention, monthlyDiscount float64) (Impact, error) {
	if !mathutil.IsFinite(monthlyDiscount) || monthlyDiscount <= -1 {
		return Impact{}, &simerr.CalculationError{Formula: "netPresentImpact", Reason: fmt.Sprintf("monthly discount %v must be > -1", monthlyDiscount)}
	}

	impact := Impact{
		ImmediateImpact: r.EffectiveRetention,
		DeferralDays:    r.Policy.DeferralDays(),
		DiscountFactor:  1,
	}
	if r.Policy != PolicyImmediate {
		impact.FutureBenefit = r.ConsumedCredits
	}
	impact.DiscountFactor = DiscountFactor(monthlyDiscount, impact.DeferralDays)
	impact.NetPresentImpact = impact.ImmediateImpact - impact.FutureBenefit/impact.DiscountFactor
	return impact, nil
}

// DiscountFactor returns (1 + monthlyDiscount)^(deferralDays/30).
func DiscountFactor(monthlyDiscount float64, deferralDays int) float64 {
	return math.Pow(1+monthlyDiscount, float64(deferralDays)/constants.DaysPerMonth)
}
