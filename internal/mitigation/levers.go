// Package mitigation evaluates the six levers a business can pull to offset
// the working-capital impact of Split Payment and searches every combination
// of the active levers for the most cost-effective one.
package mitigation

import (
	"fmt"
	"math"

	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/mathutil"
)

// Lever identifies one mitigation action. The numeric order is the bit
// position used when enumerating combinations.
type Lever int

const (
	LeverPriceAdjustment Lever = iota
	LeverTermRenegotiation
	LeverReceivablesAnticipation
	LeverWorkingCapitalFinancing
	LeverProductMix
	LeverPaymentIncentives

	leverCount
)

var leverNames = [leverCount]string{
	"priceAdjustment",
	"termRenegotiation",
	"receivablesAnticipation",
	"workingCapitalFinancing",
	"productMix",
	"paymentIncentives",
}

func (l Lever) String() string {
	if l < 0 || l >= leverCount {
		return fmt.Sprintf("lever(%d)", int(l))
	}
	return leverNames[l]
}

// Levers returns all levers in bit order.
func Levers() []Lever {
	out := make([]Lever, leverCount)
	for i := range out {
		out[i] = Lever(i)
	}
	return out
}

// ParseLever resolves a lever by name.
func ParseLever(name string) (Lever, bool) {
	for i, n := range leverNames {
		if n == name {
			return Lever(i), true
		}
	}
	return 0, false
}

// Baseline is the exposure the levers are measured against.
type Baseline struct {
	MonthlyRevenue     float64 `json:"monthlyRevenue"`
	OperatingMargin    float64 `json:"operatingMargin"`
	EffectiveRate      float64 `json:"effectiveRate"`
	RetentionFraction  float64 `json:"retentionFraction"`
	PercTerm           float64 `json:"percTerm"`
	PMR                float64 `json:"pmr"`
	AnticipationRate   float64 `json:"anticipationRate"`
	WorkingCapitalRate float64 `json:"workingCapitalRate"`
	BankingSpread      float64 `json:"bankingSpread"`

	// Impact is the additional working capital the levers try to cover.
	Impact float64 `json:"impact"`
}

// PriceAdjustment raises prices, losing volume according to elasticity.
type PriceAdjustment struct {
	Activate        bool    `json:"activate" yaml:"activate"`
	IncreasePercent float64 `json:"increasePercent" yaml:"increasePercent"`
	Elasticity      float64 `json:"elasticity" yaml:"elasticity"`
}

// TermRenegotiation extends supplier payment terms.
type TermRenegotiation struct {
	Activate             bool    `json:"activate" yaml:"activate"`
	AdditionalDays       float64 `json:"additionalDays" yaml:"additionalDays"`
	ParticipationPercent float64 `json:"participationPercent" yaml:"participationPercent"`
	CostPercent          float64 `json:"costPercent" yaml:"costPercent"`
}

// ReceivablesAnticipation discounts term receivables with a bank.
type ReceivablesAnticipation struct {
	Activate           bool    `json:"activate" yaml:"activate"`
	AnticipatedPercent float64 `json:"anticipatedPercent" yaml:"anticipatedPercent"`
	Days               float64 `json:"days" yaml:"days"`
}

// WorkingCapitalFinancing borrows part of the impact.
type WorkingCapitalFinancing struct {
	Activate        bool    `json:"activate" yaml:"activate"`
	CoveragePercent float64 `json:"coveragePercent" yaml:"coveragePercent"`
	TermMonths      float64 `json:"termMonths" yaml:"termMonths"`
}

// ProductMix shifts sales toward faster-cycling products.
type ProductMix struct {
	Activate            bool    `json:"activate" yaml:"activate"`
	ShiftPercent        float64 `json:"shiftPercent" yaml:"shiftPercent"`
	CycleReductionDays  float64 `json:"cycleReductionDays" yaml:"cycleReductionDays"`
	MarginImpactPercent float64 `json:"marginImpactPercent" yaml:"marginImpactPercent"`
}

// PaymentIncentives discounts cash payments to migrate term sales.
type PaymentIncentives struct {
	Activate            bool    `json:"activate" yaml:"activate"`
	CashDiscountPercent float64 `json:"cashDiscountPercent" yaml:"cashDiscountPercent"`
	AdoptionPercent     float64 `json:"adoptionPercent" yaml:"adoptionPercent"`
}

// Config enumerates the six lever configurations.
type Config struct {
	PriceAdjustment         PriceAdjustment         `json:"priceAdjustment" yaml:"priceAdjustment"`
	TermRenegotiation       TermRenegotiation       `json:"termRenegotiation" yaml:"termRenegotiation"`
	ReceivablesAnticipation ReceivablesAnticipation `json:"receivablesAnticipation" yaml:"receivablesAnticipation"`
	WorkingCapitalFinancing WorkingCapitalFinancing `json:"workingCapitalFinancing" yaml:"workingCapitalFinancing"`
	ProductMix              ProductMix              `json:"productMix" yaml:"productMix"`
	PaymentIncentives       PaymentIncentives       `json:"paymentIncentives" yaml:"paymentIncentives"`
}

// LeverResult is the standalone effect of one lever.
type LeverResult struct {
	Lever                string  `json:"lever"`
	EffectivenessPercent float64 `json:"effectivenessPercent"`
	Cost                 float64 `json:"cost"`
	NetBenefit           float64 `json:"netBenefit"`
}

type formula func(Baseline) (benefit, cost float64, err error)

// formulas returns, per lever, whether it is active and its closed form.
func (c Config) formulas() [leverCount]struct {
	active bool
	eval   formula
} {
	return [leverCount]struct {
		active bool
		eval   formula
	}{
		{c.PriceAdjustment.Activate, c.PriceAdjustment.evaluate},
		{c.TermRenegotiation.Activate, c.TermRenegotiation.evaluate},
		{c.ReceivablesAnticipation.Activate, c.ReceivablesAnticipation.evaluate},
		{c.WorkingCapitalFinancing.Activate, c.WorkingCapitalFinancing.evaluate},
		{c.ProductMix.Activate, c.ProductMix.evaluate},
		{c.PaymentIncentives.Activate, c.PaymentIncentives.evaluate},
	}
}

// Active returns the activated levers in bit order.
func (c Config) Active() []Lever {
	var active []Lever
	for i, f := range c.formulas() {
		if f.active {
			active = append(active, Lever(i))
		}
	}
	return active
}

// Evaluate computes the standalone effect of lever l against b.
func (c Config) Evaluate(l Lever, b Baseline) (LeverResult, error) {
	if l < 0 || l >= leverCount {
		return LeverResult{}, simerr.NewValidation("lever", int(l), "unknown lever")
	}
	benefit, cost, err := c.formulas()[l].eval(b)
	if err != nil {
		return LeverResult{}, &simerr.CalculationError{Formula: "effectiveness", Lever: l.String(), Reason: "invalid parameters", Err: err}
	}
	return LeverResult{
		Lever:                l.String(),
		EffectivenessPercent: effectiveness(benefit, b.Impact),
		Cost:                 cost,
		NetBenefit:           benefit,
	}, nil
}

func effectiveness(netBenefit, impact float64) float64 {
	if impact <= 0 || !mathutil.IsFinite(impact) {
		return 0
	}
	return mathutil.Clamp(mathutil.CalculatePercentage(netBenefit, impact), 0, constants.MaxEffectivenessPercent)
}

type param struct {
	name     string
	value    float64
	signed   bool
	required bool
}

// checkParams fails on the first non-numeric (NaN or infinite) parameter, or
// negative one where the formula has no meaning for it.
func checkParams(lever Lever, params ...param) error {
	for _, p := range params {
		field := lever.String() + "." + p.name
		if !mathutil.IsFinite(p.value) {
			return simerr.NewValidation(field, p.value, "must be numeric")
		}
		if !p.signed && p.value < 0 {
			return simerr.NewValidation(field, p.value, "must be >= 0")
		}
		if p.required && p.value == 0 {
			return simerr.NewValidation(field, p.value, "is required")
		}
	}
	return nil
}

func (p PriceAdjustment) evaluate(b Baseline) (float64, float64, error) {
	if err := checkParams(LeverPriceAdjustment,
		param{name: "increasePercent", value: p.IncreasePercent, required: true},
		param{name: "elasticity", value: p.Elasticity},
	); err != nil {
		return 0, 0, err
	}
	increase := mathutil.FromPercent(p.IncreasePercent)
	volumeLoss := math.Min(p.Elasticity*increase, 1)
	newRevenue := b.MonthlyRevenue * (1 + increase) * (1 - volumeLoss)
	benefit := math.Max(0, newRevenue-b.MonthlyRevenue)
	cost := b.MonthlyRevenue * volumeLoss * b.OperatingMargin
	return benefit, cost, nil
}

func (t TermRenegotiation) evaluate(b Baseline) (float64, float64, error) {
	if err := checkParams(LeverTermRenegotiation,
		param{name: "additionalDays", value: t.AdditionalDays, required: true},
		param{name: "participationPercent", value: t.ParticipationPercent, required: true},
		param{name: "costPercent", value: t.CostPercent},
	); err != nil {
		return 0, 0, err
	}
	purchases := b.MonthlyRevenue * (1 - b.OperatingMargin)
	gross := purchases / constants.DaysPerMonth * t.AdditionalDays * mathutil.FromPercent(t.ParticipationPercent)
	cost := gross * mathutil.FromPercent(t.CostPercent)
	return gross - cost, cost, nil
}

func (r ReceivablesAnticipation) evaluate(b Baseline) (float64, float64, error) {
	if err := checkParams(LeverReceivablesAnticipation,
		param{name: "anticipatedPercent", value: r.AnticipatedPercent, required: true},
		param{name: "days", value: r.Days, required: true},
	); err != nil {
		return 0, 0, err
	}
	anticipated := b.MonthlyRevenue * b.PercTerm * mathutil.FromPercent(r.AnticipatedPercent)
	cost := anticipated * b.AnticipationRate * r.Days / constants.DaysPerMonth
	return anticipated - cost, cost, nil
}

func (w WorkingCapitalFinancing) evaluate(b Baseline) (float64, float64, error) {
	if err := checkParams(LeverWorkingCapitalFinancing,
		param{name: "coveragePercent", value: w.CoveragePercent, required: true},
		param{name: "termMonths", value: w.TermMonths, required: true},
	); err != nil {
		return 0, 0, err
	}
	financed := math.Max(0, b.Impact) * mathutil.FromPercent(w.CoveragePercent)
	cost := financed * (b.WorkingCapitalRate + b.BankingSpread) * w.TermMonths
	return financed, cost, nil
}

func (p ProductMix) evaluate(b Baseline) (float64, float64, error) {
	if err := checkParams(LeverProductMix,
		param{name: "shiftPercent", value: p.ShiftPercent, required: true},
		param{name: "cycleReductionDays", value: p.CycleReductionDays},
		param{name: "marginImpactPercent", value: p.MarginImpactPercent, signed: true},
	); err != nil {
		return 0, 0, err
	}
	shift := mathutil.FromPercent(p.ShiftPercent)
	freed := b.MonthlyRevenue / constants.DaysPerMonth * p.CycleReductionDays * shift
	marginEffect := mathutil.FromPercent(p.MarginImpactPercent) * b.MonthlyRevenue * shift
	return freed + marginEffect, math.Max(0, -marginEffect), nil
}

func (p PaymentIncentives) evaluate(b Baseline) (float64, float64, error) {
	if err := checkParams(LeverPaymentIncentives,
		param{name: "cashDiscountPercent", value: p.CashDiscountPercent},
		param{name: "adoptionPercent", value: p.AdoptionPercent, required: true},
	); err != nil {
		return 0, 0, err
	}
	migrated := b.MonthlyRevenue * b.PercTerm * mathutil.FromPercent(p.AdoptionPercent)
	freed := migrated / constants.DaysPerMonth * b.PMR
	cost := migrated * mathutil.FromPercent(p.CashDiscountPercent)
	return freed - cost, cost, nil
}
