package model

import (
	"fmt"
	"time"

	"github.com/iwvelando/split-payment-forecast/internal/credit"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/datetime"
	"github.com/iwvelando/split-payment-forecast/pkg/mathutil"
)

// Tax regimes.
const (
	TaxRegimeLucroReal       = "lucro_real"
	TaxRegimeLucroPresumido  = "lucro_presumido"
	TaxRegimeSimplesNacional = "simples_nacional"
)

// Operation types.
const (
	OperationB2B   = "b2b"
	OperationB2C   = "b2c"
	OperationB2G   = "b2g"
	OperationMixed = "mixed"
)

// Growth scenarios.
const (
	GrowthConservative = "conservative"
	GrowthModerate     = "moderate"
	GrowthOptimistic   = "optimistic"
	GrowthCustom       = "custom"
)

// AnnualGrowth returns the growth rate implied by the scenario.
func (w SimulationWindow) AnnualGrowth() (float64, error) {
	switch w.GrowthScenario {
	case GrowthConservative:
		return constants.GrowthConservative, nil
	case GrowthModerate, "":
		return constants.GrowthModerate, nil
	case GrowthOptimistic:
		return constants.GrowthOptimistic, nil
	case GrowthCustom:
		return w.GrowthRate, nil
	}
	return 0, simerr.NewValidation("simulationParameters.growthScenario", w.GrowthScenario, "unknown growth scenario")
}

// Bounds parses the window dates.
func (w SimulationWindow) Bounds() (time.Time, time.Time, error) {
	start, err := datetime.ParseMonth(w.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, simerr.NewValidation("simulationParameters.startDate", w.StartDate, err.Error())
	}
	end, err := datetime.ParseMonth(w.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, simerr.NewValidation("simulationParameters.endDate", w.EndDate, err.Error())
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, simerr.NewValidation("simulationParameters.endDate", w.EndDate,
			fmt.Sprintf("must not be before start date %s", w.StartDate))
	}
	return start, end, nil
}

// Years returns the calendar years covered by the window.
func (w SimulationWindow) Years() (int, int, error) {
	start, end, err := w.Bounds()
	if err != nil {
		return 0, 0, err
	}
	return start.Year(), end.Year(), nil
}

// Validate enforces the invariants of every parameter section and returns the
// first violation.
func Validate(st State) error {
	validators := []func(State) error{
		validateCompany,
		validateCashCycle,
		validateFiscal,
		validateWindow,
		validateFinancial,
		func(s State) error { return s.ImplementationSchedule.Validate() },
		func(s State) error { return s.SectorRegistry.Validate() },
	}
	for _, v := range validators {
		if err := v(st); err != nil {
			return err
		}
	}
	return nil
}

func nonNegative(field string, value float64) error {
	if !mathutil.IsFinite(value) {
		return simerr.NewValidation(field, value, "must be a finite number")
	}
	if value < 0 {
		return simerr.NewValidation(field, value, "must be >= 0")
	}
	return nil
}

func fraction(field string, value float64) error {
	if err := nonNegative(field, value); err != nil {
		return err
	}
	if value > 1 {
		return simerr.NewValidation(field, value, "must be within [0, 1]")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return simerr.NewValidation(field, value, fmt.Sprintf("expected one of %v", allowed))
}

func validateCompany(st State) error {
	c := st.Company
	if err := oneOf("company.taxRegime", c.TaxRegime, TaxRegimeLucroReal, TaxRegimeLucroPresumido, TaxRegimeSimplesNacional); err != nil {
		return err
	}
	if err := nonNegative("company.monthlyRevenue", c.MonthlyRevenue); err != nil {
		return err
	}
	if err := nonNegative("company.annualRevenue", c.AnnualRevenue); err != nil {
		return err
	}
	return fraction("company.operatingMargin", c.OperatingMargin)
}

func validateCashCycle(st State) error {
	c := st.CashCycle
	for _, f := range []struct {
		field string
		value float64
	}{
		{"cashCycle.pmr", c.PMR},
		{"cashCycle.pmp", c.PMP},
		{"cashCycle.pme", c.PME},
	} {
		if err := nonNegative(f.field, f.value); err != nil {
			return err
		}
	}
	return fraction("cashCycle.percCash", c.PercCash)
}

func validateFiscal(st State) error {
	f := st.FiscalParameters
	if err := fraction("fiscalParameters.effectiveRate", f.EffectiveRate); err != nil {
		return err
	}
	if err := oneOf("fiscalParameters.operationType", f.OperationType, OperationB2B, OperationB2C, OperationB2G, OperationMixed); err != nil {
		return err
	}
	if err := nonNegative("fiscalParameters.availableCredits", f.AvailableCredits); err != nil {
		return err
	}
	_, err := credit.ParsePolicy(string(f.CompensationPolicy))
	return err
}

func validateWindow(st State) error {
	w := st.SimulationParameters
	if _, _, err := w.Bounds(); err != nil {
		return err
	}
	growth, err := w.AnnualGrowth()
	if err != nil {
		return err
	}
	if !mathutil.IsFinite(growth) || growth <= -1 {
		return simerr.NewValidation("simulationParameters.growthRate", w.GrowthRate, "must be a finite number > -1")
	}
	return nil
}

func validateFinancial(st State) error {
	f := st.FinancialParameters
	if err := nonNegative("financialParameters.anticipationRate", f.AnticipationRate); err != nil {
		return err
	}
	if err := nonNegative("financialParameters.workingCapitalRate", f.WorkingCapitalRate); err != nil {
		return err
	}
	return nonNegative("financialParameters.bankingSpread", f.BankingSpread)
}
