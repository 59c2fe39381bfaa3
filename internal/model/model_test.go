package model

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/split-payment-forecast/internal/simerr"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestPercTermIsDerived(t *testing.T) {
	c := CashCycle{PercCash: 0.3}
	if math.Abs(c.PercTerm()-0.7) > 1e-12 {
		t.Errorf("PercTerm() = %v, expected 0.7", c.PercTerm())
	}
	if math.Abs(c.PercCash+c.PercTerm()-1) > 1e-12 {
		t.Errorf("percCash + percTerm != 1")
	}
}

func TestValidateReportsField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*State)
		field  string
	}{
		{"negative revenue", func(s *State) { s.Company.MonthlyRevenue = -1 }, "company.monthlyRevenue"},
		{"margin above one", func(s *State) { s.Company.OperatingMargin = 1.5 }, "company.operatingMargin"},
		{"unknown regime", func(s *State) { s.Company.TaxRegime = "mei" }, "company.taxRegime"},
		{"percCash above one", func(s *State) { s.CashCycle.PercCash = 1.2 }, "cashCycle.percCash"},
		{"negative pmp", func(s *State) { s.CashCycle.PMP = -3 }, "cashCycle.pmp"},
		{"rate above one", func(s *State) { s.FiscalParameters.EffectiveRate = 2 }, "fiscalParameters.effectiveRate"},
		{"negative credits", func(s *State) { s.FiscalParameters.AvailableCredits = -10 }, "fiscalParameters.availableCredits"},
		{"unknown policy", func(s *State) { s.FiscalParameters.CompensationPolicy = "yearly" }, "fiscalParameters.compensationPolicy"},
		{"end before start", func(s *State) { s.SimulationParameters.EndDate = "2025-01" }, "simulationParameters.endDate"},
		{"bad start date", func(s *State) { s.SimulationParameters.StartDate = "2026" }, "simulationParameters.startDate"},
		{"unknown scenario", func(s *State) { s.SimulationParameters.GrowthScenario = "wild" }, "simulationParameters.growthScenario"},
		{"negative spread", func(s *State) { s.FinancialParameters.BankingSpread = -0.01 }, "financialParameters.bankingSpread"},
		{"schedule above one", func(s *State) { s.ImplementationSchedule[2030] = 1.5 }, "implementationSchedule.2030"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Defaults()
			tt.mutate(&st)
			err := Validate(st)
			var vErr *simerr.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Field = %s, expected %s", vErr.Field, tt.field)
			}
		})
	}
}

func TestAnnualGrowth(t *testing.T) {
	tests := []struct {
		window   SimulationWindow
		expected float64
	}{
		{SimulationWindow{GrowthScenario: GrowthConservative}, 0.02},
		{SimulationWindow{GrowthScenario: GrowthModerate}, 0.05},
		{SimulationWindow{GrowthScenario: GrowthOptimistic}, 0.08},
		{SimulationWindow{GrowthScenario: GrowthCustom, GrowthRate: 0.12}, 0.12},
		{SimulationWindow{GrowthScenario: GrowthModerate, GrowthRate: 0.5}, 0.05},
	}
	for _, tt := range tests {
		got, err := tt.window.AnnualGrowth()
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.expected {
			t.Errorf("AnnualGrowth(%+v) = %v, expected %v", tt.window, got, tt.expected)
		}
	}
}

func TestWindowYears(t *testing.T) {
	from, to, err := Defaults().SimulationParameters.Years()
	if err != nil {
		t.Fatal(err)
	}
	if from != 2026 || to != 2033 {
		t.Errorf("Years() = %d..%d, expected 2026..2033", from, to)
	}
}

func TestGetAndReset(t *testing.T) {
	st := Defaults()
	st.Company.Name = "Outra"
	st.Extensions = map[string]map[string]any{"prefs": {"theme": "dark"}}

	st.Reset(SectionCompany)
	if st.Company.Name != Defaults().Company.Name {
		t.Errorf("Reset(company) did not restore defaults")
	}
	if _, ok := st.Get("prefs"); !ok {
		t.Fatalf("expected extension section")
	}
	st.Reset("prefs")
	if _, ok := st.Get("prefs"); ok {
		t.Errorf("Reset(extension) should remove it")
	}
	if !SectionCashCycle.IsBuiltin() || Section("prefs").IsBuiltin() {
		t.Errorf("IsBuiltin() misclassified sections")
	}
}
