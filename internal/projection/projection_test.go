package projection

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/split-payment-forecast/internal/credit"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/schedule"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
)

func referenceParams(t *testing.T) Params {
	t.Helper()
	p, warnings, err := FromState(model.Defaults(), 0.01)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return p
}

func TestFromStateDefaults(t *testing.T) {
	p := referenceParams(t)
	if p.StartYear != 2026 || p.EndYear != 2033 {
		t.Errorf("window = %d-%d", p.StartYear, p.EndYear)
	}
	if p.EffectiveRate != 0.265 {
		t.Errorf("EffectiveRate = %v, expected 0.265", p.EffectiveRate)
	}
	if math.Abs(p.PercTerm-0.7) > 1e-12 {
		t.Errorf("PercTerm = %v, expected 0.7", p.PercTerm)
	}
	if p.Policy != credit.PolicyImmediate {
		t.Errorf("Policy = %s, expected immediate", p.Policy)
	}
	if len(p.Years()) != 8 {
		t.Errorf("Years() = %v", p.Years())
	}
}

func TestFromStateUnknownSectorWarns(t *testing.T) {
	st := model.Defaults()
	st.Company.Sector = "mineracao"
	st.FiscalParameters.EffectiveRate = 0.2
	p, warnings, err := FromState(st, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if p.EffectiveRate != 0.2 {
		t.Errorf("EffectiveRate = %v, expected fiscal fallback 0.2", p.EffectiveRate)
	}
	if len(warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", warnings)
	}
}

func TestYearReferenceScenario(t *testing.T) {
	p := referenceParams(t)
	p.AvailableCredits = 10000
	pr := NewProjector(schedule.NewResolver(schedule.Default(), nil, 0.10))

	yr, err := pr.Year(p, 2026)
	if err != nil {
		t.Fatalf("Year: %v", err)
	}
	checks := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"revenue", yr.MonthlyRevenue, 1000000},
		{"retention fraction", yr.RetentionFraction, 0.10},
		{"tax debit", yr.Cycle.TotalTaxDebit, 265000},
		{"retained tax", yr.Cycle.RetainedTax, 26500},
		{"traditional cycle", yr.Cycle.TraditionalCycle, 35},
		{"effective retention", yr.Retention.EffectiveRetention, 16500},
		{"consumed credits", yr.Retention.ConsumedCredits, 10000},
		{"remaining credits", yr.Retention.RemainingCredits, 0},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.expected) > 1e-6 {
			t.Errorf("%s = %v, expected %v", c.name, c.got, c.expected)
		}
	}
	if !yr.ExplicitSchedule {
		t.Errorf("2026 should come from an explicit entry")
	}
}

func TestYearGrowthAndWindow(t *testing.T) {
	p := referenceParams(t)
	pr := NewProjector(schedule.NewResolver(schedule.Default(), nil, 0.10))

	yr, err := pr.Year(p, 2028)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(yr.MonthlyRevenue-1000000*1.05*1.05) > 1e-6 {
		t.Errorf("MonthlyRevenue = %v", yr.MonthlyRevenue)
	}
	if _, err := pr.Year(p, 2040); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("expected validation error outside the window, got %v", err)
	}
}

func TestYearIgnoringSplitPayment(t *testing.T) {
	p := referenceParams(t)
	p.IgnoreSplitPayment = true
	yr, err := NewProjector(schedule.NewResolver(schedule.Default(), nil, 0.10)).Year(p, 2033)
	if err != nil {
		t.Fatal(err)
	}
	if yr.Cycle.Delta != 0 || yr.Cycle.RetainedTax != 0 {
		t.Errorf("expected no impact, got %+v", yr.Cycle)
	}
}
