// Package projection evaluates the Split Payment impact of a single simulated
// year. It is the only place where the cycle and credit calculators are
// chained, so every consumer of a yearly figure sees the same numbers.
package projection

import (
	"fmt"
	"math"

	"github.com/iwvelando/split-payment-forecast/internal/credit"
	"github.com/iwvelando/split-payment-forecast/internal/cycle"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/schedule"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/mathutil"
)

// Params are the year-independent inputs of a projection.
type Params struct {
	Company   string
	Sector    string
	StartYear int
	EndYear   int

	// MonthlyRevenue is the revenue of StartYear; later years grow by
	// AnnualGrowth compounded yearly.
	MonthlyRevenue float64
	AnnualGrowth   float64

	PMR      float64
	PMP      float64
	PME      float64
	PercTerm float64

	EffectiveRate    float64
	AvailableCredits float64
	Policy           credit.Policy
	MonthlyDiscount  float64

	// IgnoreSplitPayment projects the business without any retention.
	IgnoreSplitPayment bool
}

// FromState extracts projection parameters from a state snapshot. The
// company's sector rate wins over the fiscal effective rate when the sector
// is registered. Returned warnings describe lenient fallbacks.
func FromState(st model.State, monthlyDiscount float64) (Params, []string, error) {
	var warnings []string

	from, to, err := st.SimulationParameters.Years()
	if err != nil {
		return Params{}, nil, err
	}
	growth, err := st.SimulationParameters.AnnualGrowth()
	if err != nil {
		return Params{}, nil, err
	}
	policy, err := credit.ParsePolicy(string(st.FiscalParameters.CompensationPolicy))
	if err != nil {
		return Params{}, nil, err
	}

	rate := st.FiscalParameters.EffectiveRate
	if s, ok := st.SectorRegistry.Get(st.Company.Sector); ok {
		rate = s.EffectiveRate
	} else if st.Company.Sector != "" {
		warnings = append(warnings, fmt.Sprintf("sector %q is not registered; using the fiscal effective rate %.4f", st.Company.Sector, rate))
	}

	return Params{
		Company:          st.Company.Name,
		Sector:           st.Company.Sector,
		StartYear:        from,
		EndYear:          to,
		MonthlyRevenue:   st.Company.MonthlyRevenue,
		AnnualGrowth:     growth,
		PMR:              st.CashCycle.PMR,
		PMP:              st.CashCycle.PMP,
		PME:              st.CashCycle.PME,
		PercTerm:         st.CashCycle.PercTerm(),
		EffectiveRate:    rate,
		AvailableCredits: st.FiscalParameters.AvailableCredits,
		Policy:           policy,
		MonthlyDiscount:  monthlyDiscount,

		IgnoreSplitPayment: !st.CashCycle.ConsiderSplitPayment,
	}, warnings, nil
}

// RevenueFor returns the monthly revenue of year.
func (p Params) RevenueFor(year int) float64 {
	return p.MonthlyRevenue * math.Pow(1+p.AnnualGrowth, float64(year-p.StartYear))
}

// Years returns every year of the window in order.
func (p Params) Years() []int {
	if p.EndYear < p.StartYear {
		return nil
	}
	years := make([]int, 0, p.EndYear-p.StartYear+1)
	for y := p.StartYear; y <= p.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// Projector evaluates years against a phase-in schedule.
type Projector struct {
	resolver *schedule.Resolver
}

// NewProjector creates a Projector resolving retention through resolver.
func NewProjector(resolver *schedule.Resolver) *Projector {
	return &Projector{resolver: resolver}
}

// Year evaluates the adjusted cycle, working-capital need, credit
// compensation and cash-flow impact of year.
func (pr *Projector) Year(p Params, year int) (model.YearResult, error) {
	if year < p.StartYear || year > p.EndYear {
		return model.YearResult{}, simerr.NewValidation("year", year,
			fmt.Sprintf("outside simulation window %d-%d", p.StartYear, p.EndYear))
	}

	retention, explicit := pr.resolver.RateExplicit(year, p.Sector)
	if p.IgnoreSplitPayment {
		retention = 0
	}
	revenue := p.RevenueFor(year)
	if !mathutil.IsFinite(revenue) {
		return model.YearResult{}, &simerr.CalculationError{Formula: "revenueGrowth", Reason: fmt.Sprintf("revenue for %d is not finite", year)}
	}

	cycleResult, err := cycle.Adjust(cycle.Input{
		PMR:               p.PMR,
		PMP:               p.PMP,
		PME:               p.PME,
		MonthlyRevenue:    revenue,
		EffectiveRate:     p.EffectiveRate,
		RetentionFraction: retention,
		PercTerm:          p.PercTerm,
	})
	if err != nil {
		return model.YearResult{}, fmt.Errorf("adjusted cycle for %d: %w", year, err)
	}

	ret, err := credit.ComputeRetention(cycleResult.RetainedTax, p.AvailableCredits, p.Policy)
	if err != nil {
		return model.YearResult{}, fmt.Errorf("credit compensation for %d: %w", year, err)
	}
	impact, err := credit.CashFlowImpact(ret, p.MonthlyDiscount)
	if err != nil {
		return model.YearResult{}, fmt.Errorf("cash-flow impact for %d: %w", year, err)
	}

	return model.YearResult{
		Year:              year,
		RetentionFraction: retention,
		ExplicitSchedule:  explicit,
		MonthlyRevenue:    revenue,
		EffectiveRate:     p.EffectiveRate,
		Cycle:             cycleResult,
		Retention:         ret,
		Impact:            impact,
	}, nil
}
