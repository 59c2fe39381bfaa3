// Package simulation runs the Split Payment projection against a state store
// and writes the results back into it.
package simulation

import (
	"fmt"
	"sort"

	"github.com/iwvelando/split-payment-forecast/internal/cycle"
	"github.com/iwvelando/split-payment-forecast/internal/memory"
	"github.com/iwvelando/split-payment-forecast/internal/mitigation"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/projection"
	"github.com/iwvelando/split-payment-forecast/internal/schedule"
	"github.com/iwvelando/split-payment-forecast/internal/sensitivity"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/internal/state"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/mathutil"
	"go.uber.org/zap"
)

// Settings are the calculation knobs that are not part of the simulated state.
type Settings struct {
	MonthlyDiscountRate float64
	FallbackRetention   float64
	SensitivityDelta    float64
	SensitivityCap      float64
	Interactions        *mitigation.Interactions
}

// DefaultSettings returns the reference calculation settings.
func DefaultSettings() Settings {
	return Settings{
		MonthlyDiscountRate: constants.DefaultMonthlyDiscountRate,
		FallbackRetention:   constants.DefaultFallbackRetention,
		SensitivityDelta:    constants.DefaultSensitivityDelta,
		SensitivityCap:      constants.DefaultSensitivityCap,
	}
}

// Engine orchestrates the calculators.
type Engine struct {
	logger    *zap.Logger
	settings  Settings
	evaluator *mitigation.Evaluator
	analyzer  *sensitivity.Analyzer
}

// NewEngine creates an Engine.
func NewEngine(logger *zap.Logger, settings Settings) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:    logger,
		settings:  settings,
		evaluator: mitigation.NewEvaluator(logger, settings.Interactions),
		analyzer:  sensitivity.NewAnalyzer(logger, settings.SensitivityDelta, settings.SensitivityCap),
	}
}

type run struct {
	state     model.State
	params    projection.Params
	resolver  *schedule.Resolver
	projector *projection.Projector
	warnings  []string
}

func (e *Engine) prepare(st model.State) (*run, error) {
	if err := model.Validate(st); err != nil {
		return nil, err
	}
	params, warnings, err := projection.FromState(st, e.settings.MonthlyDiscountRate)
	if err != nil {
		return nil, err
	}
	resolver := schedule.NewResolver(st.ImplementationSchedule, st.SectorRegistry, e.settings.FallbackRetention)
	return &run{
		state:     st,
		params:    params,
		resolver:  resolver,
		projector: projection.NewProjector(resolver),
		warnings:  warnings,
	}, nil
}

// Run projects every year of the simulation window, stores the results under
// simulationResults and marks the simulation as run. Returned warnings are also
// stored with the results.
func (e *Engine) Run(store *state.Store) (*model.SimulationResults, error) {
	r, err := e.prepare(store.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("simulation inputs: %w", err)
	}

	results := &model.SimulationResults{
		Memory:   make(map[int]string),
		Warnings: r.warnings,
	}
	if r.params.IgnoreSplitPayment {
		results.Warnings = append(results.Warnings, "split payment is disabled; retention is treated as zero")
	}

	var implicit []int
	for _, year := range r.params.Years() {
		yr, err := r.projector.Year(r.params, year)
		if err != nil {
			return nil, err
		}
		if !yr.ExplicitSchedule {
			implicit = append(implicit, year)
		}
		results.Years = append(results.Years, yr)
		results.Memory[year] = memory.Render(r.params, yr)

		e.logger.Debug("simulated year",
			zap.String("op", "simulation.Run"),
			zap.Int("year", year),
			zap.Float64("retention", yr.RetentionFraction),
			zap.Float64("adjustedCycle", yr.Cycle.AdjustedCycle),
			zap.Float64("delta", yr.Cycle.Delta),
		)
	}
	if len(implicit) > 0 && !r.params.IgnoreSplitPayment {
		results.Warnings = append(results.Warnings,
			fmt.Sprintf("no explicit phase-in entry for years %v; fallback fractions were used", implicit))
	}
	results.Summary = Summarize(results.Years)

	err = store.Apply(state.EventUpdate, []model.Section{model.SectionSimulationResults, model.SectionInterfaceState},
		func(st *model.State) error {
			results.GeneratedAt = store.Now().UTC()
			st.SimulationResults = results
			st.InterfaceState.SimulationRun = true
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("storing simulation results: %w", err)
	}

	for _, w := range results.Warnings {
		e.logger.Warn(w, zap.String("op", "simulation.Run"))
	}
	e.logger.Info("simulation complete",
		zap.String("op", "simulation.Run"),
		zap.Int("years", len(results.Years)),
		zap.Float64("peakDelta", results.Summary.PeakWorkingCapitalDelta),
		zap.Int("peakYear", results.Summary.PeakYear),
	)
	return results, nil
}

// Summarize aggregates a yearly series. The peak is the largest working
// capital delta; ties keep the earliest year. Money totals are rounded to cents.
func Summarize(years []model.YearResult) model.Summary {
	var s model.Summary
	if len(years) == 0 {
		return s
	}
	var cycles float64
	for i, yr := range years {
		s.TotalRetainedTax += yr.Cycle.RetainedTax
		s.TotalEffectiveRetention += yr.Retention.EffectiveRetention
		cycles += yr.Cycle.AdjustedCycle
		if i == 0 || yr.Cycle.Delta > s.PeakWorkingCapitalDelta {
			s.PeakWorkingCapitalDelta = yr.Cycle.Delta
			s.PeakYear = yr.Year
		}
	}
	s.TotalRetainedTax = mathutil.Round(s.TotalRetainedTax)
	s.TotalEffectiveRetention = mathutil.Round(s.TotalEffectiveRetention)
	s.PeakWorkingCapitalDelta = mathutil.Round(s.PeakWorkingCapitalDelta)
	s.AverageAdjustedCycle = cycles / float64(len(years))
	return s
}

// ReferenceYear returns the simulated year with the highest retention
// fraction, the earliest one on ties.
func ReferenceYear(results *model.SimulationResults) (model.YearResult, bool) {
	if results == nil || len(results.Years) == 0 {
		return model.YearResult{}, false
	}
	ref := results.Years[0]
	for _, yr := range results.Years[1:] {
		if yr.RetentionFraction > ref.RetentionFraction {
			ref = yr
		}
	}
	return ref, true
}

// RunStrategies evaluates the mitigation levers against the reference year of
// the last simulation and stores the ranking under simulationResults.strategy.
func (e *Engine) RunStrategies(store *state.Store, cfg mitigation.Config) (*mitigation.Result, error) {
	st := store.Snapshot()
	ref, ok := ReferenceYear(st.SimulationResults)
	if !st.InterfaceState.SimulationRun || !ok {
		return nil, &simerr.PreconditionError{Operation: "strategy simulation", Requirement: "a completed simulation"}
	}

	baseline := mitigation.Baseline{
		MonthlyRevenue:     ref.MonthlyRevenue,
		OperatingMargin:    st.Company.OperatingMargin,
		EffectiveRate:      ref.EffectiveRate,
		RetentionFraction:  ref.RetentionFraction,
		PercTerm:           st.CashCycle.PercTerm(),
		PMR:                st.CashCycle.PMR,
		AnticipationRate:   st.FinancialParameters.AnticipationRate,
		WorkingCapitalRate: st.FinancialParameters.WorkingCapitalRate,
		BankingSpread:      st.FinancialParameters.BankingSpread,
		Impact:             ref.Cycle.Delta,
	}
	result, err := e.evaluator.Evaluate(baseline, cfg)
	if err != nil {
		return nil, err
	}

	err = store.Apply(state.EventUpdate, []model.Section{model.SectionSimulationResults}, func(st *model.State) error {
		if st.SimulationResults == nil {
			return &simerr.PreconditionError{Operation: "strategy simulation", Requirement: "a completed simulation"}
		}
		st.SimulationResults.Strategy = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing strategy result: %w", err)
	}

	e.logger.Info("strategy simulation complete",
		zap.String("op", "simulation.RunStrategies"),
		zap.Int("referenceYear", ref.Year),
		zap.Float64("impact", baseline.Impact),
	)
	return result, nil
}

// Sensitivity builds the sensitivity matrix of year for the given sectors
// (every registered sector when empty). Year 0 selects the first simulated
// year. With split payment disabled every sector is evaluated without
// retention, as Run does.
func (e *Engine) Sensitivity(store *state.Store, year int, codes []string, params []sensitivity.Parameter) (*sensitivity.Matrix, error) {
	r, err := e.prepare(store.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("sensitivity inputs: %w", err)
	}
	if year == 0 {
		year = r.params.StartYear
	}
	if year < r.params.StartYear || year > r.params.EndYear {
		return nil, simerr.NewValidation("year", year,
			fmt.Sprintf("outside simulation window %d-%d", r.params.StartYear, r.params.EndYear))
	}
	if len(codes) == 0 {
		codes = r.state.SectorRegistry.Codes()
	}

	base := cycle.Input{
		PMR:            r.params.PMR,
		PMP:            r.params.PMP,
		PME:            r.params.PME,
		MonthlyRevenue: r.params.RevenueFor(year),
		EffectiveRate:  r.params.EffectiveRate,
		PercTerm:       r.params.PercTerm,
	}
	scenarios := sensitivity.Scenarios(base, r.state.SectorRegistry, r.resolver, year, codes)
	if r.params.IgnoreSplitPayment {
		for i := range scenarios {
			scenarios[i].Input.RetentionFraction = 0
		}
		e.logger.Warn("split payment is disabled; retention is treated as zero",
			zap.String("op", "simulation.Sensitivity"),
			zap.Int("year", year),
		)
	}
	return e.analyzer.Matrix(scenarios, params)
}

// Memory renders the calculation memory of year, or of every simulated year
// when year is 0.
func (e *Engine) Memory(store *state.Store, year int) (map[int]string, error) {
	r, err := e.prepare(store.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("memory inputs: %w", err)
	}
	gen := memory.NewGenerator(r.projector)
	if year == 0 {
		return gen.All(r.params)
	}
	text, err := gen.Year(r.params, year)
	if err != nil {
		return nil, err
	}
	return map[int]string{year: text}, nil
}

// SortedYears returns the keys of a memory map in order.
func SortedYears(m map[int]string) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
