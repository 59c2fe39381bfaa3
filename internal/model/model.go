// Package model defines the simulation parameters and results owned by the
// state store, their built-in defaults, and the invariants they must satisfy.
package model

import (
	"time"

	"github.com/iwvelando/split-payment-forecast/internal/credit"
	"github.com/iwvelando/split-payment-forecast/internal/cycle"
	"github.com/iwvelando/split-payment-forecast/internal/mitigation"
	"github.com/iwvelando/split-payment-forecast/internal/schedule"
	"github.com/iwvelando/split-payment-forecast/internal/sector"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

// Section names a top-level part of the State.
type Section string

const (
	SectionCompany                Section = "company"
	SectionCashCycle              Section = "cashCycle"
	SectionFiscalParameters       Section = "fiscalParameters"
	SectionSimulationParameters   Section = "simulationParameters"
	SectionFinancialParameters    Section = "financialParameters"
	SectionImplementationSchedule Section = "implementationSchedule"
	SectionSectorRegistry         Section = "sectorRegistry"
	SectionSimulationResults      Section = "simulationResults"
	SectionInterfaceState         Section = "interfaceState"

	// SectionAll subscribes to every section.
	SectionAll Section = "*"
)

// Sections lists the built-in sections in display order.
func Sections() []Section {
	return []Section{
		SectionCompany,
		SectionCashCycle,
		SectionFiscalParameters,
		SectionSimulationParameters,
		SectionFinancialParameters,
		SectionImplementationSchedule,
		SectionSectorRegistry,
		SectionSimulationResults,
		SectionInterfaceState,
	}
}

// IsBuiltin reports whether s is one of the typed sections.
func (s Section) IsBuiltin() bool {
	for _, b := range Sections() {
		if b == s {
			return true
		}
	}
	return false
}

// IsInput reports whether s feeds the simulation, as opposed to holding its
// results or UI bookkeeping.
func (s Section) IsInput() bool {
	return s.IsBuiltin() && s != SectionSimulationResults && s != SectionInterfaceState
}

// Company describes the simulated business.
type Company struct {
	Name            string  `json:"name"`
	Sector          string  `json:"sector"`
	TaxRegime       string  `json:"taxRegime"`
	MonthlyRevenue  float64 `json:"monthlyRevenue"`
	AnnualRevenue   float64 `json:"annualRevenue"`
	OperatingMargin float64 `json:"operatingMargin"`
}

// CashCycle holds the operating cycle in days and the sales mix. The term
// share is always derived from the cash share.
type CashCycle struct {
	PMR                  float64 `json:"pmr"`
	PMP                  float64 `json:"pmp"`
	PME                  float64 `json:"pme"`
	PercCash             float64 `json:"percCash"`
	ConsiderSplitPayment bool    `json:"considerSplitPayment"`
}

// PercTerm returns 1 - PercCash.
func (c CashCycle) PercTerm() float64 {
	return 1 - c.PercCash
}

// Traditional returns the traditional financial cycle in days.
func (c CashCycle) Traditional() float64 {
	return cycle.Traditional(c.PMR, c.PMP, c.PME)
}

// FiscalParameters holds the tax inputs.
type FiscalParameters struct {
	EffectiveRate      float64       `json:"effectiveRate"`
	OperationType      string        `json:"operationType"`
	AvailableCredits   float64       `json:"availableCredits"`
	CompensationPolicy credit.Policy `json:"compensationPolicy"`
}

// SimulationWindow bounds the simulated period and selects revenue growth.
type SimulationWindow struct {
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	GrowthScenario string  `json:"growthScenario"`
	GrowthRate     float64 `json:"growthRate"`
}

// FinancialParameters holds the periodic (monthly) financing rates.
type FinancialParameters struct {
	AnticipationRate   float64 `json:"anticipationRate"`
	WorkingCapitalRate float64 `json:"workingCapitalRate"`
	BankingSpread      float64 `json:"bankingSpread"`
}

// YearResult is the impact of Split Payment in one simulated year.
type YearResult struct {
	Year              int              `json:"year"`
	RetentionFraction float64          `json:"retentionFraction"`
	ExplicitSchedule  bool             `json:"explicitSchedule"`
	MonthlyRevenue    float64          `json:"monthlyRevenue"`
	EffectiveRate     float64          `json:"effectiveRate"`
	Cycle             cycle.Result     `json:"cycle"`
	Retention         credit.Retention `json:"retention"`
	Impact            credit.Impact    `json:"impact"`
}

// Summary aggregates the yearly series.
type Summary struct {
	TotalRetainedTax        float64 `json:"totalRetainedTax"`
	TotalEffectiveRetention float64 `json:"totalEffectiveRetention"`
	PeakWorkingCapitalDelta float64 `json:"peakWorkingCapitalDelta"`
	PeakYear                int     `json:"peakYear"`
	AverageAdjustedCycle    float64 `json:"averageAdjustedCycle"`
}

// SimulationResults is populated after a simulation run.
type SimulationResults struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Years       []YearResult       `json:"years"`
	Summary     Summary            `json:"summary"`
	Memory      map[int]string     `json:"memory,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Strategy    *mitigation.Result `json:"strategy,omitempty"`
}

// Year returns the result for year.
func (r *SimulationResults) Year(year int) (YearResult, bool) {
	if r == nil {
		return YearResult{}, false
	}
	for _, y := range r.Years {
		if y.Year == year {
			return y, true
		}
	}
	return YearResult{}, false
}

// InterfaceState is UI bookkeeping; only SimulationRun gates core operations.
type InterfaceState struct {
	SimulationRun       bool   `json:"simulationRun"`
	ActiveTab           string `json:"activeTab"`
	ActiveMitigationTab string `json:"activeMitigationTab"`
}

// State is the full simulator state.
type State struct {
	Company                Company                   `json:"company"`
	CashCycle              CashCycle                 `json:"cashCycle"`
	FiscalParameters       FiscalParameters          `json:"fiscalParameters"`
	SimulationParameters   SimulationWindow          `json:"simulationParameters"`
	FinancialParameters    FinancialParameters       `json:"financialParameters"`
	ImplementationSchedule schedule.Schedule         `json:"implementationSchedule"`
	SectorRegistry         sector.Registry           `json:"sectorRegistry"`
	SimulationResults      *SimulationResults        `json:"simulationResults"`
	InterfaceState         InterfaceState            `json:"interfaceState"`
	Extensions             map[string]map[string]any `json:"extensions,omitempty"`
}

// Defaults returns a fresh State with the built-in reference parameters.
func Defaults() State {
	return State{
		Company: Company{
			Name:            "Empresa Exemplo",
			Sector:          "comercio",
			TaxRegime:       TaxRegimeLucroReal,
			MonthlyRevenue:  1_000_000,
			AnnualRevenue:   12_000_000,
			OperatingMargin: 0.15,
		},
		CashCycle: CashCycle{
			PMR:                  45,
			PMP:                  30,
			PME:                  20,
			PercCash:             0.30,
			ConsiderSplitPayment: true,
		},
		FiscalParameters: FiscalParameters{
			EffectiveRate:      constants.DefaultEffectiveRate,
			OperationType:      OperationB2B,
			AvailableCredits:   0,
			CompensationPolicy: credit.PolicyAutomatic,
		},
		SimulationParameters: SimulationWindow{
			StartDate:      "2026-01",
			EndDate:        "2033-12",
			GrowthScenario: GrowthModerate,
		},
		FinancialParameters: FinancialParameters{
			AnticipationRate:   0.018,
			WorkingCapitalRate: 0.021,
			BankingSpread:      0.005,
		},
		ImplementationSchedule: schedule.Default(),
		SectorRegistry:         sector.Default(),
		InterfaceState: InterfaceState{
			ActiveTab: "simulacao",
		},
	}
}

// Get returns the value of section s, or false for extension sections that
// do not exist.
func (st *State) Get(s Section) (any, bool) {
	switch s {
	case SectionCompany:
		return st.Company, true
	case SectionCashCycle:
		return st.CashCycle, true
	case SectionFiscalParameters:
		return st.FiscalParameters, true
	case SectionSimulationParameters:
		return st.SimulationParameters, true
	case SectionFinancialParameters:
		return st.FinancialParameters, true
	case SectionImplementationSchedule:
		return st.ImplementationSchedule, true
	case SectionSectorRegistry:
		return st.SectorRegistry, true
	case SectionSimulationResults:
		return st.SimulationResults, true
	case SectionInterfaceState:
		return st.InterfaceState, true
	}
	ext, ok := st.Extensions[string(s)]
	return ext, ok
}

// Reset restores section s to its default. Extension sections are removed.
func (st *State) Reset(s Section) {
	d := Defaults()
	switch s {
	case SectionCompany:
		st.Company = d.Company
	case SectionCashCycle:
		st.CashCycle = d.CashCycle
	case SectionFiscalParameters:
		st.FiscalParameters = d.FiscalParameters
	case SectionSimulationParameters:
		st.SimulationParameters = d.SimulationParameters
	case SectionFinancialParameters:
		st.FinancialParameters = d.FinancialParameters
	case SectionImplementationSchedule:
		st.ImplementationSchedule = d.ImplementationSchedule
	case SectionSectorRegistry:
		st.SectorRegistry = d.SectorRegistry
	case SectionSimulationResults:
		st.SimulationResults = d.SimulationResults
	case SectionInterfaceState:
		st.InterfaceState = d.InterfaceState
	default:
		delete(st.Extensions, string(s))
	}
}
