// Package sensitivity measures how strongly the working-capital impact of
// Split Payment reacts to each input parameter, sector by sector.
package sensitivity

import (
	"fmt"
	"math"

	"github.com/iwvelando/split-payment-forecast/internal/cycle"
	"github.com/iwvelando/split-payment-forecast/internal/schedule"
	"github.com/iwvelando/split-payment-forecast/internal/sector"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/mathutil"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Parameter names an input that can be perturbed.
type Parameter string

const (
	ParamRevenue       Parameter = "revenue"
	ParamEffectiveRate Parameter = "effectiveRate"
	ParamRetention     Parameter = "retention"
	ParamPMR           Parameter = "pmr"
	ParamPMP           Parameter = "pmp"
	ParamPME           Parameter = "pme"
	ParamPercTerm      Parameter = "percTerm"
)

// Parameters returns every supported parameter in display order.
func Parameters() []Parameter {
	return []Parameter{ParamRevenue, ParamEffectiveRate, ParamRetention, ParamPMR, ParamPMP, ParamPME, ParamPercTerm}
}

// ParseParameter resolves a parameter by name.
func ParseParameter(name string) (Parameter, error) {
	for _, p := range Parameters() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", simerr.NewValidation("sensitivity.parameter", name, fmt.Sprintf("expected one of %v", Parameters()))
}

// scale returns a copy of in with p multiplied by factor. Fractions are kept
// within [0, 1].
func (p Parameter) scale(in cycle.Input, factor float64) (cycle.Input, error) {
	switch p {
	case ParamRevenue:
		in.MonthlyRevenue *= factor
	case ParamEffectiveRate:
		in.EffectiveRate = math.Min(1, in.EffectiveRate*factor)
	case ParamRetention:
		in.RetentionFraction = math.Min(1, in.RetentionFraction*factor)
	case ParamPMR:
		in.PMR *= factor
	case ParamPMP:
		in.PMP *= factor
	case ParamPME:
		in.PME *= factor
	case ParamPercTerm:
		in.PercTerm = math.Min(1, in.PercTerm*factor)
	default:
		return in, simerr.NewValidation("sensitivity.parameter", string(p), "unknown parameter")
	}
	return in, nil
}

// Scenario is the baseline input of one sector.
type Scenario struct {
	Sector string
	Input  cycle.Input
}

// Scenarios derives one scenario per sector code from a common base input:
// each sector contributes its own effective rate and phase-in fraction for
// year. Unknown sectors keep the base effective rate.
func Scenarios(base cycle.Input, reg sector.Registry, resolver *schedule.Resolver, year int, codes []string) []Scenario {
	out := make([]Scenario, 0, len(codes))
	for _, code := range codes {
		in := base
		in.EffectiveRate = reg.EffectiveRate(code, base.EffectiveRate)
		in.RetentionFraction = resolver.Rate(year, code)
		out = append(out, Scenario{Sector: code, Input: in})
	}
	return out
}

// Cell is one (sector, parameter) measurement.
type Cell struct {
	Sector         string    `json:"sector"`
	Parameter      Parameter `json:"parameter"`
	BaselineDelta  float64   `json:"baselineDelta"`
	PerturbedDelta float64   `json:"perturbedDelta"`
	Index          float64   `json:"index"`
	// Saturated marks a zero baseline with a non-zero perturbed delta; Index
	// then holds the configured cap.
	Saturated bool `json:"saturated"`
}

// Summary aggregates one parameter across sectors.
type Summary struct {
	Parameter Parameter `json:"parameter"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"stdDev"`
	Max       float64   `json:"max"`
	MaxSector string    `json:"maxSector"`
}

// Matrix holds sensitivity indexes with sectors as rows and parameters as
// columns.
type Matrix struct {
	Sectors    []string    `json:"sectors"`
	Parameters []Parameter `json:"parameters"`
	Delta      float64     `json:"delta"`
	Cells      [][]Cell    `json:"cells"`
	Summaries  []Summary   `json:"summaries"`

	indexes *mat.Dense
}

// At returns the index of sector row i and parameter column j.
func (m *Matrix) At(i, j int) float64 {
	return m.indexes.At(i, j)
}

// Dense exposes the index matrix for further numeric work.
func (m *Matrix) Dense() mat.Matrix {
	return m.indexes
}

// Analyzer builds sensitivity matrices.
type Analyzer struct {
	logger *zap.Logger
	delta  float64
	limit  float64
}

// NewAnalyzer creates an Analyzer. Non-positive delta or limit select the
// defaults. limit caps every index and is the value of saturated cells.
func NewAnalyzer(logger *zap.Logger, delta, limit float64) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !(delta > 0) || !mathutil.IsFinite(delta) {
		delta = constants.DefaultSensitivityDelta
	}
	if !(limit > 0) || !mathutil.IsFinite(limit) {
		limit = constants.DefaultSensitivityCap
	}
	return &Analyzer{logger: logger, delta: delta, limit: limit}
}

// Matrix perturbs every parameter of every scenario by (1 + delta) and
// reports |perturbed - baseline| / |baseline| / delta for each pair. An empty
// params list analyses every parameter.
func (a *Analyzer) Matrix(scenarios []Scenario, params []Parameter) (*Matrix, error) {
	if len(scenarios) == 0 {
		return nil, simerr.NewValidation("sensitivity.sectors", nil, "at least one sector is required")
	}
	if len(params) == 0 {
		params = Parameters()
	}

	m := &Matrix{
		Sectors:    make([]string, len(scenarios)),
		Parameters: append([]Parameter(nil), params...),
		Delta:      a.delta,
		Cells:      make([][]Cell, len(scenarios)),
		indexes:    mat.NewDense(len(scenarios), len(params), nil),
	}

	for i, sc := range scenarios {
		m.Sectors[i] = sc.Sector
		base, err := cycle.Adjust(sc.Input)
		if err != nil {
			return nil, fmt.Errorf("sector %s baseline: %w", sc.Sector, err)
		}

		m.Cells[i] = make([]Cell, len(params))
		for j, p := range params {
			cell, err := a.cell(sc, p, base.Delta)
			if err != nil {
				return nil, err
			}
			m.Cells[i][j] = cell
			m.indexes.Set(i, j, cell.Index)
		}
	}

	m.Summaries = summarize(m)

	a.logger.Debug("built sensitivity matrix",
		zap.String("op", "sensitivity.Matrix"),
		zap.Int("sectors", len(scenarios)),
		zap.Int("parameters", len(params)),
		zap.Float64("delta", a.delta),
	)
	return m, nil
}

func (a *Analyzer) cell(sc Scenario, p Parameter, baseline float64) (Cell, error) {
	perturbedIn, err := p.scale(sc.Input, 1+a.delta)
	if err != nil {
		return Cell{}, err
	}
	perturbed, err := cycle.Adjust(perturbedIn)
	if err != nil {
		return Cell{}, &simerr.CalculationError{
			Formula: "sensitivity",
			Reason:  fmt.Sprintf("sector %s, parameter %s", sc.Sector, p),
			Err:     err,
		}
	}

	cell := Cell{Sector: sc.Sector, Parameter: p, BaselineDelta: baseline, PerturbedDelta: perturbed.Delta}
	cell.Index, cell.Saturated = Index(baseline, perturbed.Delta, a.delta, a.limit)
	if cell.Saturated {
		a.logger.Warn("sensitivity index saturated on zero baseline",
			zap.String("op", "sensitivity.Matrix"),
			zap.String("sector", sc.Sector),
			zap.String("parameter", string(p)),
			zap.Float64("perturbedDelta", perturbed.Delta),
		)
	}
	return cell, nil
}

// Index returns |perturbed - baseline| / |baseline| / delta, capped at limit.
// A zero baseline yields 0 when nothing moved and limit (saturated) otherwise.
func Index(baseline, perturbed, delta, limit float64) (float64, bool) {
	change := math.Abs(perturbed - baseline)
	switch {
	case mathutil.IsZero(baseline) && mathutil.IsZero(change):
		return 0, false
	case mathutil.IsZero(baseline):
		return limit, true
	}
	return math.Min(limit, change/math.Abs(baseline)/delta), false
}

func summarize(m *Matrix) []Summary {
	rows, cols := m.indexes.Dims()
	out := make([]Summary, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m.indexes)
		s := Summary{Parameter: m.Parameters[j], Mean: stat.Mean(col, nil)}
		if rows > 1 {
			s.StdDev = stat.StdDev(col, nil)
		}
		s.Max = math.Inf(-1)
		for i, v := range col {
			if v > s.Max {
				s.Max = v
				s.MaxSector = m.Sectors[i]
			}
		}
		out[j] = s
	}
	return out
}
