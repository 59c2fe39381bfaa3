package mitigation

import (
	"errors"
	"math/bits"
	"sort"

	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"go.uber.org/zap"
)

// Combination is one evaluated subset of active levers.
type Combination struct {
	Levers               []string `json:"levers"`
	Mask                 uint     `json:"mask"`
	EffectivenessPercent float64  `json:"effectivenessPercent"`
	Cost                 float64  `json:"cost"`
	// Score is cost per effectiveness point; only meaningful when Scored.
	Score  float64 `json:"score"`
	Scored bool    `json:"scored"`
}

// Skipped is a combination whose evaluation was aborted.
type Skipped struct {
	Levers []string `json:"levers"`
	Mask   uint     `json:"mask"`
	Reason string   `json:"reason"`
}

// Failure is a lever whose own formula failed.
type Failure struct {
	Lever  string `json:"lever"`
	Reason string `json:"reason"`
}

// Result is the outcome of a strategy search.
type Result struct {
	Baseline     Baseline      `json:"baseline"`
	Levers       []LeverResult `json:"levers"`
	Optimal      Combination   `json:"optimal"`
	Alternatives []Combination `json:"alternatives"`
	Skipped      []Skipped     `json:"skipped,omitempty"`
	Failures     []Failure     `json:"failures,omitempty"`
}

// Evaluator searches lever combinations.
type Evaluator struct {
	logger       *zap.Logger
	interactions *Interactions
}

// NewEvaluator creates an Evaluator. Nil arguments select a no-op logger and
// the reference interaction table.
func NewEvaluator(logger *zap.Logger, interactions *Interactions) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interactions == nil {
		interactions = DefaultInteractions()
	}
	return &Evaluator{logger: logger, interactions: interactions}
}

// Evaluate computes every active lever, enumerates all 2^n-1 non-empty
// subsets of them, and picks the subset with the lowest cost per point of
// effectiveness. Ties keep the first subset in enumeration order. With no
// active levers the zero result is returned without error.
func (e *Evaluator) Evaluate(b Baseline, cfg Config) (*Result, error) {
	result := &Result{Baseline: b, Alternatives: []Combination{}}

	var activeMask, failedMask uint
	var leverResults [leverCount]LeverResult
	failures := make(map[Lever]error)

	for _, l := range cfg.Active() {
		activeMask |= 1 << uint(l)
		lr, err := cfg.Evaluate(l, b)
		if err != nil {
			failedMask |= 1 << uint(l)
			failures[l] = err
			result.Failures = append(result.Failures, Failure{Lever: l.String(), Reason: err.Error()})
			e.logger.Warn("mitigation lever evaluation failed",
				zap.String("op", "mitigation.Evaluate"),
				zap.String("lever", l.String()),
				zap.Error(err),
			)
			continue
		}
		leverResults[l] = lr
		result.Levers = append(result.Levers, lr)
	}

	if activeMask == 0 {
		e.logger.Debug("no active mitigation levers",
			zap.String("op", "mitigation.Evaluate"),
		)
		return result, nil
	}

	for mask := uint(1); mask < 1<<uint(leverCount); mask++ {
		if mask&^activeMask != 0 {
			continue
		}
		if mask&failedMask != 0 {
			result.Skipped = append(result.Skipped, Skipped{
				Levers: maskNames(mask),
				Mask:   mask,
				Reason: "lever evaluation failed: " + failedNames(mask&failedMask),
			})
			continue
		}
		combo := e.combine(mask, leverResults)
		e.logger.Debug("evaluated mitigation combination",
			zap.String("op", "mitigation.Evaluate"),
			zap.Strings("levers", combo.Levers),
			zap.Float64("effectiveness", combo.EffectivenessPercent),
			zap.Float64("cost", combo.Cost),
		)
		result.Alternatives = append(result.Alternatives, combo)
	}

	if len(result.Alternatives) == 0 {
		// Every subset contains a failing lever: the failure is unavoidable.
		var errs []error
		for _, l := range Levers() {
			if err, ok := failures[l]; ok {
				errs = append(errs, err)
			}
		}
		return nil, &simerr.CalculationError{
			Formula: "strategySearch",
			Reason:  "no combination of active levers could be evaluated",
			Err:     errors.Join(errs...),
		}
	}

	sort.SliceStable(result.Alternatives, func(i, j int) bool {
		a, b := result.Alternatives[i], result.Alternatives[j]
		if a.Scored != b.Scored {
			return a.Scored
		}
		return a.Scored && a.Score < b.Score
	})
	result.Optimal = result.Alternatives[0]

	e.logger.Info("selected mitigation strategy",
		zap.String("op", "mitigation.Evaluate"),
		zap.Strings("levers", result.Optimal.Levers),
		zap.Float64("effectiveness", result.Optimal.EffectivenessPercent),
		zap.Float64("cost", result.Optimal.Cost),
		zap.Int("alternatives", len(result.Alternatives)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (e *Evaluator) combine(mask uint, levers [leverCount]LeverResult) Combination {
	combo := Combination{Levers: maskNames(mask), Mask: mask}
	for _, l := range Levers() {
		if mask&(1<<uint(l)) == 0 {
			continue
		}
		combo.EffectivenessPercent += levers[l].EffectivenessPercent * e.interactions.MemberFactor(l, mask)
		combo.Cost += levers[l].Cost
	}
	if combo.EffectivenessPercent > constants.MaxEffectivenessPercent {
		combo.EffectivenessPercent = constants.MaxEffectivenessPercent
	}
	if combo.EffectivenessPercent > 0 {
		combo.Score = combo.Cost / combo.EffectivenessPercent
		combo.Scored = true
	}
	return combo
}

// Size returns the number of levers in a combination mask.
func Size(mask uint) int {
	return bits.OnesCount(mask)
}

func maskNames(mask uint) []string {
	names := make([]string, 0, Size(mask))
	for _, l := range Levers() {
		if mask&(1<<uint(l)) != 0 {
			names = append(names, l.String())
		}
	}
	return names
}

func failedNames(mask uint) string {
	names := maskNames(mask)
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
