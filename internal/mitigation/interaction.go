package mitigation

import (
	"fmt"
	"math"

	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

// Interactions is the symmetric table of pairwise coefficients that discount
// overlapping benefit when levers are combined.
type Interactions struct {
	table [leverCount][leverCount]float64
}

// Override sets the coefficient of one lever pair.
type Override struct {
	A      string  `mapstructure:"a" json:"a" yaml:"a"`
	B      string  `mapstructure:"b" json:"b" yaml:"b"`
	Factor float64 `mapstructure:"factor" json:"factor" yaml:"factor"`
}

// DefaultInteractions returns the reference coefficients. Pairs not listed
// use constants.DefaultInteractionFactor.
func DefaultInteractions() *Interactions {
	in, _ := NewInteractions(constants.DefaultInteractionFactor, nil)
	return in
}

// NewInteractions builds the reference table with fallback for unlisted pairs
// and then applies overrides. Coefficients must lie in [0.7, 1].
func NewInteractions(fallback float64, overrides []Override) (*Interactions, error) {
	if err := checkFactor("mitigation.defaultInteraction", fallback); err != nil {
		return nil, err
	}

	in := &Interactions{}
	for i := range in.table {
		for j := range in.table[i] {
			in.table[i][j] = fallback
		}
		in.table[i][i] = 1
	}

	reference := []struct {
		a, b   Lever
		factor float64
	}{
		{LeverPriceAdjustment, LeverTermRenegotiation, 0.95},
		{LeverPriceAdjustment, LeverReceivablesAnticipation, 0.90},
		{LeverPriceAdjustment, LeverWorkingCapitalFinancing, 0.95},
		{LeverPriceAdjustment, LeverProductMix, 0.80},
		{LeverPriceAdjustment, LeverPaymentIncentives, 0.85},
		{LeverTermRenegotiation, LeverReceivablesAnticipation, 0.90},
		{LeverTermRenegotiation, LeverWorkingCapitalFinancing, 0.85},
		{LeverTermRenegotiation, LeverPaymentIncentives, 0.95},
		{LeverReceivablesAnticipation, LeverWorkingCapitalFinancing, 0.75},
		{LeverReceivablesAnticipation, LeverProductMix, 0.95},
		{LeverReceivablesAnticipation, LeverPaymentIncentives, 0.70},
		{LeverWorkingCapitalFinancing, LeverPaymentIncentives, 0.90},
	}
	for _, r := range reference {
		in.set(r.a, r.b, r.factor)
	}

	for _, o := range overrides {
		a, ok := ParseLever(o.A)
		if !ok {
			return nil, simerr.NewValidation("mitigation.interactions.a", o.A, "unknown lever")
		}
		b, ok := ParseLever(o.B)
		if !ok {
			return nil, simerr.NewValidation("mitigation.interactions.b", o.B, "unknown lever")
		}
		if a == b {
			return nil, simerr.NewValidation("mitigation.interactions", o.A, "a lever does not interact with itself")
		}
		if err := checkFactor(fmt.Sprintf("mitigation.interactions.%s.%s", o.A, o.B), o.Factor); err != nil {
			return nil, err
		}
		in.set(a, b, o.Factor)
	}
	return in, nil
}

func checkFactor(field string, factor float64) error {
	if math.IsNaN(factor) || factor < 0.7 || factor > 1 {
		return simerr.NewValidation(field, factor, "interaction coefficient must be within [0.7, 1]")
	}
	return nil
}

func (in *Interactions) set(a, b Lever, factor float64) {
	in.table[a][b] = factor
	in.table[b][a] = factor
}

// Coefficient returns the pairwise coefficient of a and b.
func (in *Interactions) Coefficient(a, b Lever) float64 {
	return in.table[a][b]
}

// MemberFactor returns the discount applied to member within the combination
// mask. A lone lever keeps its full effect; otherwise the factor is the
// geometric mean of the member's pairwise coefficients, so each pair counts
// once per member and larger subsets are not penalised twice for the same
// overlap.
func (in *Interactions) MemberFactor(member Lever, mask uint) float64 {
	product := 1.0
	pairs := 0
	for _, other := range Levers() {
		if other == member || mask&(1<<uint(other)) == 0 {
			continue
		}
		product *= in.table[member][other]
		pairs++
	}
	if pairs == 0 {
		return 1
	}
	return math.Pow(product, 1/float64(pairs))
}
