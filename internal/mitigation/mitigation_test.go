package mitigation

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
)

func testBaseline() Baseline {
	return Baseline{
		MonthlyRevenue:     1000000,
		OperatingMargin:    0.15,
		EffectiveRate:      0.265,
		RetentionFraction:  0.10,
		PercTerm:           0.70,
		PMR:                45,
		AnticipationRate:   0.018,
		WorkingCapitalRate: 0.021,
		BankingSpread:      0.005,
		Impact:             1000000,
	}
}

func TestLeverNames(t *testing.T) {
	for _, l := range Levers() {
		got, ok := ParseLever(l.String())
		if !ok || got != l {
			t.Errorf("ParseLever(%q) = %v, %v", l.String(), got, ok)
		}
	}
	if _, ok := ParseLever("taxHoliday"); ok {
		t.Errorf("expected unknown lever to fail")
	}
}

func TestLeverFormulas(t *testing.T) {
	b := testBaseline()
	tests := []struct {
		name          string
		cfg           Config
		lever         Lever
		expectBenefit float64
		expectCost    float64
	}{
		{
			name:          "price adjustment",
			cfg:           Config{PriceAdjustment: PriceAdjustment{Activate: true, IncreasePercent: 5, Elasticity: 0.5}},
			lever:         LeverPriceAdjustment,
			expectBenefit: 1000000*1.05*0.975 - 1000000,
			expectCost:    1000000 * 0.025 * 0.15,
		},
		{
			name:          "term renegotiation",
			cfg:           Config{TermRenegotiation: TermRenegotiation{Activate: true, AdditionalDays: 15, ParticipationPercent: 60, CostPercent: 2}},
			lever:         LeverTermRenegotiation,
			expectBenefit: 850000.0 / 30 * 15 * 0.6 * 0.98,
			expectCost:    850000.0 / 30 * 15 * 0.6 * 0.02,
		},
		{
			name:          "receivables anticipation",
			cfg:           Config{ReceivablesAnticipation: ReceivablesAnticipation{Activate: true, AnticipatedPercent: 50, Days: 30}},
			lever:         LeverReceivablesAnticipation,
			expectBenefit: 350000 - 350000*0.018,
			expectCost:    350000 * 0.018,
		},
		{
			name:          "working capital financing",
			cfg:           Config{WorkingCapitalFinancing: WorkingCapitalFinancing{Activate: true, CoveragePercent: 40, TermMonths: 12}},
			lever:         LeverWorkingCapitalFinancing,
			expectBenefit: 400000,
			expectCost:    400000 * 0.026 * 12,
		},
		{
			name:          "product mix with margin loss",
			cfg:           Config{ProductMix: ProductMix{Activate: true, ShiftPercent: 20, CycleReductionDays: 10, MarginImpactPercent: -1}},
			lever:         LeverProductMix,
			expectBenefit: 1000000.0/30*10*0.2 - 2000,
			expectCost:    2000,
		},
		{
			name:          "payment incentives",
			cfg:           Config{PaymentIncentives: PaymentIncentives{Activate: true, CashDiscountPercent: 3, AdoptionPercent: 30}},
			lever:         LeverPaymentIncentives,
			expectBenefit: 210000.0/30*45 - 6300,
			expectCost:    6300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr, err := tt.cfg.Evaluate(tt.lever, b)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if math.Abs(lr.NetBenefit-tt.expectBenefit) > 1e-6 {
				t.Errorf("NetBenefit = %v, expected %v", lr.NetBenefit, tt.expectBenefit)
			}
			if math.Abs(lr.Cost-tt.expectCost) > 1e-6 {
				t.Errorf("Cost = %v, expected %v", lr.Cost, tt.expectCost)
			}
			if lr.EffectivenessPercent < 0 || lr.EffectivenessPercent > 100 {
				t.Errorf("EffectivenessPercent = %v out of [0, 100]", lr.EffectivenessPercent)
			}
		})
	}
}

func TestLeverRejectsInvalidParameters(t *testing.T) {
	cfg := Config{PriceAdjustment: PriceAdjustment{Activate: true, IncreasePercent: math.NaN()}}
	_, err := cfg.Evaluate(LeverPriceAdjustment, testBaseline())
	var cErr *simerr.CalculationError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected CalculationError, got %v", err)
	}
	if cErr.Lever != "priceAdjustment" {
		t.Errorf("Lever = %q", cErr.Lever)
	}
	if !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("expected wrapped validation error")
	}
}

func TestEvaluateNoActiveLevers(t *testing.T) {
	res, err := NewEvaluator(nil, nil).Evaluate(testBaseline(), Config{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if diff := cmp.Diff(Combination{}, res.Optimal); diff != "" {
		t.Errorf("Optimal mismatch (-want +got):\n%s", diff)
	}
	if len(res.Alternatives) != 0 {
		t.Errorf("expected no alternatives, got %d", len(res.Alternatives))
	}
}

func TestEvaluateSingleLeverIsOptimal(t *testing.T) {
	cfg := Config{ReceivablesAnticipation: ReceivablesAnticipation{Activate: true, AnticipatedPercent: 50, Days: 30}}
	res, err := NewEvaluator(nil, nil).Evaluate(testBaseline(), cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if diff := cmp.Diff([]string{"receivablesAnticipation"}, res.Optimal.Levers); diff != "" {
		t.Errorf("Optimal.Levers mismatch (-want +got):\n%s", diff)
	}
	if math.Abs(res.Optimal.EffectivenessPercent-res.Levers[0].EffectivenessPercent) > 1e-9 {
		t.Errorf("single lever effectiveness should not be discounted")
	}
	if len(res.Alternatives) != 1 {
		t.Errorf("expected 1 alternative, got %d", len(res.Alternatives))
	}
}

func TestEvaluateEnumeratesAllSubsets(t *testing.T) {
	cfg := Config{
		TermRenegotiation:       TermRenegotiation{Activate: true, AdditionalDays: 15, ParticipationPercent: 60, CostPercent: 2},
		ReceivablesAnticipation: ReceivablesAnticipation{Activate: true, AnticipatedPercent: 50, Days: 30},
		PaymentIncentives:       PaymentIncentives{Activate: true, CashDiscountPercent: 3, AdoptionPercent: 30},
	}
	res, err := NewEvaluator(nil, nil).Evaluate(testBaseline(), cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Alternatives) != 7 {
		t.Fatalf("expected 7 subsets, got %d", len(res.Alternatives))
	}
	for i := 1; i < len(res.Alternatives); i++ {
		if res.Alternatives[i].Score < res.Alternatives[i-1].Score {
			t.Errorf("alternatives not ranked by score at %d", i)
		}
	}
	if diff := cmp.Diff(res.Alternatives[0], res.Optimal); diff != "" {
		t.Errorf("Optimal is not the best ranked alternative:\n%s", diff)
	}
}

func TestEvaluateCapsEffectiveness(t *testing.T) {
	cfg := Config{
		WorkingCapitalFinancing: WorkingCapitalFinancing{Activate: true, CoveragePercent: 100, TermMonths: 1},
		ReceivablesAnticipation: ReceivablesAnticipation{Activate: true, AnticipatedPercent: 100, Days: 1},
		TermRenegotiation:       TermRenegotiation{Activate: true, AdditionalDays: 90, ParticipationPercent: 100},
	}
	b := testBaseline()
	b.Impact = 1000
	res, err := NewEvaluator(nil, nil).Evaluate(b, cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, c := range res.Alternatives {
		if c.EffectivenessPercent > 100 {
			t.Errorf("%v effectiveness %v exceeds 100", c.Levers, c.EffectivenessPercent)
		}
	}
}

func TestEvaluateSkipsSubsetsWithFailedLever(t *testing.T) {
	cfg := Config{
		PriceAdjustment:   PriceAdjustment{Activate: true, IncreasePercent: -5},
		TermRenegotiation: TermRenegotiation{Activate: true, AdditionalDays: 15, ParticipationPercent: 60},
	}
	res, err := NewEvaluator(nil, nil).Evaluate(testBaseline(), cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Lever != "priceAdjustment" {
		t.Errorf("Failures = %+v", res.Failures)
	}
	if len(res.Skipped) != 2 {
		t.Errorf("expected 2 skipped subsets, got %d", len(res.Skipped))
	}
	if diff := cmp.Diff([]string{"termRenegotiation"}, res.Optimal.Levers); diff != "" {
		t.Errorf("Optimal.Levers mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateAllLeversFail(t *testing.T) {
	cfg := Config{PriceAdjustment: PriceAdjustment{Activate: true}}
	_, err := NewEvaluator(nil, nil).Evaluate(testBaseline(), cfg)
	if !errors.Is(err, simerr.ErrCalculation) {
		t.Fatalf("expected calculation error, got %v", err)
	}
}

func TestUnscoredCombinationsRankLast(t *testing.T) {
	cfg := Config{
		// no anticipated receivables when everything is sold in cash
		ReceivablesAnticipation: ReceivablesAnticipation{Activate: true, AnticipatedPercent: 50, Days: 30},
		WorkingCapitalFinancing: WorkingCapitalFinancing{Activate: true, CoveragePercent: 10, TermMonths: 6},
	}
	b := testBaseline()
	b.PercTerm = 0
	res, err := NewEvaluator(nil, nil).Evaluate(b, cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	last := res.Alternatives[len(res.Alternatives)-1]
	if last.Scored {
		t.Errorf("expected unscored combination last, got %+v", last)
	}
	if !res.Optimal.Scored {
		t.Errorf("expected scored optimum")
	}
}

func TestMemberFactor(t *testing.T) {
	in := DefaultInteractions()
	pair := uint(1<<LeverPriceAdjustment | 1<<LeverProductMix)
	if got := in.MemberFactor(LeverPriceAdjustment, pair); math.Abs(got-0.8) > 1e-12 {
		t.Errorf("pair factor = %v, expected 0.8", got)
	}
	trio := uint(1<<LeverPriceAdjustment | 1<<LeverTermRenegotiation | 1<<LeverReceivablesAnticipation)
	expected := math.Sqrt(0.95 * 0.90)
	if got := in.MemberFactor(LeverPriceAdjustment, trio); math.Abs(got-expected) > 1e-12 {
		t.Errorf("trio factor = %v, expected %v", got, expected)
	}
	if got := in.MemberFactor(LeverProductMix, 1<<LeverProductMix); got != 1 {
		t.Errorf("lone factor = %v, expected 1", got)
	}
	if got := in.Coefficient(LeverTermRenegotiation, LeverProductMix); got != 0.9 {
		t.Errorf("unlisted pair = %v, expected 0.9", got)
	}
}

func TestNewInteractionsOverrides(t *testing.T) {
	in, err := NewInteractions(0.9, []Override{{A: "productMix", B: "paymentIncentives", Factor: 0.75}})
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Coefficient(LeverPaymentIncentives, LeverProductMix); got != 0.75 {
		t.Errorf("override not symmetric: %v", got)
	}

	bad := []Override{
		{A: "productMix", B: "productMix", Factor: 0.8},
		{A: "nope", B: "productMix", Factor: 0.8},
		{A: "productMix", B: "paymentIncentives", Factor: 0.5},
	}
	for _, o := range bad {
		if _, err := NewInteractions(0.9, []Override{o}); !errors.Is(err, simerr.ErrValidation) {
			t.Errorf("override %+v: expected validation error, got %v", o, err)
		}
	}
}
