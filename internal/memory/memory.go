// Package memory renders the calculation memory: a step-by-step pt-BR trace
// of every formula evaluated for a simulated year. The trace is built from the
// projection's own results, so the displayed figures are the computed ones.
package memory

import (
	"fmt"
	"strings"

	"github.com/iwvelando/split-payment-forecast/internal/credit"
	"github.com/iwvelando/split-payment-forecast/internal/cycle"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/projection"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/format"
)

// Generator renders calculation memories.
type Generator struct {
	projector *projection.Projector
}

// NewGenerator creates a Generator evaluating years with projector.
func NewGenerator(projector *projection.Projector) *Generator {
	return &Generator{projector: projector}
}

// Year evaluates and renders one year.
func (g *Generator) Year(p projection.Params, year int) (string, error) {
	yr, err := g.projector.Year(p, year)
	if err != nil {
		return "", err
	}
	return Render(p, yr), nil
}

// All renders every year of the window.
func (g *Generator) All(p projection.Params) (map[int]string, error) {
	out := make(map[int]string, len(p.Years()))
	for _, year := range p.Years() {
		text, err := g.Year(p, year)
		if err != nil {
			return nil, err
		}
		out[year] = text
	}
	return out, nil
}

var policyNames = map[credit.Policy]string{
	credit.PolicyImmediate: "imediata",
	credit.PolicyMonthly:   "mensal",
	credit.PolicyQuarterly: "trimestral",
}

// Render formats the trace of an already evaluated year. The output depends
// only on its arguments.
func Render(p projection.Params, yr model.YearResult) string {
	var b strings.Builder
	c := yr.Cycle
	line := func(layout string, args ...any) {
		fmt.Fprintf(&b, layout+"\n", args...)
	}

	line("=== MEMÓRIA DE CÁLCULO - %d ===", yr.Year)
	if p.Company != "" {
		line("Empresa: %s", p.Company)
	}
	if p.Sector != "" {
		line("Setor: %s", p.Sector)
	}
	line("")

	line("1. PARÂMETROS")
	line("Faturamento mensal: %s", format.Currency(yr.MonthlyRevenue))
	if yr.Year != p.StartYear {
		line("  %s × (1 + %s)^%d = %s", format.Currency(p.MonthlyRevenue), format.Percent(p.AnnualGrowth, 2),
			yr.Year-p.StartYear, format.Currency(yr.MonthlyRevenue))
	}
	line("Alíquota efetiva: %s", format.Percent(yr.EffectiveRate, 2))
	source := "cronograma"
	if !yr.ExplicitSchedule {
		source = "valor padrão"
	}
	if p.IgnoreSplitPayment {
		source = "Split Payment desconsiderado"
	}
	line("Percentual de implementação: %s (%s)", format.Percent(yr.RetentionFraction, 2), source)
	line("Vendas a prazo: %s", format.Percent(p.PercTerm, 2))
	line("")

	line("2. CICLO FINANCEIRO TRADICIONAL")
	line("PMR + PME - PMP = %s + %s - %s = %s",
		format.Number(p.PMR, 2), format.Number(p.PME, 2), format.Number(p.PMP, 2), format.Days(c.TraditionalCycle))
	line("")

	line("3. IMPACTO DO SPLIT PAYMENT")
	line("Débito tributário: %s × %s = %s",
		format.Currency(yr.MonthlyRevenue), format.Percent(yr.EffectiveRate, 2), format.Currency(c.TotalTaxDebit))
	line("Imposto retido: %s × %s = %s",
		format.Currency(c.TotalTaxDebit), format.Percent(yr.RetentionFraction, 2), format.Currency(c.RetainedTax))
	if p.PercTerm > 0 {
		line("Proporção afetada: %s", format.Percent(c.AffectedProportion, 2))
	} else {
		line("Proporção afetada: %s (somente vendas à vista)", format.Percent(c.AffectedProportion, 2))
	}
	if c.TotalTaxDebit == 0 {
		line("Impacto em dias: sem débito tributário = %s", format.Days(c.DaysImpact))
	} else {
		line("Impacto em dias: %s × (%s / %s) × %s = %s",
			format.Number(p.PMR, 2), format.Currency(c.RetainedTax), format.Currency(c.TotalTaxDebit),
			format.Percent(c.AffectedProportion, 2), format.Days(c.DaysImpact))
	}
	line("Ciclo ajustado: %s + %s = %s",
		format.Signed(c.TraditionalCycle, 2), format.Signed(c.DaysImpact, 2), format.Days(c.AdjustedCycle))
	line("")

	daily := cycle.DailyRevenue(yr.MonthlyRevenue)
	line("4. NECESSIDADE DE CAPITAL DE GIRO")
	line("Faturamento diário: %s / %d = %s", format.Currency(yr.MonthlyRevenue), constants.DaysPerMonth, format.Currency(daily))
	line("NCG atual: %s × %s = %s", format.Currency(daily), format.Days(c.TraditionalCycle), format.Currency(c.CurrentNeed))
	line("NCG ajustada: %s × %s = %s", format.Currency(daily), format.Days(c.AdjustedCycle), format.Currency(c.AdjustedNeed))
	line("Variação: %s - %s = %s", format.Currency(c.AdjustedNeed), format.Currency(c.CurrentNeed), format.Currency(c.Delta))
	line("")

	r := yr.Retention
	im := yr.Impact
	line("5. COMPENSAÇÃO DE CRÉDITOS")
	line("Política: %s", policyNames[r.Policy])
	line("Créditos disponíveis: %s", format.Currency(r.AvailableCredits))
	line("Créditos consumidos: mín(%s; %s) = %s",
		format.Currency(r.AvailableCredits), format.Currency(r.TaxDebit), format.Currency(r.ConsumedCredits))
	if r.Policy == credit.PolicyImmediate {
		line("Retenção efetiva: %s - %s = %s",
			format.Currency(r.TaxDebit), format.Currency(r.ConsumedCredits), format.Currency(r.EffectiveRetention))
	} else {
		line("Retenção efetiva: %s (créditos compensados em %d dias)", format.Currency(r.EffectiveRetention), im.DeferralDays)
	}
	line("Créditos remanescentes: %s", format.Currency(r.RemainingCredits))
	line("")

	line("6. IMPACTO NO FLUXO DE CAIXA")
	line("Impacto imediato: %s", format.Currency(im.ImmediateImpact))
	line("Benefício futuro: %s", format.Currency(im.FutureBenefit))
	line("Fator de desconto: (1 + %s)^(%d/%d) = %s",
		format.Percent(p.MonthlyDiscount, 2), im.DeferralDays, constants.DaysPerMonth, format.Number(im.DiscountFactor, 4))
	line("Impacto líquido a valor presente: %s - %s / %s = %s",
		format.Currency(im.ImmediateImpact), format.Currency(im.FutureBenefit), format.Number(im.DiscountFactor, 4),
		format.Currency(im.NetPresentImpact))

	return b.String()
}
