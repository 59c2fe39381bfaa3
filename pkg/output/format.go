// Package output provides utilities for formatting and displaying simulation results.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iwvelando/split-payment-forecast/internal/mitigation"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/sensitivity"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func printer() *message.Printer {
	return message.NewPrinter(language.BrazilianPortuguese)
}

// Render writes v in the named format. v must be *model.SimulationResults,
// *mitigation.Result or *sensitivity.Matrix.
func Render(w io.Writer, outputFormat string, v any) error {
	if outputFormat == constants.OutputFormatJSON {
		return JSONFormat(w, v)
	}
	csvOut := outputFormat == constants.OutputFormatCSV
	switch r := v.(type) {
	case *model.SimulationResults:
		if csvOut {
			return CsvFormat(w, r)
		}
		PrettyFormat(w, r)
	case *mitigation.Result:
		if csvOut {
			return CsvStrategies(w, r)
		}
		PrettyStrategies(w, r)
	case *sensitivity.Matrix:
		if csvOut {
			return CsvSensitivity(w, r)
		}
		PrettySensitivity(w, r)
	default:
		return fmt.Errorf("unsupported result type %T", v)
	}
	return nil
}

// JSONFormat writes v as indented JSON.
func JSONFormat(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, results *model.SimulationResults) {
	p := printer()
	_, _ = p.Fprintf(w, "--- Simulação Split Payment (%d anos) ---\n", len(results.Years))
	_, _ = fmt.Fprintf(w, "Ano  | Retenção | Ciclo ajustado | NCG adicional     | Retenção efetiva  | Impacto VP\n")
	_, _ = fmt.Fprintf(w, "____ | ________ | ______________ | _________________ | _________________ | __________\n")
	for _, yr := range results.Years {
		_, _ = fmt.Fprintf(w, "%d | %s | %s | %s | %s | %s\n",
			yr.Year,
			format.Percent(yr.RetentionFraction, 2),
			format.Days(yr.Cycle.AdjustedCycle),
			format.Currency(yr.Cycle.Delta),
			format.Currency(yr.Retention.EffectiveRetention),
			format.Currency(yr.Impact.NetPresentImpact),
		)
	}

	s := results.Summary
	_, _ = fmt.Fprintf(w, "\nImposto retido total: %s\n", format.Currency(s.TotalRetainedTax))
	_, _ = fmt.Fprintf(w, "Retenção efetiva total: %s\n", format.Currency(s.TotalEffectiveRetention))
	_, _ = fmt.Fprintf(w, "Maior NCG adicional: %s em %d\n", format.Currency(s.PeakWorkingCapitalDelta), s.PeakYear)
	_, _ = fmt.Fprintf(w, "Ciclo ajustado médio: %s\n", format.Days(s.AverageAdjustedCycle))
	for _, warning := range results.Warnings {
		_, _ = fmt.Fprintf(w, "Aviso: %s\n", warning)
	}
}

// CsvFormat outputs the yearly series in comma-separated value format.
func CsvFormat(w io.Writer, results *model.SimulationResults) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"year", "retention", "monthlyRevenue", "taxDebit", "retainedTax",
		"traditionalCycle", "adjustedCycle", "workingCapitalDelta", "effectiveRetention", "netPresentImpact"})
	for _, yr := range results.Years {
		_ = cw.Write([]string{
			strconv.Itoa(yr.Year),
			number(yr.RetentionFraction, 4),
			number(yr.MonthlyRevenue, 2),
			number(yr.Cycle.TotalTaxDebit, 2),
			number(yr.Cycle.RetainedTax, 2),
			number(yr.Cycle.TraditionalCycle, 2),
			number(yr.Cycle.AdjustedCycle, 2),
			number(yr.Cycle.Delta, 2),
			number(yr.Retention.EffectiveRetention, 2),
			number(yr.Impact.NetPresentImpact, 2),
		})
	}
	cw.Flush()
	return cw.Error()
}

// PrettyStrategies outputs the lever results and the combination ranking.
func PrettyStrategies(w io.Writer, r *mitigation.Result) {
	p := printer()
	_, _ = fmt.Fprintf(w, "--- Estratégias de mitigação (impacto base %s) ---\n", format.Currency(r.Baseline.Impact))
	for _, l := range r.Levers {
		_, _ = fmt.Fprintf(w, "%s: efetividade %s, custo %s\n",
			l.Lever, format.Number(l.EffectivenessPercent, 2)+"%", format.Currency(l.Cost))
	}
	for _, f := range r.Failures {
		_, _ = fmt.Fprintf(w, "Falha em %s: %s\n", f.Lever, f.Reason)
	}
	if len(r.Alternatives) == 0 {
		_, _ = fmt.Fprintf(w, "Nenhuma alavanca ativa.\n")
		return
	}

	_, _ = fmt.Fprintf(w, "\n#  | Combinação | Efetividade | Custo | Custo/ponto\n")
	for i, c := range r.Alternatives {
		score := "-"
		if c.Scored {
			score = format.Currency(c.Score)
		}
		_, _ = p.Fprintf(w, "%d | %s | %s | %s | %s\n", i+1, strings.Join(c.Levers, " + "),
			format.Number(c.EffectivenessPercent, 2)+"%", format.Currency(c.Cost), score)
	}
	if len(r.Skipped) > 0 {
		_, _ = p.Fprintf(w, "%d combinações ignoradas\n", len(r.Skipped))
	}
	_, _ = fmt.Fprintf(w, "\nEstratégia ótima: %s\n", strings.Join(r.Optimal.Levers, " + "))
}

// CsvStrategies outputs the combination ranking.
func CsvStrategies(w io.Writer, r *mitigation.Result) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"rank", "levers", "effectivenessPercent", "cost", "score"})
	for i, c := range r.Alternatives {
		score := ""
		if c.Scored {
			score = number(c.Score, 4)
		}
		_ = cw.Write([]string{strconv.Itoa(i + 1), strings.Join(c.Levers, "+"),
			number(c.EffectivenessPercent, 2), number(c.Cost, 2), score})
	}
	cw.Flush()
	return cw.Error()
}

// PrettySensitivity outputs the index matrix, one sector per row.
func PrettySensitivity(w io.Writer, m *sensitivity.Matrix) {
	p := printer()
	_, _ = p.Fprintf(w, "--- Sensibilidade (variação de %.0f%%) ---\n", m.Delta*100)
	header := []string{"Setor"}
	for _, param := range m.Parameters {
		header = append(header, string(param))
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, " | "))
	for i, code := range m.Sectors {
		row := []string{code}
		for j := range m.Parameters {
			cell := format.Number(m.At(i, j), 2)
			if m.Cells[i][j].Saturated {
				cell += "*"
			}
			row = append(row, cell)
		}
		_, _ = fmt.Fprintln(w, strings.Join(row, " | "))
	}
	for _, s := range m.Summaries {
		_, _ = fmt.Fprintf(w, "%s: média %s, desvio %s, máximo %s (%s)\n", s.Parameter,
			format.Number(s.Mean, 2), format.Number(s.StdDev, 2), format.Number(s.Max, 2), s.MaxSector)
	}
}

// CsvSensitivity outputs one row per (sector, parameter) cell.
func CsvSensitivity(w io.Writer, m *sensitivity.Matrix) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"sector", "parameter", "baselineDelta", "perturbedDelta", "index", "saturated"})
	for _, row := range m.Cells {
		for _, c := range row {
			_ = cw.Write([]string{c.Sector, string(c.Parameter), number(c.BaselineDelta, 2),
				number(c.PerturbedDelta, 2), number(c.Index, 4), strconv.FormatBool(c.Saturated)})
		}
	}
	cw.Flush()
	return cw.Error()
}

// PrettyMemory outputs calculation memories in year order.
func PrettyMemory(w io.Writer, years []int, memories map[int]string) {
	for i, year := range years {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprint(w, memories[year])
	}
}

func number(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}
