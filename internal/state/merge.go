package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

// mergeSection overlays partial onto section field by field. The section is
// round-tripped through its JSON form so partial uses the same field names
// as saved state.
func mergeSection(st *model.State, section model.Section, partial map[string]any) error {
	partial, err := normalizePartial(section, partial)
	if err != nil {
		return err
	}

	current, _ := st.Get(section)
	base, err := sectionMap(current)
	if err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	for k, v := range partial {
		base[k] = v
	}

	data, err := json.Marshal(base)
	if err != nil {
		return simerr.NewValidation(string(section), nil, fmt.Sprintf("unsupported value: %v", err))
	}
	return decodeSection(st, section, data, true)
}

// sectionMap returns the JSON object form of a section value.
func sectionMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any)
	if bytes.Equal(data, []byte("null")) {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// normalizePartial applies the derived-field rules: percTerm is stored as
// 1 - percCash, and a lone monthly or annual revenue implies the other.
func normalizePartial(section model.Section, partial map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(partial))
	for k, v := range partial {
		out[k] = v
	}

	switch section {
	case model.SectionCashCycle:
		raw, ok := out["percTerm"]
		if !ok {
			break
		}
		delete(out, "percTerm")
		term, err := number("cashCycle.percTerm", raw)
		if err != nil {
			return nil, err
		}
		if term < 0 || term > 1 {
			return nil, simerr.NewValidation("cashCycle.percTerm", term, "must be within [0, 1]")
		}
		cash := 1 - term
		if rawCash, ok := out["percCash"]; ok {
			given, err := number("cashCycle.percCash", rawCash)
			if err != nil {
				return nil, err
			}
			if math.Abs(given-cash) > 1e-9 {
				return nil, simerr.NewValidation("cashCycle.percTerm", term, "percCash + percTerm must equal 1")
			}
		}
		out["percCash"] = cash

	case model.SectionCompany:
		rawMonthly, hasMonthly := out["monthlyRevenue"]
		rawAnnual, hasAnnual := out["annualRevenue"]
		switch {
		case hasMonthly && !hasAnnual:
			monthly, err := number("company.monthlyRevenue", rawMonthly)
			if err != nil {
				return nil, err
			}
			out["annualRevenue"] = monthly * constants.MonthsPerYear
		case hasAnnual && !hasMonthly:
			annual, err := number("company.annualRevenue", rawAnnual)
			if err != nil {
				return nil, err
			}
			out["monthlyRevenue"] = annual / constants.MonthsPerYear
		}
	}
	return out, nil
}

func number(field string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, simerr.NewValidation(field, v, "must be a number")
}

// decodeSection replaces section with the decoded data. strict rejects
// unknown fields.
func decodeSection(st *model.State, section model.Section, data []byte, strict bool) error {
	var target any
	switch section {
	case model.SectionCompany:
		target = &st.Company
	case model.SectionCashCycle:
		target = &st.CashCycle
	case model.SectionFiscalParameters:
		target = &st.FiscalParameters
	case model.SectionSimulationParameters:
		target = &st.SimulationParameters
	case model.SectionFinancialParameters:
		target = &st.FinancialParameters
	case model.SectionImplementationSchedule:
		st.ImplementationSchedule = nil
		target = &st.ImplementationSchedule
	case model.SectionSectorRegistry:
		st.SectorRegistry = nil
		target = &st.SectorRegistry
	case model.SectionSimulationResults:
		st.SimulationResults = nil
		target = &st.SimulationResults
	case model.SectionInterfaceState:
		target = &st.InterfaceState
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(target); err != nil {
		return fieldError(section, err)
	}
	return nil
}

// fieldError converts a JSON decoding failure into a validation error naming
// the offending field.
func fieldError(section model.Section, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := string(section)
		if typeErr.Field != "" {
			field += "." + typeErr.Field
		}
		return simerr.NewValidation(field, typeErr.Value, fmt.Sprintf("expected %s", typeErr.Type))
	}
	return simerr.NewValidation(string(section), nil, err.Error())
}
