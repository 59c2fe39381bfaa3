// Package sector defines the sector registry: per-sector effective tax rates,
// special reductions, and optional sector-specific phase-in schedules.
package sector

import (
	"fmt"
	"sort"

	"github.com/iwvelando/split-payment-forecast/internal/schedule"
	"github.com/iwvelando/split-payment-forecast/internal/simerr"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

// Sector describes the tax treatment of one economic sector.
type Sector struct {
	Name             string            `json:"name" yaml:"name"`
	EffectiveRate    float64           `json:"effectiveRate" yaml:"effectiveRate"`
	SpecialReduction float64           `json:"specialReduction" yaml:"specialReduction"`
	HasOwnSchedule   bool              `json:"hasOwnSchedule" yaml:"hasOwnSchedule"`
	OwnSchedule      schedule.Schedule `json:"ownSchedule,omitempty" yaml:"ownSchedule,omitempty"`
}

// Registry maps sector codes to their tax treatment.
type Registry map[string]Sector

// Default returns the built-in sectors of the reference jurisdiction. Sectors
// with a special reduction pay the standard rate reduced by that fraction.
func Default() Registry {
	reduced := func(reduction float64) float64 {
		return constants.DefaultEffectiveRate * (1 - reduction)
	}
	return Registry{
		"comercio":    {Name: "Comércio", EffectiveRate: constants.DefaultEffectiveRate},
		"industria":   {Name: "Indústria", EffectiveRate: constants.DefaultEffectiveRate},
		"servicos":    {Name: "Serviços", EffectiveRate: constants.DefaultEffectiveRate},
		"transporte":  {Name: "Transporte", EffectiveRate: constants.DefaultEffectiveRate},
		"construcao":  {Name: "Construção Civil", EffectiveRate: constants.DefaultEffectiveRate},
		"agronegocio": {Name: "Agronegócio", EffectiveRate: reduced(0.60), SpecialReduction: 0.60},
		"saude":       {Name: "Saúde", EffectiveRate: reduced(0.60), SpecialReduction: 0.60},
		"educacao":    {Name: "Educação", EffectiveRate: reduced(0.60), SpecialReduction: 0.60},
	}
}

// Get returns the sector for code.
func (r Registry) Get(code string) (Sector, bool) {
	s, ok := r[code]
	return s, ok
}

// Codes returns all sector codes sorted.
func (r Registry) Codes() []string {
	codes := make([]string, 0, len(r))
	for code := range r {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ScheduleFor implements schedule.SectorSchedules.
func (r Registry) ScheduleFor(code string) (schedule.Schedule, bool) {
	s, ok := r[code]
	if !ok || !s.HasOwnSchedule || len(s.OwnSchedule) == 0 {
		return nil, false
	}
	return s.OwnSchedule, true
}

// EffectiveRate returns the sector's rate, or fallback for unknown sectors.
func (r Registry) EffectiveRate(code string, fallback float64) float64 {
	if s, ok := r[code]; ok {
		return s.EffectiveRate
	}
	return fallback
}

// Upsert validates and stores a sector.
func (r Registry) Upsert(code string, s Sector) error {
	if code == "" {
		return simerr.NewValidation("sectorRegistry", nil, "sector code cannot be empty")
	}
	if err := s.validate(code); err != nil {
		return err
	}
	s.OwnSchedule = s.OwnSchedule.Clone()
	r[code] = s
	return nil
}

// Remove deletes a sector, reporting whether it existed.
func (r Registry) Remove(code string) bool {
	_, ok := r[code]
	delete(r, code)
	return ok
}

// Clone returns an independent copy including the own schedules.
func (r Registry) Clone() Registry {
	if r == nil {
		return nil
	}
	out := make(Registry, len(r))
	for code, s := range r {
		s.OwnSchedule = s.OwnSchedule.Clone()
		out[code] = s
	}
	return out
}

// Validate checks every sector in code order and returns the first failure.
func (r Registry) Validate() error {
	for _, code := range r.Codes() {
		if err := r[code].validate(code); err != nil {
			return err
		}
	}
	return nil
}

func (s Sector) validate(code string) error {
	field := func(name string) string {
		return fmt.Sprintf("sectorRegistry.%s.%s", code, name)
	}
	if s.EffectiveRate < 0 || s.EffectiveRate > 1 {
		return simerr.NewValidation(field("effectiveRate"), s.EffectiveRate, "must be within [0, 1]")
	}
	if s.SpecialReduction < 0 || s.SpecialReduction > 1 {
		return simerr.NewValidation(field("specialReduction"), s.SpecialReduction, "must be within [0, 1]")
	}
	if s.HasOwnSchedule {
		if len(s.OwnSchedule) == 0 {
			return simerr.NewValidation(field("ownSchedule"), nil, "required when hasOwnSchedule is set")
		}
		if err := s.OwnSchedule.Validate(); err != nil {
			return fmt.Errorf("sector %s: %w", code, err)
		}
	}
	return nil
}
