package schedule

// SectorSchedules exposes sector-specific phase-in overrides.
type SectorSchedules interface {
	ScheduleFor(sectorCode string) (Schedule, bool)
}

// Resolver picks the retention fraction for a year, preferring a sector's own
// schedule over the global one.
type Resolver struct {
	global   Schedule
	sectors  SectorSchedules
	fallback float64
	explicit bool
}

// NewResolver constructs a Resolver. A negative fallback selects the earliest
// configured fraction of whichever schedule is consulted.
func NewResolver(global Schedule, sectors SectorSchedules, fallback float64) *Resolver {
	return &Resolver{
		global:   global.Clone(),
		sectors:  sectors,
		fallback: fallback,
		explicit: fallback >= 0,
	}
}

// Schedule returns the schedule that applies to sectorCode.
func (r *Resolver) Schedule(sectorCode string) Schedule {
	if r.sectors != nil && sectorCode != "" {
		if own, ok := r.sectors.ScheduleFor(sectorCode); ok && len(own) > 0 {
			return own
		}
	}
	return r.global
}

// Rate returns the retention fraction for year. Missing years never fail.
func (r *Resolver) Rate(year int, sectorCode string) float64 {
	fraction, _ := r.RateExplicit(year, sectorCode)
	return fraction
}

// RateExplicit is Rate plus whether the fraction came from an explicit entry.
func (r *Resolver) RateExplicit(year int, sectorCode string) (float64, bool) {
	s := r.Schedule(sectorCode)
	fallback := r.fallback
	if !r.explicit {
		fallback = s.Earliest()
	}
	return s.Lookup(year, fallback)
}
