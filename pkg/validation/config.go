// Package validation provides configuration validation utilities.
package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

// ValidateBackend returns a warning when name is not a known persistence
// backend. Unknown backends fall back to memory.
func ValidateBackend(name string) string {
	switch strings.ToLower(name) {
	case "", constants.BackendMemory, constants.BackendFile, constants.BackendSQLite:
		return ""
	}
	return fmt.Sprintf("Unknown persistence backend '%s' - falling back to %s", name, constants.BackendMemory)
}

// ValidateFraction returns a warning when value lies outside [0, 1].
func ValidateFraction(field string, value float64) string {
	if math.IsNaN(value) || value < 0 || value > 1 {
		return fmt.Sprintf("%s must be within [0, 1], got %v", field, value)
	}
	return ""
}

// ValidateHistoryCapacity returns a warning when capacity cannot hold at least
// one snapshot.
func ValidateHistoryCapacity(capacity int) string {
	if capacity < 1 {
		return fmt.Sprintf("History capacity %d is below 1 - using %d", capacity, constants.DefaultHistoryCapacity)
	}
	return ""
}

// ConfigValidator collects the values checked at start-up.
type ConfigValidator struct {
	Backend            string
	HistoryCapacity    int
	Fractions          map[string]float64
	InteractionFactors map[string]float64
}

// ValidateAll validates the entire configuration and returns warnings
func (cv *ConfigValidator) ValidateAll() []string {
	var warnings []string
	add := func(w string) {
		if w != "" {
			warnings = append(warnings, w)
		}
	}

	add(ValidateBackend(cv.Backend))
	add(ValidateHistoryCapacity(cv.HistoryCapacity))
	for _, field := range sortedKeys(cv.Fractions) {
		add(ValidateFraction(field, cv.Fractions[field]))
	}
	for _, pair := range sortedKeys(cv.InteractionFactors) {
		f := cv.InteractionFactors[pair]
		if math.IsNaN(f) || f < 0.7 || f > 1 {
			add(fmt.Sprintf("Interaction factor for %s must be within [0.7, 1], got %v", pair, f))
		}
	}
	return warnings
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
