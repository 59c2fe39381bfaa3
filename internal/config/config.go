// Package config defines the configuration of split-payment-forecast and
// includes functions for loading it and deriving component settings from it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/iwvelando/split-payment-forecast/internal/kvstore"
	"github.com/iwvelando/split-payment-forecast/internal/mitigation"
	"github.com/iwvelando/split-payment-forecast/internal/sector"
	"github.com/iwvelando/split-payment-forecast/internal/simulation"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for split-payment-forecast.
type Configuration struct {
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Output      OutputConfig      `yaml:"output,omitempty"`
	Persistence PersistenceConfig `yaml:"persistence,omitempty"`
	History     HistoryConfig     `yaml:"history,omitempty"`
	Calculation CalculationConfig `yaml:"calculation,omitempty"`
	Sectors     SectorsConfig     `yaml:"sectors,omitempty"`
	Mitigation  MitigationConfig  `yaml:"mitigation,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv, json
}

// PersistenceConfig selects where the simulator state is saved.
type PersistenceConfig struct {
	Backend string `yaml:"backend,omitempty"` // memory, file, sqlite
	Path    string `yaml:"path,omitempty"`
	Key     string `yaml:"key,omitempty"`
}

// HistoryConfig bounds undo/redo.
type HistoryConfig struct {
	Capacity int `yaml:"capacity,omitempty"`
}

// CalculationConfig holds the calculation knobs that are not part of the
// simulated state.
type CalculationConfig struct {
	MonthlyDiscountRate float64 `yaml:"monthlyDiscountRate,omitempty"`
	FallbackRetention   float64 `yaml:"fallbackRetention,omitempty"`
	SensitivityDelta    float64 `yaml:"sensitivityDelta,omitempty"`
	SensitivityCap      float64 `yaml:"sensitivityCap,omitempty"`
}

// SectorsConfig points at an optional sector registry to import at start-up.
type SectorsConfig struct {
	File string `yaml:"file,omitempty"`
}

// MitigationConfig tunes the lever interaction table.
type MitigationConfig struct {
	DefaultInteraction float64               `yaml:"defaultInteraction,omitempty"`
	Interactions       []mitigation.Override `yaml:"interactions,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("persistence.backend", constants.BackendFile)
	v.SetDefault("persistence.path", "")
	v.SetDefault("persistence.key", constants.DefaultStateKey)
	v.SetDefault("history.capacity", constants.DefaultHistoryCapacity)
	v.SetDefault("calculation.monthlyDiscountRate", constants.DefaultMonthlyDiscountRate)
	v.SetDefault("calculation.fallbackRetention", constants.DefaultFallbackRetention)
	v.SetDefault("calculation.sensitivityDelta", constants.DefaultSensitivityDelta)
	v.SetDefault("calculation.sensitivityCap", constants.DefaultSensitivityCap)
	v.SetDefault("sectors.file", "")
	v.SetDefault("mitigation.defaultInteraction", constants.DefaultInteractionFactor)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration used when no file is given. Environment
// overrides still apply.
func Default() (*Configuration, error) {
	var configuration Configuration
	if err := newViper().Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	return &configuration, nil
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. A .env file next to it is loaded into the environment
// first, without replacing variables that are already set.
func LoadConfiguration(configPath string) (*Configuration, error) {
	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading env file %s, %s", envFile, err)
	}

	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	var configuration Configuration
	err := v.Unmarshal(&configuration)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	return &configuration, nil
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	cv := validation.ConfigValidator{
		Backend:         c.Persistence.Backend,
		HistoryCapacity: c.History.Capacity,
		Fractions: map[string]float64{
			"calculation.monthlyDiscountRate": c.Calculation.MonthlyDiscountRate,
			"calculation.fallbackRetention":   c.Calculation.FallbackRetention,
		},
		InteractionFactors: map[string]float64{
			"default": c.Mitigation.DefaultInteraction,
		},
	}
	for _, o := range c.Mitigation.Interactions {
		cv.InteractionFactors[o.A+"/"+o.B] = o.Factor
	}

	warnings := cv.ValidateAll()
	if c.Output.Format != "" {
		if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	return warnings
}

// KeyValueOptions returns the persistence backend options. Unknown backends
// select memory.
func (c *Configuration) KeyValueOptions() kvstore.Options {
	backend := strings.ToLower(c.Persistence.Backend)
	if validation.ValidateBackend(backend) != "" {
		backend = constants.BackendMemory
	}
	return kvstore.Options{Backend: backend, Path: c.Persistence.Path}
}

// StateKey returns the key holding the saved state.
func (c *Configuration) StateKey() string {
	if c.Persistence.Key == "" {
		return constants.DefaultStateKey
	}
	return c.Persistence.Key
}

// HistoryCapacity returns the undo/redo capacity.
func (c *Configuration) HistoryCapacity() int {
	if c.History.Capacity < 1 {
		return constants.DefaultHistoryCapacity
	}
	return c.History.Capacity
}

// SimulationSettings builds the engine settings, including the lever
// interaction table.
func (c *Configuration) SimulationSettings() (simulation.Settings, error) {
	settings := simulation.Settings{
		MonthlyDiscountRate: c.Calculation.MonthlyDiscountRate,
		FallbackRetention:   c.Calculation.FallbackRetention,
		SensitivityDelta:    c.Calculation.SensitivityDelta,
		SensitivityCap:      c.Calculation.SensitivityCap,
	}
	if validation.ValidateFraction("", settings.MonthlyDiscountRate) != "" {
		settings.MonthlyDiscountRate = constants.DefaultMonthlyDiscountRate
	}
	if validation.ValidateFraction("", settings.FallbackRetention) != "" {
		settings.FallbackRetention = constants.DefaultFallbackRetention
	}

	fallback := c.Mitigation.DefaultInteraction
	if fallback == 0 {
		fallback = constants.DefaultInteractionFactor
	}
	interactions, err := mitigation.NewInteractions(fallback, c.Mitigation.Interactions)
	if err != nil {
		return simulation.Settings{}, fmt.Errorf("mitigation interactions: %w", err)
	}
	settings.Interactions = interactions
	return settings, nil
}

// SectorRegistry loads the configured sector file, or returns false when none
// is configured.
func (c *Configuration) SectorRegistry() (sector.Registry, bool, error) {
	if c.Sectors.File == "" {
		return nil, false, nil
	}
	reg, err := sector.Load(c.Sectors.File)
	if err != nil {
		return nil, false, fmt.Errorf("loading sectors from %s: %w", c.Sectors.File, err)
	}
	return reg, true, nil
}
