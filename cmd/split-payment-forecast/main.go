package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/iwvelando/split-payment-forecast/internal/config"
	"github.com/iwvelando/split-payment-forecast/internal/kvstore"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/sector"
	"github.com/iwvelando/split-payment-forecast/internal/simulation"
	"github.com/iwvelando/split-payment-forecast/internal/state"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	zc.Level = zap.NewAtomicLevelAt(zapLevel)

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}
		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		zc.OutputPaths = []string{loggingConfig.OutputFile}
		zc.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	} else {
		// stdout carries the results.
		zc.OutputPaths = []string{"stderr"}
	}

	return zc.Build()
}

// app holds the components shared by every subcommand.
type app struct {
	configPath   string
	logLevel     string
	outputFormat string

	conf   *config.Configuration
	logger *zap.Logger
	kv     kvstore.KeyValue
	store  *state.Store
	engine *simulation.Engine
}

func (a *app) loadConfiguration(explicit bool) (*config.Configuration, error) {
	if !explicit {
		if _, err := os.Stat(a.configPath); errors.Is(err, fs.ErrNotExist) {
			return config.Default()
		}
	}
	return config.LoadConfiguration(a.configPath)
}

// setup builds the components from the configuration and restores the saved
// state.
func (a *app) setup(cmd *cobra.Command) error {
	conf, err := a.loadConfiguration(cmd.Flags().Changed("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", a.configPath, err)
	}
	a.conf = conf

	logger, err := initializeLogger(conf.Logging, a.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	if a.outputFormat == "" {
		a.outputFormat = conf.Output.Format
	}
	if a.outputFormat == "" {
		a.outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(a.outputFormat); err != nil {
		return err
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	settings, err := conf.SimulationSettings()
	if err != nil {
		return err
	}
	a.engine = simulation.NewEngine(logger, settings)

	kv, err := kvstore.Open(conf.KeyValueOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to open persistence backend: %w", err)
	}
	a.kv = kv
	a.store = state.New(logger,
		state.WithKeyValue(kv, conf.StateKey()),
		state.WithHistoryCapacity(conf.HistoryCapacity()),
	)
	a.store.Load(cmd.Context())

	reg, ok, err := conf.SectorRegistry()
	if err != nil {
		return err
	}
	if ok {
		if err := a.replaceSectors(reg); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown() {
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.logger.Warn("failed to close persistence backend",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) save(ctx context.Context) {
	if !a.store.Save(ctx) {
		a.logger.Warn("state was not saved",
			zap.String("op", "main"),
		)
	}
}

func (a *app) replaceSectors(reg sector.Registry) error {
	return a.store.Apply(state.EventUpdate, []model.Section{model.SectionSectorRegistry}, func(st *model.State) error {
		st.SectorRegistry = reg
		return nil
	})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "split-payment-forecast",
		Short:         "Simulate the working-capital impact of Split Payment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", constants.DefaultConfigFile, "path to configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.outputFormat, "output-format", "", "type of output override: pretty, csv, json")

	root.AddCommand(
		newSimulateCommand(a),
		newStrategiesCommand(a),
		newSensitivityCommand(a),
		newMemoryCommand(a),
		newSectorsCommand(a),
		newResetCommand(a),
	)
	return root
}

func main() {
	a := &app{}
	err := newRootCommand(a).Execute()
	a.teardown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"error\": %q}\n", err.Error())
		os.Exit(1)
	}
}
