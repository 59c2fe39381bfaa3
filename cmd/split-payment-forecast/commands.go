package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/iwvelando/split-payment-forecast/internal/mitigation"
	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/iwvelando/split-payment-forecast/internal/sector"
	"github.com/iwvelando/split-payment-forecast/internal/sensitivity"
	"github.com/iwvelando/split-payment-forecast/internal/simulation"
	"github.com/iwvelando/split-payment-forecast/pkg/constants"
	"github.com/iwvelando/split-payment-forecast/pkg/output"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyParameters updates the store from a file mapping section names to
// partial updates. Built-in sections are applied in their canonical order and
// extension sections after them.
func (a *app) applyParameters(path string) error {
	var sections map[string]map[string]any
	if err := readYAML(path, &sections); err != nil {
		return err
	}

	for _, section := range model.Sections() {
		partial, ok := sections[string(section)]
		if !ok {
			continue
		}
		delete(sections, string(section))
		if err := a.store.Update(section, partial); err != nil {
			return fmt.Errorf("section %s: %w", section, err)
		}
	}

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields := make([]string, 0, len(sections[name]))
		for field := range sections[name] {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			if err := a.store.UpdateField(model.Section(name), field, sections[name][field]); err != nil {
				return fmt.Errorf("section %s: %w", name, err)
			}
		}
	}
	return nil
}

func newSimulateCommand(a *app) *cobra.Command {
	var paramsFile string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Project the Split Payment impact over the simulation window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if paramsFile != "" {
				if err := a.applyParameters(paramsFile); err != nil {
					return err
				}
			}
			results, err := a.engine.Run(a.store)
			if err != nil {
				return err
			}
			a.save(cmd.Context())
			return output.Render(cmd.OutOrStdout(), a.outputFormat, results)
		},
	}
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML file of section updates applied before simulating")
	return cmd
}

func newStrategiesCommand(a *app) *cobra.Command {
	var leversFile string
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "Rank combinations of mitigation levers against the last simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg mitigation.Config
			if err := readYAML(leversFile, &cfg); err != nil {
				return err
			}
			result, err := a.engine.RunStrategies(a.store, cfg)
			if err != nil {
				return err
			}
			a.save(cmd.Context())
			return output.Render(cmd.OutOrStdout(), a.outputFormat, result)
		},
	}
	cmd.Flags().StringVar(&leversFile, "levers", "", "YAML file with the lever configuration")
	_ = cmd.MarkFlagRequired("levers")
	return cmd
}

func newSensitivityCommand(a *app) *cobra.Command {
	var (
		sectors []string
		params  []string
		year    int
	)
	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Measure how each parameter moves the working-capital impact per sector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed := make([]sensitivity.Parameter, 0, len(params))
			for _, name := range params {
				p, err := sensitivity.ParseParameter(name)
				if err != nil {
					return err
				}
				parsed = append(parsed, p)
			}
			m, err := a.engine.Sensitivity(a.store, year, sectors, parsed)
			if err != nil {
				return err
			}
			return output.Render(cmd.OutOrStdout(), a.outputFormat, m)
		},
	}
	cmd.Flags().StringSliceVar(&sectors, "sectors", nil, "sector codes to analyse (default all)")
	cmd.Flags().StringSliceVar(&params, "params", nil, "parameters to perturb (default all)")
	cmd.Flags().IntVar(&year, "year", 0, "year to analyse (default first simulated year)")
	return cmd
}

func newMemoryCommand(a *app) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Print the step-by-step calculation memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			memories, err := a.engine.Memory(a.store, year)
			if err != nil {
				return err
			}
			if a.outputFormat == constants.OutputFormatJSON {
				return output.JSONFormat(cmd.OutOrStdout(), memories)
			}
			output.PrettyMemory(cmd.OutOrStdout(), simulation.SortedYears(memories), memories)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year to print (default every year)")
	return cmd
}

func newSectorsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sectors",
		Short: "Import or export the sector registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "export <file>",
		Short: "Write the sector registry as JSON or YAML (by extension)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return sector.Save(args[0], a.store.Snapshot().SectorRegistry)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace the sector registry from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := sector.Load(args[0])
			if err != nil {
				return err
			}
			if err := a.replaceSectors(reg); err != nil {
				return err
			}
			a.logger.Info("imported sector registry",
				zap.String("op", "main.sectorsImport"),
				zap.Int("sectors", len(reg)),
			)
			a.save(cmd.Context())
			return nil
		},
	})
	return cmd
}

func newResetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [section...]",
		Short: "Restore sections (default all) to their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			sections := make([]model.Section, len(args))
			for i, name := range args {
				sections[i] = model.Section(name)
			}
			if err := a.store.Reset(sections...); err != nil {
				return err
			}
			a.save(cmd.Context())
			return nil
		},
	}
}
