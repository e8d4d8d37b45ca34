// Package cli: run.go implements the "oscar-runner run" command.
//
// The run command executes the full experiment for one parameter file:
//  1. Resolve the config and load the model manifest
//  2. Infer the run label and prepare parameters, forcings and the
//     initial state
//  3. Run the historical period and write its output
//  4. Hand the state over and run the scenario period
//  5. Write the scenario output and report the result
//
// With --dry-run the command stops after step 2 and reports what it
// would do.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/config"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/pipeline"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	paths  pathFlags
	dryRun bool
}

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the historical and scenario periods for one parameter file",
		Long: `Run the exceedance experiment for one calibrated parameter file.

The run label is inferred from the file name (Pars_<model>_500_<sim>.nc)
and names both outputs. The historical output at the handoff year becomes
the initial state of the scenario run.

Examples:
  oscar-runner run
  oscar-runner run --par input_data/parameters/Pars_JULES_DR_500_b.nc
  oscar-runner run --backend docker --out /scratch/out
  oscar-runner run --dry-run --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, flags)
		},
	}

	addPathFlags(cmd, &flags.paths)
	cmd.Flags().StringVar(&flags.paths.par, "par", "", "Parameter file (Pars_<model>_500_<sim>.nc)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Prepare the inputs and report the plan without running the model")

	return cmd
}

// addPathFlags registers the overrides shared by run and batch.
func addPathFlags(cmd *cobra.Command, p *pathFlags) {
	cmd.Flags().StringVar(&p.hist, "hist", "", "Historical forcing file (relative to the input directory)")
	cmd.Flags().StringVar(&p.scen, "scen", "", "Scenario forcing file (relative to the input directory)")
	cmd.Flags().StringVar(&p.out, "out", "", "Output directory")
	cmd.Flags().StringVar(&p.backend, "backend", "", "Model backend: exec or docker")
}

// runRun is the main logic function for the run command.
func runRun(cmd *cobra.Command, flags *runFlags) error {
	ctx := cmd.Context()

	// Step 1: Resolve the configuration.
	cfg, err := loadConfig(flags.paths)
	if err != nil {
		return err
	}
	parFile := cfg.Paths.ParameterFile

	// Step 2: Prepare the inputs. A dry run never touches the backend.
	if flags.dryRun {
		decl, err := loadDeclaration(cfg)
		if err != nil {
			return err
		}
		runner := pipeline.NewRunner(cfg, declaredModel{decl}, logger)
		p, err := runner.Prepare(parFile)
		if err != nil {
			return err
		}
		return printPlan(cmd.OutOrStdout(), cfg, p)
	}

	m, release, err := newModel(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	// Steps 3-5: Run both periods and write the outputs.
	logger.Info("running", zap.String("parameter_file", parFile), zap.String("model", m.Name()),
		zap.String("backend", cfg.Model.Backend))
	res, err := pipeline.NewRunner(cfg, m, logger).Run(ctx, parFile)
	if err != nil {
		return err
	}

	printRunResult(cmd.OutOrStdout(), res)
	return nil
}

// planJSON is the --dry-run output.
type planJSON struct {
	Label            string   `json:"label"`
	ParameterFile    string   `json:"parameterFile"`
	HistoricalInput  string   `json:"historicalForcing"`
	ScenarioInput    string   `json:"scenarioForcing"`
	HistoricalOutput string   `json:"historicalOutput"`
	ScenarioOutput   string   `json:"scenarioOutput"`
	Backend          string   `json:"backend"`
	HistoricalNT     int      `json:"historicalNt"`
	ScenarioNT       int      `json:"scenarioNt"`
	Scenarios        []string `json:"scenarios"`
	Years            [2]int   `json:"years"`
	Prognostic       []string `json:"prognostic"`
	Backfilled       []string `json:"backfilled"`
	VarKeep          []string `json:"varKeep"`
}

// printPlan reports what a run would do.
func printPlan(w io.Writer, cfg *config.Config, p *pipeline.Prepared) error {
	plan := planJSON{
		Label:            p.Label.String(),
		ParameterFile:    p.ParameterFile,
		HistoricalInput:  cfg.HistoricalForcingPath(),
		ScenarioInput:    cfg.ScenarioForcingPath(),
		HistoricalOutput: p.HistoricalOutput,
		ScenarioOutput:   p.ScenarioOutput,
		Backend:          cfg.Model.Backend,
		HistoricalNT:     cfg.Run.HistoricalNT,
		ScenarioNT:       cfg.Run.ScenarioNT,
		Scenarios:        pipeline.Scenarios(p.Scenario, cfg.Dims.Scenario),
		Prognostic:       p.Initial.Names(),
		Backfilled:       nonNil(p.Parameters.Backfilled),
		VarKeep:          cfg.Run.VarKeep,
	}
	lo, hi, err := p.Scenario.NumericBounds(cfg.Dims.Time)
	if err == nil {
		plan.Years = [2]int{int(lo), int(hi)}
	}

	if IsJSONOutput() {
		return printJSON(w, plan)
	}

	fmt.Fprintf(w, "Run %s (dry run)\n", plan.Label)
	fmt.Fprintf(w, "  Parameters:   %s\n", plan.ParameterFile)
	fmt.Fprintf(w, "  Historical:   %s -> %s (nt=%d)\n", plan.HistoricalInput, plan.HistoricalOutput, plan.HistoricalNT)
	fmt.Fprintf(w, "  Scenario:     %s -> %s (nt=%d)\n", plan.ScenarioInput, plan.ScenarioOutput, plan.ScenarioNT)
	fmt.Fprintf(w, "  Years:        %d-%d\n", plan.Years[0], plan.Years[1])
	fmt.Fprintf(w, "  Scenarios:    %s\n", joinOrDash(plan.Scenarios))
	fmt.Fprintf(w, "  Prognostic:   %s\n", joinOrDash(plan.Prognostic))
	fmt.Fprintf(w, "  Backfilled:   %s\n", joinOrDash(plan.Backfilled))
	fmt.Fprintf(w, "  Backend:      %s\n", plan.Backend)
	return nil
}

// printRunResult outputs a completed run in text or JSON format.
func printRunResult(w io.Writer, res *model.RunResult) {
	if IsJSONOutput() {
		_ = printJSON(w, res)
		return
	}

	fmt.Fprintf(w, "Run %s completed\n", res.Label)
	fmt.Fprintf(w, "  Historical output: %s\n", res.HistoricalOutput)
	fmt.Fprintf(w, "  Scenario output:   %s\n", res.ScenarioOutput)
	fmt.Fprintf(w, "  Scenarios:         %s\n", joinOrDash(res.Scenarios))
	if len(res.Backfilled) > 0 {
		fmt.Fprintf(w, "  Backfilled:        %s\n", strings.Join(res.Backfilled, ", "))
	}
}

// joinOrDash joins items with ", ", or returns "-" for an empty list.
func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// nonNil turns a nil slice into an empty one so that JSON shows [].
func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
