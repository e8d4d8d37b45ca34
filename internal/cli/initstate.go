// Package cli: initstate.go implements the "oscar-runner init-state"
// command, which writes the zero initial state of a run without running
// the model. The bridge can then be exercised by hand on the same inputs.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/oscar-runner/internal/pipeline"
)

// initStateFlags holds the flag values for the init-state command.
type initStateFlags struct {
	paths pathFlags
	out   string
}

// NewInitStateCommand creates the "init-state" cobra command.
func NewInitStateCommand() *cobra.Command {
	flags := &initStateFlags{}

	cmd := &cobra.Command{
		Use:   "init-state",
		Short: "Write the zero initial state of a run",
		Long: `Prepare the inputs of a run and write its zero initial state: one entry per
prognostic variable of the model manifest, over that variable's core
dimensions.

Examples:
  oscar-runner init-state --out ini.nc
  oscar-runner init-state --par Pars_JULES_DR_500_b.nc --out /tmp/ini.nc`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.paths)
			if err != nil {
				return err
			}
			decl, err := loadDeclaration(cfg)
			if err != nil {
				return err
			}

			runner := pipeline.NewRunner(cfg, declaredModel{decl}, logger)
			p, err := runner.Prepare(cfg.Paths.ParameterFile)
			if err != nil {
				return err
			}
			if err := runner.WriteInitialState(p, flags.out); err != nil {
				return err
			}

			if IsJSONOutput() {
				return printJSON(cmd.OutOrStdout(), struct {
					Label string   `json:"label"`
					Path  string   `json:"path"`
					Vars  []string `json:"variables"`
				}{p.Label.String(), flags.out, p.Initial.Names()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initial state of %s written to %s (%d variables)\n",
				p.Label, flags.out, p.Initial.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.paths.par, "par", "", "Parameter file (Pars_<model>_500_<sim>.nc)")
	cmd.Flags().StringVar(&flags.paths.hist, "hist", "", "Historical forcing file (relative to the input directory)")
	cmd.Flags().StringVar(&flags.paths.scen, "scen", "", "Scenario forcing file (relative to the input directory)")
	cmd.Flags().StringVar(&flags.out, "out", "ini.nc", "Output file")

	return cmd
}
