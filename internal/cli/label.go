// Package cli: label.go implements the "oscar-runner label" command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/oscar-runner/internal/pipeline"
)

// NewLabelCommand creates the "label" cobra command, which prints the run
// label inferred from a parameter file name. The file need not exist.
func NewLabelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "label <parameter-file>",
		Short: "Print the run label of a parameter file",
		Long: `Print the run label inferred from a parameter file name.

Examples:
  oscar-runner label input_data/parameters/Pars_JULES_DR_500_b.nc
  oscar-runner label --json Pars_JSBACH_500_a.nc`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			label, err := pipeline.InferLabel(args[0])
			if err != nil {
				return err
			}
			if IsJSONOutput() {
				return printJSON(cmd.OutOrStdout(), struct {
					Label string `json:"label"`
					Model string `json:"model"`
					Sim   string `json:"sim"`
				}{label.String(), label.Model, label.Sim})
			}
			fmt.Fprintln(cmd.OutOrStdout(), label.String())
			return nil
		},
	}
}
