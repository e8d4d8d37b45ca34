// Package cli: remove.go implements the "oscar-runner remove" command.
//
// The remove command deletes containers left behind by the docker backend,
// either those of one run label or, with --all, every container carrying
// the oscar-runner labels. Running containers are killed first. Output
// files and work directories on the host are never touched.
//
// By default the command prompts for confirmation before proceeding.
// The --force flag skips the confirmation prompt.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/oscar-runner/internal/docker"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// removeFlags holds the flag values for the remove command.
type removeFlags struct {
	// all removes every managed container instead of one run's.
	all bool

	// force skips the interactive confirmation prompt when true.
	force bool
}

// NewRemoveCommand creates the "remove" cobra command.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:   "remove [--all | <run-label>]",
		Short: "Remove containers created by the docker backend",
		Long: `Remove the model containers of one run, or all of them with --all.

Unless --force is specified, the command prompts for confirmation.

Examples:
  oscar-runner remove JULES_DR_b
  oscar-runner remove --all --force`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			runLabel, err := removeTarget(args, flags.all)
			if err != nil {
				return err
			}
			return runRemove(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), runLabel, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.all, "all", false, "Remove every oscar-runner container")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation")

	return cmd
}

// removeTarget checks that exactly one of --all and a run label is given
// and returns the run label ("" for --all).
func removeTarget(args []string, all bool) (string, error) {
	switch {
	case all && len(args) > 0:
		return "", model.NewCLIError(model.ExitConfigError, "--all and a run label are mutually exclusive")
	case !all && len(args) == 0:
		return "", model.NewCLIError(model.ExitConfigError, "a run label or --all is required")
	case all:
		return "", nil
	}
	if _, err := model.ParseRunLabel(args[0]); err != nil {
		return "", model.WrapCLIError(model.ExitConfigError, "invalid run label", err)
	}
	return args[0], nil
}

// runRemove is the main logic function for the remove command.
func runRemove(ctx context.Context, in io.Reader, w io.Writer, runLabel string, flags *removeFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()
	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the target containers.
	containers, err := docker.ListManagedContainers(ctx, cli, runLabel)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		if runLabel != "" {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("no containers found for run %q", runLabel))
		}
		printRemoveResult(w, nil)
		return nil
	}

	// Step 3: Prompt for confirmation unless --force is specified.
	if !flags.force {
		confirmed, err := promptConfirmation(in, w, runLabel, len(containers))
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitGeneralError, "operation cancelled by user")
		}
	}

	// Step 4: Remove each container. Force handles running ones.
	removed := make([]string, 0, len(containers))
	for _, c := range containers {
		VerboseLog("Removing container %s", c.ContainerName)
		if err := docker.RemoveContainer(ctx, cli, c.ContainerID, true); err != nil {
			return err
		}
		removed = append(removed, c.ContainerName)
	}

	// Step 5: Output the result.
	printRemoveResult(w, removed)
	return nil
}

// promptConfirmation asks the user to confirm the remove operation.
// It reads a single line and checks for "y" or "yes".
func promptConfirmation(in io.Reader, w io.Writer, runLabel string, count int) (bool, error) {
	target := "all runs"
	if runLabel != "" {
		target = fmt.Sprintf("run %q", runLabel)
	}
	fmt.Fprintf(w, "About to remove %d container(s) of %s.\n", count, target)
	fmt.Fprint(w, "\nContinue? [y/N] ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// If stdin is closed or an error occurred, treat it as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// printRemoveResult outputs the removed container names in text or JSON
// format.
func printRemoveResult(w io.Writer, removed []string) {
	if IsJSONOutput() {
		_ = printJSON(w, struct {
			Removed []string `json:"removed"`
		}{Removed: nonNil(removed)})
		return
	}

	if len(removed) == 0 {
		fmt.Fprintln(w, "No oscar-runner containers to remove.")
		return
	}
	for _, name := range removed {
		fmt.Fprintf(w, "Removed %s\n", name)
	}
	fmt.Fprintf(w, "%d container(s) removed.\n", len(removed))
}

