// Package cli: list.go implements the "oscar-runner list" command.
//
// The list command shows the containers left behind by the docker backend
// (with model.keep set, or after a crash) by querying Docker for the
// "oscar-runner.managed-by=oscar-runner" label. Containers are grouped by
// run label and presented as a text table or JSON array, depending on the
// --json flag.
package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/oscar-runner/internal/docker"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// status filters containers by Docker state, e.g. "running" or
	// "exited". Empty means all.
	status string
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list [run-label]",
		Short: "List containers created by the docker backend",
		Long: `List the model containers created by the docker backend, grouped by run.

Examples:
  oscar-runner list
  oscar-runner list JULES_DR_b
  oscar-runner list --status exited --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			runLabel := ""
			if len(args) == 1 {
				runLabel = args[0]
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), runLabel, flags)
		},
	}

	cmd.Flags().StringVar(&flags.status, "status", "", "Filter by container state, e.g. running or exited")

	return cmd
}

// runList is the main logic function for the list command.
func runList(ctx context.Context, w io.Writer, runLabel string, flags *listFlags) error {
	// Step 1: Validate the run label, if any.
	if runLabel != "" {
		if _, err := model.ParseRunLabel(runLabel); err != nil {
			return model.WrapCLIError(model.ExitConfigError, "invalid run label", err)
		}
	}

	// Step 2: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()
	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 3: List managed containers.
	containers, err := docker.ListManagedContainers(ctx, cli, runLabel)
	if err != nil {
		return err
	}
	VerboseLog("Found %d managed containers", len(containers))

	// Step 4: Apply the --status filter and output.
	printListResult(w, groupRuns(filterByStatus(containers, flags.status)))
	return nil
}

// filterByStatus keeps containers in the given Docker state.
func filterByStatus(containers []model.ContainerInfo, status string) []model.ContainerInfo {
	if status == "" {
		return containers
	}
	out := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		if strings.EqualFold(c.Status, status) {
			out = append(out, c)
		}
	}
	return out
}

// runGroup is the containers of one run label.
type runGroup struct {
	RunLabel   string                `json:"runLabel"`
	Containers []model.ContainerInfo `json:"containers"`
}

// groupRuns groups containers by run label, sorted by label. Containers
// without a readable label are gathered under "-".
func groupRuns(containers []model.ContainerInfo) []runGroup {
	groups := docker.GroupContainersByRun(containers)
	for _, c := range containers {
		if c.RunLabel == "" {
			groups["-"] = append(groups["-"], c)
		}
	}

	out := make([]runGroup, 0, len(groups))
	for label, cs := range groups {
		out = append(out, runGroup{RunLabel: label, Containers: cs})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RunLabel < out[j].RunLabel
	})
	return out
}

// printListResult outputs the grouped containers in text or JSON format.
func printListResult(w io.Writer, runs []runGroup) {
	if IsJSONOutput() {
		_ = printJSON(w, struct {
			Runs []runGroup `json:"runs"`
		}{Runs: runs})
		return
	}
	printListResultText(w, runs)
}

// printListResultText outputs the containers as a text table:
//
//	RUN LABEL        PERIOD      STATUS    CREATED               CONTAINER
//	JULES_DR_b       historical  exited    2026-05-01T10:00:00Z  oscar-JULES_DR_b-historical-1a2b3c4d
func printListResultText(w io.Writer, runs []runGroup) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No oscar-runner containers found.")
		return
	}

	fmt.Fprintf(w, "%-20s %-11s %-9s %-21s %s\n", "RUN LABEL", "PERIOD", "STATUS", "CREATED", "CONTAINER")
	for _, r := range runs {
		for _, c := range r.Containers {
			fmt.Fprintf(w, "%-20s %-11s %-9s %-21s %s\n",
				r.RunLabel, orDash(c.Period), orDash(c.Status), formatCreated(c.CreatedAt), c.ContainerName)
		}
	}
}

// formatCreated renders a creation time, or "-" when unknown.
func formatCreated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
