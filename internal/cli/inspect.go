// Package cli: inspect.go implements the "oscar-runner inspect" command.
//
// inspect prints the dimensions, coordinates and per-variable statistics
// of a netCDF file. It is meant for checking inputs before a run and
// outputs after one.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/ncio"
)

// maxShownLabels bounds how many coordinate labels the text output lists.
const maxShownLabels = 8

// NewInspectCommand creates the "inspect" cobra command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.nc>",
		Short: "Summarize a netCDF file",
		Long: `Print the format, dimensions, coordinates and per-variable statistics of a
netCDF file.

Examples:
  oscar-runner inspect output_data/Out_hist_ex_E_JSBACH_a.nc
  oscar-runner inspect --json input_data/drivers/For_scen_E_driven.nc`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), args[0])
		},
	}
}

// inspectJSON is the JSON output of inspect.
type inspectJSON struct {
	Path      string         `json:"path"`
	Format    string         `json:"format"`
	Dims      []dimJSON      `json:"dims"`
	Variables []variableJSON `json:"variables"`
}

type dimJSON struct {
	Name   string   `json:"name"`
	Len    int      `json:"len"`
	Labels []string `json:"labels,omitempty"`
}

type variableJSON struct {
	Name  string            `json:"name"`
	Dims  []string          `json:"dims"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Stats dataset.Stats     `json:"stats"`
}

func runInspect(w io.Writer, path string) error {
	if _, err := os.Stat(path); err != nil {
		return model.WrapCLIError(model.ExitInputError, fmt.Sprintf("file not found: %s", path), err)
	}
	format, err := ncio.DetectFormat(path)
	if err != nil {
		return model.WrapCLIError(model.ExitInputError, fmt.Sprintf("not a netCDF file: %s", path), err)
	}
	ds, err := ncio.Read(path)
	if err != nil {
		return model.WrapCLIError(model.ExitInputError, fmt.Sprintf("failed to read %s", path), err)
	}

	out := describe(path, format, ds)
	if IsJSONOutput() {
		return printJSON(w, out)
	}
	printInspectText(w, out)
	return nil
}

// describe builds the inspect report of a dataset.
func describe(path string, format ncio.Format, ds *dataset.Dataset) inspectJSON {
	out := inspectJSON{
		Path:      path,
		Format:    string(format),
		Dims:      make([]dimJSON, 0, len(ds.Dims())),
		Variables: make([]variableJSON, 0, ds.Len()),
	}
	for _, c := range ds.Coords() {
		d := dimJSON{Name: c.Dim, Len: c.Len}
		if c.HasLabels() {
			d.Labels = c.Labels()
		}
		out.Dims = append(out.Dims, d)
	}
	for _, v := range ds.Vars() {
		out.Variables = append(out.Variables, variableJSON{
			Name:  v.Name,
			Dims:  append([]string{}, v.Dims...),
			Attrs: v.Attrs,
			Stats: dataset.Summarize(v),
		})
	}
	return out
}

// printInspectText prints the report as aligned text:
//
//	DIM        LEN  LABELS
//	year         7  2014, 2015, ... (7)
//	VARIABLE   DIMS         MIN      MAX      MEAN     NAN
//	D_Tg       (year,scen)  0.91     1.32     1.10     0
func printInspectText(w io.Writer, r inspectJSON) {
	fmt.Fprintf(w, "%s (%s)\n\n", r.Path, r.Format)

	fmt.Fprintf(w, "%-20s %8s  %s\n", "DIM", "LEN", "LABELS")
	for _, d := range r.Dims {
		fmt.Fprintf(w, "%-20s %8d  %s\n", d.Name, d.Len, shortLabels(d.Labels))
	}

	fmt.Fprintf(w, "\n%-20s %-24s %12s %12s %12s %6s\n", "VARIABLE", "DIMS", "MIN", "MAX", "MEAN", "NAN")
	for _, v := range r.Variables {
		dims := "()"
		if len(v.Dims) > 0 {
			dims = "(" + strings.Join(v.Dims, ",") + ")"
		}
		fmt.Fprintf(w, "%-20s %-24s %12.5g %12.5g %12.5g %6d\n",
			v.Name, dims, v.Stats.Min, v.Stats.Max, v.Stats.Mean, v.Stats.NaN)
	}
}

// shortLabels lists up to maxShownLabels labels.
func shortLabels(labels []string) string {
	if len(labels) == 0 {
		return "-"
	}
	if len(labels) <= maxShownLabels {
		return strings.Join(labels, ", ")
	}
	return fmt.Sprintf("%s, ... (%d)", strings.Join(labels[:maxShownLabels], ", "), len(labels))
}
