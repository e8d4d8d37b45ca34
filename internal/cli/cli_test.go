package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/ncio"
)

// copyBridge answers every invocation with its staged forcing, which
// carries the time coordinate the handoff needs.
const copyBridge = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --for) for="$2"; shift 2 ;;
    --out) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cp "$for" "$out"
`

// execute runs the CLI with args and returns stdout, stderr and the exit
// code.
func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	code := Execute(root)
	return stdout.String(), stderr.String(), code
}

// project lays out inputs, a manifest, a bridge script and a config file
// in a temp dir and returns the dir and the config path.
func project(t *testing.T) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("bridge scripts need a POSIX shell")
	}
	dir := t.TempDir()
	enc := ncio.Encoding{Format: ncio.FormatClassic}

	par := dataset.New()
	require.NoError(t, par.Set(dataset.NewScalar("p_sens", 0.4)))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "params"), 0o755))
	for _, name := range []string{"Pars_JSBACH_500_a.nc", "Pars_JULES_DR_500_b.nc"} {
		require.NoError(t, ncio.Write(filepath.Join(dir, "params", name), par, enc))
	}

	hist := dataset.New()
	require.NoError(t, hist.SetCoord(dataset.NewNumericCoord("year", []float64{2012, 2013, 2014})))
	eff, err := dataset.NewVariable("Eff", []string{"year"}, []int{3}, []float64{9.1, 9.5, 9.8})
	require.NoError(t, err)
	require.NoError(t, hist.Set(eff))
	require.NoError(t, hist.Set(dataset.NewScalar("CO2_0", 278)))
	require.NoError(t, ncio.Write(filepath.Join(dir, "hist.nc"), hist, enc))

	scenYears := []float64{2013, 2014, 2015, 2016, 2017, 2018, 2019, 2020, 2021}
	scenLabels := []string{"SSP1-1.9", "SSP1-2.6", "SSP2-4.5", "SSP3-7.0", "SSP3-7.0-LowNTCF", "SSP4-3.4", "SSP5-3.4-OS"}
	scen := dataset.New()
	require.NoError(t, scen.SetCoord(dataset.NewNumericCoord("year", scenYears)))
	require.NoError(t, scen.SetCoord(dataset.NewStringCoord("scen", scenLabels)))
	scenEff, err := dataset.NewVariable("Eff", []string{"year", "scen"}, []int{len(scenYears), len(scenLabels)}, nil)
	require.NoError(t, err)
	require.NoError(t, scen.Set(scenEff))
	require.NoError(t, ncio.Write(filepath.Join(dir, "scen.nc"), scen, enc))

	manifest := "name: OSCAR_test\nprognostic:\n  - name: D_Tg\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644))

	bridge := filepath.Join(dir, "bridge.sh")
	require.NoError(t, os.WriteFile(bridge, []byte(copyBridge), 0o755))

	cfg := `paths:
  input_dir: ` + dir + `
  parameter_file: ` + filepath.Join(dir, "params", "Pars_JULES_DR_500_b.nc") + `
  historical_forcing: hist.nc
  scenario_forcing: scen.nc
  output_dir: ` + filepath.Join(dir, "out") + `
run:
  var_keep: [Eff]
model:
  manifest: ` + filepath.Join(dir, "manifest.yaml") + `
  backend: exec
  command: [/bin/sh, ` + bridge + `]
  work_root: ` + dir + `
output:
  format: classic
  deflate: false
`
	cfgPath := filepath.Join(dir, "oscar-runner.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return dir, cfgPath
}

func TestLabelCommand(t *testing.T) {
	stdout, _, code := execute(t, "label", "params/Pars_JULES_DR_500_b.nc")
	assert.Equal(t, 0, code)
	assert.Equal(t, "JULES_DR_b\n", stdout)

	stdout, _, code = execute(t, "--json", "label", "Pars_JSBACH_500_a.nc")
	require.Equal(t, 0, code)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, map[string]string{"label": "JSBACH_a", "model": "JSBACH", "sim": "a"}, got)
}

func TestExecute_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want model.ExitCode
	}{
		{"unknown command", []string{"frobnicate"}, model.ExitGeneralError},
		{"bad parameter file name", []string{"label", "params.nc"}, model.ExitInputError},
		{"missing config", []string{"--config", "/nonexistent/oscar-runner.yaml", "run", "--dry-run"}, model.ExitConfigError},
		{"bad backend flag", []string{"run", "--backend", "slurm"}, model.ExitConfigError},
		{"remove needs a target", []string{"remove"}, model.ExitConfigError},
		{"inspect missing file", []string{"inspect", "/nonexistent.nc"}, model.ExitInputError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := execute(t, tt.args...)
			assert.Equal(t, int(tt.want), code, stderr)
			assert.True(t, strings.HasPrefix(stderr, "Error: "), stderr)
		})
	}
}

func TestExecute_JSONError(t *testing.T) {
	_, stderr, code := execute(t, "--json", "label", "params.nc")
	assert.Equal(t, int(model.ExitInputError), code)

	var got struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stderr), &got))
	assert.Equal(t, "cannot infer run label", got.Error.Message)
	assert.Contains(t, got.Error.Detail, "params.nc")
}

func TestRunCommand_DryRun(t *testing.T) {
	dir, cfgPath := project(t)

	stdout, stderr, code := execute(t, "--json", "--config", cfgPath, "run", "--dry-run")
	require.Equal(t, 0, code, stderr)

	var plan planJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &plan))
	assert.Equal(t, "JULES_DR_b", plan.Label)
	assert.Equal(t, []string{"SSP1-2.6", "SSP2-4.5"}, plan.Scenarios)
	assert.Equal(t, [2]int{2014, 2020}, plan.Years)
	assert.Equal(t, 2, plan.HistoricalNT)
	assert.Equal(t, 20, plan.ScenarioNT)
	assert.Equal(t, []string{"D_Tg"}, plan.Prognostic)
	assert.Equal(t, []string{"p_CO2_burn", "p_CH4_burn"}, plan.Backfilled)

	_, err := os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err), "a dry run writes nothing")
}

func TestRunCommand(t *testing.T) {
	dir, cfgPath := project(t)
	par := filepath.Join(dir, "params", "Pars_JSBACH_500_a.nc")

	stdout, stderr, code := execute(t, "--config", cfgPath, "run", "--par", par)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Run JSBACH_a completed")

	hist, err := ncio.Read(filepath.Join(dir, "out", "Out_hist_ex_E_JSBACH_a.nc"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Eff"}, hist.Names())

	scen, err := ncio.Read(filepath.Join(dir, "out", "Out_scen_exceedance_E_JSBACH_a.nc"))
	require.NoError(t, err)
	c, ok := scen.Coord("scen")
	require.True(t, ok)
	assert.Equal(t, []string{"SSP1-2.6", "SSP2-4.5"}, c.Labels())
}

func TestBatchCommand(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dir, cfgPath := project(t)

	stdout, stderr, code := execute(t, "--json", "--config", cfgPath,
		"batch", "--glob", filepath.Join(dir, "params", "Pars_*_500_*.nc"), "--jobs", "2")
	require.Equal(t, 0, code, stderr)

	var got struct {
		Runs []batchEntry `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got.Runs, 2)
	for _, r := range got.Runs {
		assert.Equal(t, batchStatusOK, r.Status, r.Error)
	}
	for _, label := range []string{"JSBACH_a", "JULES_DR_b"} {
		_, err := os.Stat(filepath.Join(dir, "out", "Out_scen_exceedance_E_"+label+".nc"))
		assert.NoError(t, err, label)
	}
}

func TestBatchCommand_KeepGoing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dir, cfgPath := project(t)
	broken := filepath.Join(dir, "params", "Pars_BROKEN_500_c.nc")
	require.NoError(t, os.WriteFile(broken, []byte("not netcdf"), 0o644))

	stdout, stderr, code := execute(t, "--json", "--config", cfgPath,
		"batch", "--glob", filepath.Join(dir, "params", "Pars_*_500_*.nc"), "--keep-going", "--jobs", "1")
	assert.Equal(t, int(model.ExitInputError), code, stderr)

	var got struct {
		Runs []batchEntry `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got.Runs, 3)
	status := map[string]string{}
	for _, r := range got.Runs {
		status[filepath.Base(r.ParameterFile)] = r.Status
	}
	assert.Equal(t, map[string]string{
		"Pars_BROKEN_500_c.nc":   batchStatusFailed,
		"Pars_JSBACH_500_a.nc":   batchStatusOK,
		"Pars_JULES_DR_500_b.nc": batchStatusOK,
	}, status)
}

func TestBatchCommand_NoMatch(t *testing.T) {
	dir, cfgPath := project(t)
	_, _, code := execute(t, "--config", cfgPath, "batch", "--glob", filepath.Join(dir, "nothing-*.nc"))
	assert.Equal(t, int(model.ExitInputError), code)
}

func TestInitStateCommand(t *testing.T) {
	dir, cfgPath := project(t)
	out := filepath.Join(dir, "state", "ini.nc")

	_, stderr, code := execute(t, "--config", cfgPath, "init-state", "--out", out)
	require.Equal(t, 0, code, stderr)

	ini, err := ncio.Read(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"D_Tg"}, ini.Names())
	tg, _ := ini.Var("D_Tg")
	assert.True(t, tg.IsZero())
}

func TestInspectCommand(t *testing.T) {
	dir, _ := project(t)

	stdout, stderr, code := execute(t, "inspect", filepath.Join(dir, "hist.nc"))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "(classic)")
	assert.Contains(t, stdout, "2012, 2013, 2014")

	stdout, _, code = execute(t, "--json", "inspect", filepath.Join(dir, "hist.nc"))
	require.Equal(t, 0, code)
	var got inspectJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got.Variables, 2)
	for _, v := range got.Variables {
		if v.Name == "Eff" {
			assert.InDelta(t, 9.1, v.Stats.Min, 1e-9)
			assert.InDelta(t, 9.8, v.Stats.Max, 1e-9)
		}
	}
}

func TestShortLabels(t *testing.T) {
	assert.Equal(t, "-", shortLabels(nil))
	assert.Equal(t, "a, b", shortLabels([]string{"a", "b"}))
	many := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	assert.Equal(t, "1, 2, 3, 4, 5, 6, 7, 8, ... (10)", shortLabels(many))
}

func TestRemoveTarget(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		all     bool
		want    string
		wantErr bool
	}{
		{"run label", []string{"JULES_DR_b"}, false, "JULES_DR_b", false},
		{"all", nil, true, "", false},
		{"both", []string{"JULES_DR_b"}, true, "", true},
		{"neither", nil, false, "", true},
		{"malformed label", []string{"nolabel"}, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := removeTarget(tt.args, tt.all)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupRuns(t *testing.T) {
	containers := []model.ContainerInfo{
		{ContainerName: "oscar-b-scenario", RunLabel: "JULES_DR_b", Period: "scenario", Status: "exited"},
		{ContainerName: "oscar-a-historical", RunLabel: "JSBACH_a", Period: "historical", Status: "running"},
		{ContainerName: "stray", Status: "exited"},
		{ContainerName: "oscar-b-historical", RunLabel: "JULES_DR_b", Period: "historical", Status: "exited"},
	}

	runs := groupRuns(containers)
	require.Len(t, runs, 3)
	assert.Equal(t, "-", runs[0].RunLabel)
	assert.Equal(t, "JSBACH_a", runs[1].RunLabel)
	assert.Equal(t, "JULES_DR_b", runs[2].RunLabel)
	assert.Len(t, runs[2].Containers, 2)

	exited := filterByStatus(containers, "EXITED")
	assert.Len(t, exited, 3)
	assert.Len(t, filterByStatus(containers, ""), 4)

	var buf bytes.Buffer
	printListResultText(&buf, runs)
	assert.Contains(t, buf.String(), "oscar-a-historical")
	assert.Contains(t, buf.String(), "RUN LABEL")

	buf.Reset()
	printListResultText(&buf, nil)
	assert.Equal(t, "No oscar-runner containers found.\n", buf.String())
}

func TestPromptConfirmation(t *testing.T) {
	var out bytes.Buffer
	ok, err := promptConfirmation(strings.NewReader("yes\n"), &out, "JSBACH_a", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), `2 container(s) of run "JSBACH_a"`)

	ok, err = promptConfirmation(strings.NewReader(""), &out, "", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
