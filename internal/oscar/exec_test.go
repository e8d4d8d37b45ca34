package oscar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// copyBridge copies the staged initial state to the output, which is
// enough for a run whose kept variables are the prognostic ones.
const copyBridge = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --ini) ini="$2"; shift 2 ;;
    --out) out="$2"; shift 2 ;;
    --nt) echo "nt=$2"; shift 2 ;;
    *) shift ;;
  esac
done
cp "$ini" "$out"
`

const failingBridge = `#!/bin/sh
echo "Traceback: solver diverged" >&2
exit 3
`

const slowBridge = `#!/bin/sh
exec sleep 10
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("bridge scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "bridge.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func smallInputs(t *testing.T) (ini, par, forcing *dataset.Dataset) {
	t.Helper()
	ini = dataset.New()
	require.NoError(t, ini.Set(dataset.NewScalar("D_Tg", 0)))
	cfroz, err := dataset.NewVariable("D_Cfroz", []string{"reg_pf"}, []int{2}, nil)
	require.NoError(t, err)
	require.NoError(t, ini.Set(cfroz))

	par = dataset.New()
	require.NoError(t, par.Set(dataset.NewScalar("p_CO2_burn", 0)))

	forcing = dataset.New()
	require.NoError(t, forcing.SetCoord(dataset.NewNumericCoord("year", []float64{1850, 1851})))
	eff, err := dataset.NewVariable("Eff", []string{"year"}, []int{2}, []float64{0.1, 0.2})
	require.NoError(t, err)
	require.NoError(t, forcing.Set(eff))
	return ini, par, forcing
}

func newTestExecModel(t *testing.T, script string, opts ExecOptions) *ExecModel {
	t.Helper()
	opts.Command = []string{"/bin/sh", script}
	if opts.WorkRoot == "" {
		opts.WorkRoot = t.TempDir()
	}
	m, err := NewExecModel(Declaration{ModelName: "test"}, opts, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestNewExecModel_RequiresCommand(t *testing.T) {
	_, err := NewExecModel(Declaration{}, ExecOptions{}, nil)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

func TestExecModel_Run(t *testing.T) {
	// Arrange
	root := t.TempDir()
	m := newTestExecModel(t, writeScript(t, copyBridge), ExecOptions{WorkRoot: root})
	ini, par, forcing := smallInputs(t)

	// Act
	out, err := m.Run(context.Background(), ini, par, forcing, RunOptions{
		Period:  model.PeriodHistorical,
		Label:   model.RunLabel{Model: "JSBACH", Sim: "a"},
		VarKeep: []string{"D_Cfroz"},
		NT:      2,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"D_Cfroz"}, out.Names())
	v, ok := out.Var("D_Cfroz")
	require.True(t, ok)
	assert.Equal(t, []string{"reg_pf"}, v.Dims)
	assert.True(t, v.IsZero())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "work directory should be removed after the run")
}

func TestExecModel_KeepWork(t *testing.T) {
	root := t.TempDir()
	m := newTestExecModel(t, writeScript(t, copyBridge), ExecOptions{WorkRoot: root, KeepWork: true})
	ini, par, forcing := smallInputs(t)

	_, err := m.Run(context.Background(), ini, par, forcing, RunOptions{VarKeep: []string{"D_Tg"}, NT: 1})
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	for _, name := range []string{IniFile, ParFile, ForcingFile, OutFile} {
		assert.FileExists(t, filepath.Join(root, entries[0].Name(), name))
	}
}

func TestExecModel_BridgeFailure(t *testing.T) {
	m := newTestExecModel(t, writeScript(t, failingBridge), ExecOptions{})
	ini, par, forcing := smallInputs(t)

	_, err := m.Run(context.Background(), ini, par, forcing, RunOptions{
		Period:  model.PeriodScenario,
		Label:   model.RunLabel{Model: "JSBACH", Sim: "a"},
		VarKeep: []string{"D_Tg"},
		NT:      20,
	})

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitModelError, cliErr.Code)
	assert.Contains(t, cliErr.Message, "solver diverged")
	assert.Contains(t, cliErr.Message, "JSBACH_a scenario")
}

func TestExecModel_Timeout(t *testing.T) {
	m := newTestExecModel(t, writeScript(t, slowBridge), ExecOptions{Timeout: 100 * time.Millisecond})
	ini, par, forcing := smallInputs(t)

	start := time.Now()
	_, err := m.Run(context.Background(), ini, par, forcing, RunOptions{VarKeep: []string{"D_Tg"}, NT: 1})

	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "(no output)", Tail([]byte("  \n")))
	assert.Equal(t, "boom", Tail([]byte("boom\n")))

	long := make([]byte, maxOutputTail+10)
	for i := range long {
		long[i] = 'x'
	}
	got := Tail(long)
	assert.Len(t, got, maxOutputTail+3)
}
