package docker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/oscar"
)

// copyIni behaves like a bridge whose output is its initial state.
func copyIni(t *testing.T) func(*container.Config, *container.HostConfig) (int64, string) {
	return func(cfg *container.Config, host *container.HostConfig) (int64, string) {
		src := host.Mounts[0].Source
		data, err := os.ReadFile(filepath.Join(src, oscar.IniFile))
		if !assert.NoError(t, err) {
			return 1, "no ini"
		}
		if !assert.NoError(t, os.WriteFile(filepath.Join(src, oscar.OutFile), data, 0o644)) {
			return 1, "write failed"
		}
		return 0, "ok"
	}
}

func testInputs(t *testing.T) (ini, par, forcing *dataset.Dataset) {
	t.Helper()
	ini = dataset.New()
	require.NoError(t, ini.Set(dataset.NewScalar("D_Tg", 0)))
	par = dataset.New()
	require.NoError(t, par.Set(dataset.NewScalar("p_CO2_burn", 0)))
	forcing = dataset.New()
	eff, err := dataset.NewVariable("Eff", []string{"year"}, []int{2}, []float64{1, 2})
	require.NoError(t, err)
	require.NoError(t, forcing.Set(eff))
	return ini, par, forcing
}

func newTestModel(t *testing.T, fake *fakeAPI, opts ModelOptions) *Model {
	t.Helper()
	if opts.Image == "" {
		opts.Image = "oscar-bridge:test"
	}
	if opts.WorkRoot == "" {
		opts.WorkRoot = t.TempDir()
	}
	m, err := NewModel(NewClientFromAPI(fake), oscar.Declaration{ModelName: "OSCAR_v3"}, opts, zap.NewNop())
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

var runOpts = oscar.RunOptions{
	Period:  model.PeriodHistorical,
	Label:   model.RunLabel{Model: "JSBACH", Sim: "a"},
	VarKeep: []string{"D_Tg"},
	NT:      2,
}

func TestNewModel_RequiresImage(t *testing.T) {
	_, err := NewModel(NewClientFromAPI(&fakeAPI{}), oscar.Declaration{}, ModelOptions{}, nil)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

func TestModel_Run(t *testing.T) {
	// Arrange
	fake := &fakeAPI{}
	fake.onStart = copyIni(t)
	root := t.TempDir()
	m := newTestModel(t, fake, ModelOptions{
		Command:  []string{"python3", "-m", "oscar_bridge"},
		Env:      []string{"OMP_NUM_THREADS=4"},
		WorkRoot: root,
	})
	ini, par, forcing := testInputs(t)

	// Act
	out, err := m.Run(context.Background(), ini, par, forcing, runOpts)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"D_Tg"}, out.Names())

	require.Len(t, fake.created, 1)
	cfg := fake.created[0]
	assert.Equal(t, "oscar-bridge:test", cfg.Image)
	assert.Equal(t, []string{
		"python3", "-m", "oscar_bridge",
		"--ini", "/work/ini.nc", "--par", "/work/par.nc", "--for", "/work/for.nc",
		"--out", "/work/out.nc", "--nt", "2", "--var-keep", "D_Tg",
	}, []string(cfg.Cmd))
	assert.Equal(t, []string{"OMP_NUM_THREADS=4"}, cfg.Env)
	assert.Equal(t, ManagedByValue, cfg.Labels[LabelManagedBy])
	assert.Equal(t, "JSBACH_a", cfg.Labels[LabelRunLabel])
	assert.Equal(t, "historical", cfg.Labels[LabelPeriod])
	assert.Equal(t, "2026-03-01T00:00:00Z", cfg.Labels[LabelCreatedAt])

	require.Len(t, fake.hosts[0].Mounts, 1)
	mnt := fake.hosts[0].Mounts[0]
	assert.Equal(t, mount.TypeBind, mnt.Type)
	assert.Equal(t, ContainerWorkDir, mnt.Target)
	assert.Equal(t, root, filepath.Dir(mnt.Source))

	assert.Equal(t, []string{"cid-" + fake.names[0]}, fake.removed, "container should be removed")
	assert.NoDirExists(t, mnt.Source, "work directory should be removed")
	assert.Empty(t, fake.pulls)
}

func TestModel_Run_KeepContainer(t *testing.T) {
	fake := &fakeAPI{onStart: copyIni(t)}
	m := newTestModel(t, fake, ModelOptions{Keep: true, KeepWork: true})
	ini, par, forcing := testInputs(t)

	_, err := m.Run(context.Background(), ini, par, forcing, runOpts)

	require.NoError(t, err)
	assert.Empty(t, fake.removed)
	assert.DirExists(t, fake.hosts[0].Mounts[0].Source)
}

func TestModel_Run_NonZeroExit(t *testing.T) {
	fake := &fakeAPI{onStart: func(*container.Config, *container.HostConfig) (int64, string) {
		return 2, "KeyError: 'D_Tg'"
	}}
	m := newTestModel(t, fake, ModelOptions{})
	ini, par, forcing := testInputs(t)

	_, err := m.Run(context.Background(), ini, par, forcing, runOpts)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitModelError, cliErr.Code)
	assert.Contains(t, cliErr.Message, "status 2")
	assert.Contains(t, cliErr.Message, "KeyError")
	assert.Len(t, fake.removed, 1, "failed containers are removed too")
}

func TestModel_Run_PullsOnce(t *testing.T) {
	fake := &fakeAPI{onStart: copyIni(t)}
	m := newTestModel(t, fake, ModelOptions{Pull: true})
	ini, par, forcing := testInputs(t)

	for i := 0; i < 2; i++ {
		_, err := m.Run(context.Background(), ini, par, forcing, runOpts)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"oscar-bridge:test"}, fake.pulls)
	assert.Len(t, fake.created, 2)
}

func TestModel_Run_Canceled(t *testing.T) {
	fake := &fakeAPI{block: true}
	m := newTestModel(t, fake, ModelOptions{})
	ini, par, forcing := testInputs(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.Run(ctx, ini, par, forcing, runOpts)

	require.Error(t, err)
	assert.True(t, oscar.IsCanceled(err))
	assert.Len(t, fake.removed, 1, "interrupted containers are removed")
}

func TestHostUser(t *testing.T) {
	if got := hostUser(); got != "" {
		assert.Regexp(t, `^\d+:\d+$`, got)
	}
}
