// Package cli: settings.go resolves the run configuration and builds the
// model backend shared by the run, batch and init-state commands.
package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/config"
	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/docker"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/oscar"
)

// pathFlags are the per-command overrides of config paths. Empty values
// leave the config untouched.
type pathFlags struct {
	par     string
	hist    string
	scen    string
	out     string
	backend string
}

// loadConfig resolves the config file (--config, else a file found in the
// working directory, else the defaults), applies the flag overrides and
// validates the result.
func loadConfig(overrides pathFlags) (*config.Config, error) {
	path := configPath
	if path == "" {
		found, err := config.FindConfig(".")
		if err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError, "failed to look for a config file", err)
		}
		path = found
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
		VerboseLog("Loaded config from %s", path)
	}

	if overrides.par != "" {
		cfg.Paths.ParameterFile = overrides.par
	}
	if overrides.hist != "" {
		cfg.Paths.HistoricalForcing = overrides.hist
	}
	if overrides.scen != "" {
		cfg.Paths.ScenarioForcing = overrides.scen
	}
	if overrides.out != "" {
		cfg.Paths.OutputDir = overrides.out
	}
	if overrides.backend != "" {
		cfg.Model.Backend = overrides.backend
	}

	if err := cfg.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDeclaration reads the model manifest named by the config.
func loadDeclaration(cfg *config.Config) (oscar.Declaration, error) {
	m, err := config.LoadManifest(cfg.Model.Manifest)
	if err != nil {
		return oscar.Declaration{}, err
	}
	VerboseLog("Model %s declares %d prognostic variables", m.Name, len(m.Prognostic))
	return oscar.Declaration{ModelName: m.Name, Vars: m.Prognostic}, nil
}

// newModel builds the configured backend. The returned release function
// frees backend resources and must be called once the model is no
// longer used.
func newModel(ctx context.Context, cfg *config.Config, log *zap.Logger) (oscar.Model, func(), error) {
	decl, err := loadDeclaration(cfg)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.BackendKind() {
	case model.BackendDocker:
		cli, err := docker.NewClient()
		if err != nil {
			return nil, nil, err
		}
		if err := cli.Ping(ctx); err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		VerboseLog("Connected to Docker daemon")

		m, err := docker.NewModel(cli, decl, docker.ModelOptions{
			Image:    cfg.Model.Image,
			Command:  cfg.Model.Command,
			Env:      cfg.Model.Env,
			Pull:     cfg.Model.Pull,
			Keep:     cfg.Model.Keep,
			WorkRoot: cfg.Model.WorkRoot,
			KeepWork: cfg.Model.KeepWork,
			Timeout:  cfg.ModelTimeout(),
		}, log)
		if err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		return m, func() { _ = cli.Close() }, nil

	case model.BackendExec:
		m, err := oscar.NewExecModel(decl, oscar.ExecOptions{
			Command:  cfg.Model.Command,
			Env:      cfg.Model.Env,
			WorkRoot: cfg.Model.WorkRoot,
			KeepWork: cfg.Model.KeepWork,
			Timeout:  cfg.ModelTimeout(),
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil

	default:
		return nil, nil, model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("unknown backend %q", cfg.Model.Backend))
	}
}

// errNoModel is returned by declaredModel.Run.
var errNoModel = errors.New("model is not invoked in this mode")

// declaredModel is a model known only by its declaration. It serves the
// commands that prepare inputs without running anything, so that they need
// neither a bridge command nor a Docker daemon.
type declaredModel struct {
	oscar.Declaration
}

func (declaredModel) Run(context.Context, *dataset.Dataset, *dataset.Dataset, *dataset.Dataset, oscar.RunOptions) (*dataset.Dataset, error) {
	return nil, errNoModel
}
