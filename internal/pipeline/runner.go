package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/config"
	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/ncio"
	"github.com/mmr-tortoise/oscar-runner/internal/oscar"
)

// Prepared holds everything a run needs before the model is called.
type Prepared struct {
	Label         model.RunLabel
	ParameterFile string

	Parameters *Parameters
	Historical *dataset.Dataset
	Scenario   *dataset.Dataset
	Initial    *dataset.Dataset

	HistoricalOutput string
	ScenarioOutput   string
}

// Runner executes runs against one model with one configuration. A Runner
// is safe for concurrent use; forcing files are read once and shared.
type Runner struct {
	cfg    *config.Config
	model  oscar.Model
	logger *zap.Logger
	cache  *inputCache
}

// NewRunner creates a Runner.
func NewRunner(cfg *config.Config, m oscar.Model, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, model: m, logger: logger, cache: newInputCache()}
}

// Run prepares and executes the run for one parameter file.
func (r *Runner) Run(ctx context.Context, parameterFile string) (*model.RunResult, error) {
	p, err := r.Prepare(parameterFile)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, p)
}

// Prepare reads the inputs and builds the datasets of a run without
// calling the model.
func (r *Runner) Prepare(parameterFile string) (*Prepared, error) {
	label, err := InferLabel(parameterFile)
	if err != nil {
		return nil, err
	}
	log := r.logger.With(zap.String("run_label", label.String()))

	par, err := readInput(parameterFile)
	if err != nil {
		return nil, err
	}
	hist, err := r.cache.load(r.cfg.HistoricalForcingPath())
	if err != nil {
		return nil, err
	}
	scen, err := r.cache.load(r.cfg.ScenarioForcingPath())
	if err != nil {
		return nil, err
	}

	timeDim := r.cfg.Dims.Time
	params, err := PrepareParameters(par, hist, timeDim, r.cfg.Run.Backfill, log)
	if err != nil {
		return nil, err
	}
	histForcing, err := TrimForcing(hist, timeDim)
	if err != nil {
		return nil, err
	}
	scenForcing, err := PrepareScenario(scen, ScenarioWindow{
		TimeDim:     timeDim,
		ScenarioDim: r.cfg.Dims.Scenario,
		Excluded:    r.cfg.Run.ExcludedScenarios,
		Start:       r.cfg.Run.ScenarioStart,
		End:         r.cfg.Run.ScenarioEnd,
	})
	if err != nil {
		return nil, err
	}
	ini, err := BuildInitialState(r.model.Prognostic(), params.Set, histForcing)
	if err != nil {
		return nil, err
	}

	log.Debug("run prepared",
		zap.Int("parameters", params.Set.Len()),
		zap.Int("historical_forcing", histForcing.Len()),
		zap.Int("scenario_forcing", scenForcing.Len()),
		zap.Int("prognostic", ini.Len()),
	)

	return &Prepared{
		Label:            label,
		ParameterFile:    parameterFile,
		Parameters:       params,
		Historical:       histForcing,
		Scenario:         scenForcing,
		Initial:          ini,
		HistoricalOutput: r.cfg.OutputPath(model.PeriodHistorical, label),
		ScenarioOutput:   r.cfg.OutputPath(model.PeriodScenario, label),
	}, nil
}

// Execute runs the historical period, writes its output, hands the state
// over and runs the scenario period.
func (r *Runner) Execute(ctx context.Context, p *Prepared) (*model.RunResult, error) {
	log := r.logger.With(zap.String("run_label", p.Label.String()))
	varKeep := r.cfg.Run.VarKeep

	log.Info("starting historical run", zap.Int("nt", r.cfg.Run.HistoricalNT))
	outHist, err := r.model.Run(ctx, p.Initial, p.Parameters.Set, p.Historical, oscar.RunOptions{
		Period:  model.PeriodHistorical,
		Label:   p.Label,
		VarKeep: varKeep,
		NT:      r.cfg.Run.HistoricalNT,
	})
	if err != nil {
		return nil, modelError(model.PeriodHistorical, err)
	}
	if err := r.writeOutput(p.HistoricalOutput, outHist); err != nil {
		return nil, err
	}
	log.Info("historical output written", zap.String("path", p.HistoricalOutput))

	ini, err := HandoffState(outHist, r.cfg.Dims.Time, r.cfg.Run.HandoffYear, r.model.Prognostic(), log)
	if err != nil {
		return nil, err
	}

	log.Info("starting scenario run", zap.Int("nt", r.cfg.Run.ScenarioNT))
	outScen, err := r.model.Run(ctx, ini, p.Parameters.Set, p.Scenario, oscar.RunOptions{
		Period:  model.PeriodScenario,
		Label:   p.Label,
		VarKeep: varKeep,
		NT:      r.cfg.Run.ScenarioNT,
	})
	if err != nil {
		return nil, modelError(model.PeriodScenario, err)
	}
	if err := r.writeOutput(p.ScenarioOutput, outScen); err != nil {
		return nil, err
	}
	log.Info("scenario output written", zap.String("path", p.ScenarioOutput))

	return &model.RunResult{
		Label:            p.Label,
		ParameterFile:    p.ParameterFile,
		HistoricalOutput: p.HistoricalOutput,
		ScenarioOutput:   p.ScenarioOutput,
		Backfilled:       p.Parameters.Backfilled,
		Scenarios:        Scenarios(p.Scenario, r.cfg.Dims.Scenario),
	}, nil
}

// WriteInitialState writes the initial state of a prepared run.
func (r *Runner) WriteInitialState(p *Prepared, path string) error {
	return writeDataset(path, p.Initial, ncio.StagingEncoding())
}

func (r *Runner) writeOutput(path string, ds *dataset.Dataset) error {
	return writeDataset(path, ds, r.cfg.Output)
}

func writeDataset(path string, ds *dataset.Dataset, enc ncio.Encoding) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.WrapCLIError(model.ExitOutputError,
				fmt.Sprintf("failed to create output directory %s", dir), err)
		}
	}
	if err := ncio.Write(path, ds, enc); err != nil {
		return model.WrapCLIError(model.ExitOutputError,
			fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

// modelError keeps a CLIError from the backend and classifies anything
// else as a model failure.
func modelError(period model.Period, err error) error {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return err
	}
	return model.WrapCLIError(model.ExitModelError, fmt.Sprintf("%s run failed", period), err)
}

// readInput loads an input netCDF file, classifying failures as input
// errors.
func readInput(path string) (*dataset.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, model.WrapCLIError(model.ExitInputError,
			fmt.Sprintf("input file not found: %s", path), err)
	}
	ds, err := ncio.Read(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInputError,
			fmt.Sprintf("failed to read %s", path), err)
	}
	return ds, nil
}

// inputCache reads each forcing file at most once, even when several runs
// ask for it concurrently. Cached datasets are shared read-only.
type inputCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	ds   *dataset.Dataset
	err  error
}

func newInputCache() *inputCache {
	return &inputCache{entries: make(map[string]*cacheEntry)}
}

func (c *inputCache) load(path string) (*dataset.Dataset, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &cacheEntry{}
		c.entries[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.ds, e.err = readInput(path)
	})
	return e.ds, e.err
}
