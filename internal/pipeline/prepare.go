package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/config"
	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// InferLabel derives the run label from a parameter file name of the form
// Pars_<model>_500_<sim>.nc.
func InferLabel(parameterFile string) (model.RunLabel, error) {
	label, err := model.ParseParameterFileName(parameterFile)
	if err != nil {
		return model.RunLabel{}, model.WrapCLIError(model.ExitInputError, "cannot infer run label", err)
	}
	return label, nil
}

// Parameters is the result of PrepareParameters.
type Parameters struct {
	// Set is the merged parameter dataset.
	Set *dataset.Dataset

	// Backfilled lists the parameters that were absent and defaulted.
	Backfilled []string

	// DroppedTimeVars lists parameter-file variables over the time
	// dimension, which were removed.
	DroppedTimeVars []string
}

// PrepareParameters merges the static parameters with the variables of the
// historical forcing that do not vary in time, then sets each backfill
// parameter that is still missing.
//
// Variables over timeDim in the parameter file are removed with a warning,
// so the result never holds a time-varying variable. A backfilled value
// can hide a missing calibration, so each one is logged as a warning.
func PrepareParameters(par, hist *dataset.Dataset, timeDim string, backfill []config.Backfill, logger *zap.Logger) (*Parameters, error) {
	parTime, parStatic := par.Split(timeDim)
	dropped := parTime.Names()
	if len(dropped) > 0 {
		logger.Warn("dropping time-varying variables from the parameter file",
			zap.String("dim", timeDim), zap.Strings("variables", dropped))
	}

	_, histStatic := hist.Split(timeDim)
	merged, err := dataset.Merge(parStatic, histStatic)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInputError,
			"cannot merge parameters with the static historical forcing", err)
	}

	var backfilled []string
	for _, b := range backfill {
		if merged.Has(b.Name) {
			continue
		}
		v := dataset.NewScalar(b.Name, b.Value)
		if b.Units != "" {
			v.Attrs = map[string]string{"units": b.Units}
		}
		if err := merged.Set(v); err != nil {
			return nil, err
		}
		backfilled = append(backfilled, b.Name)
		logger.Warn("parameter missing, using default",
			zap.String("parameter", b.Name), zap.Float64("value", b.Value))
	}

	return &Parameters{Set: merged, Backfilled: backfilled, DroppedTimeVars: dropped}, nil
}

// TrimForcing keeps only the variables of the historical forcing that vary
// along timeDim.
func TrimForcing(hist *dataset.Dataset, timeDim string) (*dataset.Dataset, error) {
	with, _ := hist.Split(timeDim)
	if with.Len() == 0 {
		return nil, model.NewCLIError(model.ExitInputError,
			fmt.Sprintf("historical forcing has no variable over %q", timeDim))
	}
	return with, nil
}

// ScenarioWindow selects the scenario forcing.
type ScenarioWindow struct {
	TimeDim     string
	ScenarioDim string
	Excluded    []string
	Start, End  int
}

// PrepareScenario drops the excluded scenarios and keeps the years in
// [Start, End].
func PrepareScenario(scen *dataset.Dataset, w ScenarioWindow) (*dataset.Dataset, error) {
	out := scen
	if len(w.Excluded) > 0 {
		var err error
		out, err = scen.DropSel(w.ScenarioDim, w.Excluded)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInputError, "cannot drop excluded scenarios", err)
		}
	}

	out, err := out.SelRange(w.TimeDim, float64(w.Start), float64(w.End))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInputError, "cannot select scenario years", err)
	}
	if c, _ := out.Coord(w.TimeDim); c.Len == 0 {
		return nil, model.NewCLIError(model.ExitInputError,
			fmt.Sprintf("scenario forcing has no %s in [%d, %d]", w.TimeDim, w.Start, w.End))
	}
	return out, nil
}

// Scenarios returns the scenario labels of a prepared scenario forcing.
func Scenarios(scen *dataset.Dataset, scenarioDim string) []string {
	c, ok := scen.Coord(scenarioDim)
	if !ok {
		return nil
	}
	return c.Labels()
}
