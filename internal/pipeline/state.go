package pipeline

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// BuildInitialState creates one zero entry per prognostic variable: a
// scalar when it has no core dims, otherwise an array over its core dims.
// Each dimension's coordinate comes from the parameters first, then the
// historical forcing.
func BuildInitialState(prognostic []model.VarSpec, par, forcing *dataset.Dataset) (*dataset.Dataset, error) {
	ini := dataset.New()
	for _, spec := range prognostic {
		v, coords, err := dataset.ZerosOver(spec.Name, spec.CoreDims, par, forcing)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInputError, "cannot build initial state", err)
		}
		for _, c := range coords {
			if _, ok := ini.Coord(c.Dim); ok {
				continue
			}
			if err := ini.SetCoord(c); err != nil {
				return nil, err
			}
		}
		if err := ini.Set(v); err != nil {
			return nil, err
		}
	}
	return ini, nil
}

// HandoffState takes the historical output at year along timeDim, with
// the dimension removed, as the scenario initial state. A year of 0 means
// the last year of the output.
//
// Prognostic variables absent from the output are reported as a warning:
// the model then starts them from its own defaults.
func HandoffState(histOut *dataset.Dataset, timeDim string, year int, prognostic []model.VarSpec, logger *zap.Logger) (*dataset.Dataset, error) {
	if !histOut.HasLabelledCoord(timeDim) {
		return nil, model.NewCLIError(model.ExitModelError,
			fmt.Sprintf("historical output has no %q coordinate", timeDim))
	}

	label := strconv.Itoa(year)
	if year == 0 {
		var err error
		if label, err = histOut.LastLabel(timeDim); err != nil {
			return nil, model.WrapCLIError(model.ExitModelError, "cannot pick handoff year", err)
		}
	}

	ini, err := histOut.SelDrop(timeDim, label)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitModelError,
			fmt.Sprintf("historical output has no %s %s", timeDim, label), err)
	}

	var missing []string
	for _, spec := range prognostic {
		if !ini.Has(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		logger.Warn("prognostic variables not carried into the scenario run",
			zap.String(timeDim, label), zap.Strings("variables", missing))
	}
	return ini, nil
}
