package oscar

import (
	"context"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// RunOptions parameterizes one model invocation.
type RunOptions struct {
	// Period says which half of the run this invocation is.
	Period model.Period

	// Label identifies the run in logs and container labels.
	Label model.RunLabel

	// VarKeep lists the outputs to return.
	VarKeep []string

	// NT is the number of model sub-steps per year.
	NT int
}

// Model is a runnable model with declared prognostic variables.
type Model interface {
	// Name identifies the model build.
	Name() string

	// Prognostic returns the state variables with their core dimensions.
	Prognostic() []model.VarSpec

	// Run integrates the model over the forcing's time axis, starting from
	// ini, and returns the outputs restricted to opts.VarKeep.
	Run(ctx context.Context, ini, par, forcing *dataset.Dataset, opts RunOptions) (*dataset.Dataset, error)
}

// Declaration is the static part of a Model: its name and prognostic
// variables. Backends embed it.
type Declaration struct {
	ModelName string
	Vars      []model.VarSpec
}

// Name returns the model name.
func (d Declaration) Name() string {
	return d.ModelName
}

// Prognostic returns a copy of the declared prognostic variables.
func (d Declaration) Prognostic() []model.VarSpec {
	out := make([]model.VarSpec, len(d.Vars))
	for i, v := range d.Vars {
		out[i] = model.VarSpec{Name: v.Name, CoreDims: append([]string(nil), v.CoreDims...)}
	}
	return out
}
