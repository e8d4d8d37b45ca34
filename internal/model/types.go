package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Period identifies which of the two model invocations of a run is meant.
// A run always executes PeriodHistorical first, then PeriodScenario, whose
// initial state is taken from the historical output.
type Period string

const (
	// PeriodHistorical is the run over the fixed past forcing period.
	PeriodHistorical Period = "historical"

	// PeriodScenario is the run over the selected scenario years.
	PeriodScenario Period = "scenario"
)

// String returns the string representation of Period.
func (p Period) String() string {
	return string(p)
}

// IsValid checks whether the Period value is one of the predefined periods.
func (p Period) IsValid() bool {
	switch p {
	case PeriodHistorical, PeriodScenario:
		return true
	default:
		return false
	}
}

// ParsePeriod converts a string to a Period.
// Returns an error if the string does not match any valid period.
func ParsePeriod(s string) (Period, error) {
	period := Period(strings.ToLower(s))
	if !period.IsValid() {
		return "", fmt.Errorf("invalid period: %q (valid: historical, scenario)", s)
	}
	return period, nil
}

// Backend selects how the external model is invoked.
type Backend string

const (
	// BackendExec runs the model bridge as a local subprocess.
	BackendExec Backend = "exec"

	// BackendDocker runs the model bridge inside a container through the
	// Docker Engine API.
	BackendDocker Backend = "docker"
)

// String returns the string representation of Backend.
func (b Backend) String() string {
	return string(b)
}

// IsValid checks whether the Backend value is one of the known backends.
func (b Backend) IsValid() bool {
	return b == BackendExec || b == BackendDocker
}

// ParseBackend converts a string to a Backend.
func ParseBackend(s string) (Backend, error) {
	backend := Backend(strings.ToLower(s))
	if !backend.IsValid() {
		return "", fmt.Errorf("invalid backend: %q (valid: exec, docker)", s)
	}
	return backend, nil
}

// RunLabel identifies a simulation by the land model the parameters were
// calibrated against and the ensemble member code, e.g. JSBACH and "a".
// Output files are named after String().
type RunLabel struct {
	// Model is the land model name, which may itself contain underscores
	// (e.g. "JULES_DR").
	Model string `json:"model"`

	// Sim is the simulation code taken from the last underscore-separated
	// part of the parameter file name.
	Sim string `json:"sim"`
}

// String returns "<Model>_<Sim>".
func (l RunLabel) String() string {
	return l.Model + "_" + l.Sim
}

// parameterFileRegex captures the model label of a parameter file name.
// The match is anchored at the start of the name and non-greedy, so
// "Pars_JULES_DR_500_b.nc" yields "JULES_DR".
var parameterFileRegex = regexp.MustCompile(`^Pars_(.+?)_500_`)

// ParseParameterFileName infers the RunLabel from a parameter file path
// following the pattern Pars_<model>_500_<sim>.nc.
//
// Only the base name is inspected. The model part comes from the pattern
// match; the sim part is the last "_"-separated token of the name without
// its extension.
func ParseParameterFileName(path string) (RunLabel, error) {
	fileName := filepath.Base(path)
	match := parameterFileRegex.FindStringSubmatch(fileName)
	if match == nil {
		return RunLabel{}, fmt.Errorf("parameter file name %q does not match Pars_<model>_500_<sim>.nc", fileName)
	}

	baseName := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	parts := strings.Split(baseName, "_")
	sim := parts[len(parts)-1]
	if sim == "" {
		return RunLabel{}, fmt.Errorf("parameter file name %q has an empty simulation code", fileName)
	}

	return RunLabel{Model: match[1], Sim: sim}, nil
}

// ParseRunLabel is the inverse of RunLabel.String. The sim code never
// contains an underscore, so the split happens at the last one.
func ParseRunLabel(s string) (RunLabel, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 || i == len(s)-1 {
		return RunLabel{}, fmt.Errorf("invalid run label: %q (expected <model>_<sim>)", s)
	}
	return RunLabel{Model: s[:i], Sim: s[i+1:]}, nil
}

// VarSpec declares one prognostic variable of the external model and the
// named axes it is defined over. An empty CoreDims means a scalar.
type VarSpec struct {
	// Name is the model variable name (e.g. "D_Tg").
	Name string `json:"name" yaml:"name" toml:"name"`

	// CoreDims lists the dimensions of the variable in declaration order.
	CoreDims []string `json:"core_dims,omitempty" yaml:"core_dims,omitempty" toml:"core_dims"`
}

// IsScalar reports whether the variable has no core dimensions.
func (v VarSpec) IsScalar() bool {
	return len(v.CoreDims) == 0
}

// ValidateVarSpecs checks a prognostic declaration for empty names and
// duplicates. A model that declares the same variable twice would produce
// an ambiguous initial state.
func ValidateVarSpecs(specs []VarSpec) error {
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("prognostic variable #%d has an empty name", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("prognostic variable %q is declared twice", spec.Name)
		}
		seen[spec.Name] = true

		dims := make(map[string]bool, len(spec.CoreDims))
		for _, d := range spec.CoreDims {
			if d == "" {
				return fmt.Errorf("prognostic variable %q has an empty core dimension", spec.Name)
			}
			if dims[d] {
				return fmt.Errorf("prognostic variable %q repeats core dimension %q", spec.Name, d)
			}
			dims[d] = true
		}
	}
	return nil
}

// RunResult summarizes a completed run for CLI output.
type RunResult struct {
	// Label is the inferred run label.
	Label RunLabel `json:"label"`

	// ParameterFile is the parameter file the run used.
	ParameterFile string `json:"parameterFile"`

	// HistoricalOutput is the path of the written historical output.
	HistoricalOutput string `json:"historicalOutput"`

	// ScenarioOutput is the path of the written scenario output.
	ScenarioOutput string `json:"scenarioOutput"`

	// Backfilled lists the parameters that were absent and set to zero.
	Backfilled []string `json:"backfilled,omitempty"`

	// Scenarios lists the scenario labels that were run.
	Scenarios []string `json:"scenarios,omitempty"`
}

// ContainerInfo describes a container started by the docker backend,
// reconstructed from its labels.
type ContainerInfo struct {
	// ContainerID is the Docker container ID.
	ContainerID string `json:"containerId"`

	// ContainerName is the container name without the leading "/".
	ContainerName string `json:"containerName"`

	// Status is the Docker state, e.g. "running" or "exited".
	Status string `json:"status"`

	// RunLabel is the run the container belongs to.
	RunLabel string `json:"runLabel"`

	// Period is the run period the container executed.
	Period string `json:"period"`

	// CreatedAt is the creation time recorded in the labels.
	CreatedAt time.Time `json:"createdAt"`

	// Labels holds all Docker labels of the container.
	Labels map[string]string `json:"labels,omitempty"`
}

// ExitCode defines standard CLI exit codes.
// These codes allow scripts and batch schedulers to programmatically
// determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the configuration file or a flag is invalid.
	ExitConfigError ExitCode = 2

	// ExitInputError indicates an input file is missing, its name does not
	// match the expected pattern, or an expected variable or dimension is
	// absent.
	ExitInputError ExitCode = 3

	// ExitModelError indicates the external model failed or produced
	// unreadable output.
	ExitModelError ExitCode = 4

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 5

	// ExitOutputError indicates an output file could not be written.
	ExitOutputError ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
