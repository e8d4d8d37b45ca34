package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// ValidationError is one problem found in a run configuration.
type ValidationError struct {
	// Field is the config path of the offending setting (e.g. "run.var_keep").
	Field string

	// Message describes what is wrong.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// Validate checks the configuration and returns every problem found; an
// empty slice means the configuration is usable.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	type setting struct{ field, value string }
	for _, s := range []setting{
		{"paths.parameter_file", c.Paths.ParameterFile},
		{"paths.historical_forcing", c.Paths.HistoricalForcing},
		{"paths.scenario_forcing", c.Paths.ScenarioForcing},
		{"dims.time", c.Dims.Time},
		{"dims.scenario", c.Dims.Scenario},
		{"model.manifest", c.Model.Manifest},
	} {
		if s.value == "" {
			add(s.field, "must be set")
		}
	}
	if c.Dims.Time != "" && c.Dims.Time == c.Dims.Scenario {
		add("dims.scenario", "must differ from dims.time (%q)", c.Dims.Time)
	}

	for _, s := range []setting{
		{"paths.historical_output", c.Paths.HistoricalOutput},
		{"paths.scenario_output", c.Paths.ScenarioOutput},
	} {
		if !strings.Contains(s.value, LabelPlaceholder) {
			add(s.field, "template %q must contain %s", s.value, LabelPlaceholder)
		}
	}
	if c.Paths.HistoricalOutput == c.Paths.ScenarioOutput {
		add("paths.scenario_output", "must differ from paths.historical_output")
	}

	if len(c.Run.VarKeep) == 0 {
		add("run.var_keep", "must list at least one variable")
	}
	if dup := firstDuplicate(c.Run.VarKeep); dup != "" {
		add("run.var_keep", "variable %q listed twice", dup)
	}
	if dup := firstDuplicate(c.Run.ExcludedScenarios); dup != "" {
		add("run.excluded_scenarios", "scenario %q listed twice", dup)
	}
	if c.Run.ScenarioStart > c.Run.ScenarioEnd {
		add("run.scenario_start", "%d is after run.scenario_end %d", c.Run.ScenarioStart, c.Run.ScenarioEnd)
	}
	if c.Run.HandoffYear < 0 {
		add("run.handoff_year", "must not be negative")
	}
	if c.Run.HistoricalNT <= 0 {
		add("run.historical_nt", "must be positive, got %d", c.Run.HistoricalNT)
	}
	if c.Run.ScenarioNT <= 0 {
		add("run.scenario_nt", "must be positive, got %d", c.Run.ScenarioNT)
	}
	for i, b := range c.Run.Backfill {
		if b.Name == "" {
			add(fmt.Sprintf("run.backfill[%d].name", i), "must be set")
		}
	}

	backend, err := model.ParseBackend(c.Model.Backend)
	if err != nil {
		add("model.backend", "%v", err)
	}
	switch backend {
	case model.BackendExec:
		if len(c.Model.Command) == 0 || c.Model.Command[0] == "" {
			add("model.command", "required for the exec backend")
		}
	case model.BackendDocker:
		if c.Model.Image == "" {
			add("model.image", "required for the docker backend")
		}
	}
	for _, kv := range c.Model.Env {
		if !strings.Contains(kv, "=") {
			add("model.env", "%q is not KEY=VALUE", kv)
		}
	}
	if c.Model.Timeout != "" {
		if d, err := time.ParseDuration(c.Model.Timeout); err != nil || d < 0 {
			add("model.timeout", "%q is not a non-negative duration", c.Model.Timeout)
		}
	}

	if err := c.Output.Validate(); err != nil {
		add("output", "%v", err)
	}
	return errs
}

// Err folds the validation result into a single CLIError, or nil when the
// configuration is valid.
func (c *Config) Err() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i := range errs {
		msgs[i] = errs[i].Field + ": " + errs[i].Message
	}
	return model.NewCLIError(model.ExitConfigError,
		fmt.Sprintf("invalid configuration:\n  %s", strings.Join(msgs, "\n  ")))
}

func firstDuplicate(items []string) string {
	seen := make(map[string]bool, len(items))
	for _, s := range items {
		if seen[s] {
			return s
		}
		seen[s] = true
	}
	return ""
}
