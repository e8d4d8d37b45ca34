package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/ncio"
)

// LabelPlaceholder is replaced by the run label in output name templates.
const LabelPlaceholder = "{label}"

// Config is the full run configuration.
type Config struct {
	// Paths locates inputs and outputs.
	Paths Paths `json:"paths" yaml:"paths" toml:"paths"`

	// Dims names the dimensions the run procedure operates on.
	Dims Dims `json:"dims" yaml:"dims" toml:"dims"`

	// Run holds the run-procedure settings.
	Run Run `json:"run" yaml:"run" toml:"run"`

	// Model selects and configures the model backend.
	Model Model `json:"model" yaml:"model" toml:"model"`

	// Output controls how result files are encoded.
	Output ncio.Encoding `json:"output" yaml:"output" toml:"output"`
}

// Paths locates the input and output files. Relative forcing file names
// are resolved against InputDir.
type Paths struct {
	InputDir          string `json:"input_dir" yaml:"input_dir" toml:"input_dir"`
	ParameterFile     string `json:"parameter_file" yaml:"parameter_file" toml:"parameter_file"`
	HistoricalForcing string `json:"historical_forcing" yaml:"historical_forcing" toml:"historical_forcing"`
	ScenarioForcing   string `json:"scenario_forcing" yaml:"scenario_forcing" toml:"scenario_forcing"`
	OutputDir         string `json:"output_dir" yaml:"output_dir" toml:"output_dir"`

	// HistoricalOutput and ScenarioOutput are file name templates
	// containing LabelPlaceholder.
	HistoricalOutput string `json:"historical_output" yaml:"historical_output" toml:"historical_output"`
	ScenarioOutput   string `json:"scenario_output" yaml:"scenario_output" toml:"scenario_output"`
}

// Dims names the time and scenario dimensions.
type Dims struct {
	Time     string `json:"time" yaml:"time" toml:"time"`
	Scenario string `json:"scenario" yaml:"scenario" toml:"scenario"`
}

// Backfill is a scalar parameter set when the merged parameters lack it.
type Backfill struct {
	Name  string  `json:"name" yaml:"name" toml:"name"`
	Value float64 `json:"value" yaml:"value" toml:"value"`
	Units string  `json:"units" yaml:"units" toml:"units"`
}

// Run holds the settings of the two-period run.
type Run struct {
	// VarKeep lists the model outputs kept in both periods.
	VarKeep []string `json:"var_keep" yaml:"var_keep" toml:"var_keep"`

	// ExcludedScenarios are dropped from the scenario forcing by label.
	ExcludedScenarios []string `json:"excluded_scenarios" yaml:"excluded_scenarios" toml:"excluded_scenarios"`

	// ScenarioStart and ScenarioEnd bound the scenario years, inclusive.
	ScenarioStart int `json:"scenario_start" yaml:"scenario_start" toml:"scenario_start"`
	ScenarioEnd   int `json:"scenario_end" yaml:"scenario_end" toml:"scenario_end"`

	// HandoffYear is the historical year whose state seeds the scenario
	// run. Zero means the last year of the historical output.
	HandoffYear int `json:"handoff_year" yaml:"handoff_year" toml:"handoff_year"`

	// HistoricalNT and ScenarioNT are the model's sub-steps per year.
	HistoricalNT int `json:"historical_nt" yaml:"historical_nt" toml:"historical_nt"`
	ScenarioNT   int `json:"scenario_nt" yaml:"scenario_nt" toml:"scenario_nt"`

	// Backfill lists parameters defaulted when absent.
	Backfill []Backfill `json:"backfill" yaml:"backfill" toml:"backfill"`
}

// Model configures the external model and how it is reached.
type Model struct {
	// Manifest is the path of the model manifest (YAML).
	Manifest string `json:"manifest" yaml:"manifest" toml:"manifest"`

	// Backend is "exec" or "docker".
	Backend string `json:"backend" yaml:"backend" toml:"backend"`

	// Command is the bridge command; bridge arguments are appended. For the
	// docker backend it overrides the image entrypoint arguments.
	Command []string `json:"command" yaml:"command" toml:"command"`

	// Image is the container image of the docker backend.
	Image string `json:"image" yaml:"image" toml:"image"`

	// Pull pulls the image before the first run.
	Pull bool `json:"pull" yaml:"pull" toml:"pull"`

	// Keep leaves finished containers in place for inspection.
	Keep bool `json:"keep" yaml:"keep" toml:"keep"`

	// Env is passed to the bridge as KEY=VALUE pairs.
	Env []string `json:"env" yaml:"env" toml:"env"`

	// WorkRoot is where per-invocation work directories are created.
	// Empty means the system temp directory.
	WorkRoot string `json:"work_root" yaml:"work_root" toml:"work_root"`

	// KeepWork leaves work directories in place after a run.
	KeepWork bool `json:"keep_work" yaml:"keep_work" toml:"keep_work"`

	// Timeout bounds one model invocation, as a Go duration. Empty means
	// no limit.
	Timeout string `json:"timeout" yaml:"timeout" toml:"timeout"`
}

// DefaultVarKeep is the stock list of model outputs kept on disk.
var DefaultVarKeep = []string{
	"D_Tg", "Eff", "D_Eluc",
	"D_Cfroz", "D_Cthaw",
	"D_Epf_CO2", "D_Epf_CH4",
	"D_CO2_ab_pf", "D_CH4_ab_pf",
	"D_Eburn_net_CO2", "D_Eburn_net_CH4",
	"D_FA_CO2", "D_FA_CH4",
	"D_Epf_CO2_fire", "D_Epf_CH4_fire",
}

// DefaultExcludedScenarios are the scenarios the exceedance run skips.
var DefaultExcludedScenarios = []string{
	"SSP1-1.9", "SSP3-7.0", "SSP3-7.0-LowNTCF", "SSP4-3.4", "SSP5-3.4-OS",
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Paths: Paths{
			InputDir:          "input_data/drivers/",
			ParameterFile:     "input_data/parameters/Pars_JSBACH_500_a.nc",
			HistoricalForcing: "For_hist_E_driven.nc",
			ScenarioForcing:   "For_scen_E_driven.nc",
			OutputDir:         "output_data/",
			HistoricalOutput:  "Out_hist_ex_E_" + LabelPlaceholder + ".nc",
			ScenarioOutput:    "Out_scen_exceedance_E_" + LabelPlaceholder + ".nc",
		},
		Dims: Dims{Time: "year", Scenario: "scen"},
		Run: Run{
			VarKeep:           append([]string(nil), DefaultVarKeep...),
			ExcludedScenarios: append([]string(nil), DefaultExcludedScenarios...),
			ScenarioStart:     2014,
			ScenarioEnd:       2020,
			HandoffYear:       2014,
			HistoricalNT:      2,
			ScenarioNT:        20,
			Backfill: []Backfill{
				{Name: "p_CO2_burn", Value: 0, Units: "1"},
				{Name: "p_CH4_burn", Value: 0, Units: "1"},
			},
		},
		Model: Model{
			Manifest: "oscar-manifest.yaml",
			Backend:  string(model.BackendExec),
			Command:  []string{"python3", "-m", "oscar_bridge"},
		},
		Output: ncio.OutputEncoding(),
	}
}

// Load reads a config file, choosing the decoder by extension, and
// overlays it on Default.
//
// Returns a CLIError with ExitConfigError when the file is missing or
// cannot be decoded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to parse config %s", path), err)
	}
	return cfg, nil
}

// decode unmarshals data into cfg according to the file extension.
func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		// An empty document decodes to io.EOF in yaml.v3; treat it as "no
		// overrides".
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return yaml.Unmarshal(data, cfg)
	case ".json", ".jsonc":
		clean := jsonc.ToJSON(data)
		if len(bytes.TrimSpace(clean)) == 0 {
			return nil
		}
		return json.Unmarshal(clean, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return fmt.Errorf("unsupported config extension %q (use .yaml, .yml, .json, .jsonc or .toml)", ext)
	}
}

// configNames are searched in order by FindConfig.
var configNames = []string{
	"oscar-runner.yaml",
	"oscar-runner.yml",
	"oscar-runner.jsonc",
	"oscar-runner.json",
	"oscar-runner.toml",
}

// FindConfig looks for a config file in dir. It returns "" without error
// when none exists, since every setting has a default.
func FindConfig(dir string) (string, error) {
	for _, name := range configNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to check %s: %w", p, err)
		}
	}
	return "", nil
}

// HistoricalForcingPath resolves the historical forcing file.
func (c *Config) HistoricalForcingPath() string {
	return c.inputPath(c.Paths.HistoricalForcing)
}

// ScenarioForcingPath resolves the scenario forcing file.
func (c *Config) ScenarioForcingPath() string {
	return c.inputPath(c.Paths.ScenarioForcing)
}

func (c *Config) inputPath(name string) string {
	if filepath.IsAbs(name) || c.Paths.InputDir == "" {
		return name
	}
	return filepath.Join(c.Paths.InputDir, name)
}

// OutputPath returns the output file of the given period for a label.
func (c *Config) OutputPath(period model.Period, label model.RunLabel) string {
	tmpl := c.Paths.HistoricalOutput
	if period == model.PeriodScenario {
		tmpl = c.Paths.ScenarioOutput
	}
	return filepath.Join(c.Paths.OutputDir, strings.ReplaceAll(tmpl, LabelPlaceholder, label.String()))
}

// BackendKind returns the parsed backend. Validate reports invalid values.
func (c *Config) BackendKind() model.Backend {
	b, _ := model.ParseBackend(c.Model.Backend)
	return b
}

// ModelTimeout returns the parsed per-invocation timeout, zero when unset.
func (c *Config) ModelTimeout() time.Duration {
	if c.Model.Timeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Model.Timeout)
	return d
}
