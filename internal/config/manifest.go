package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// Manifest declares what the external model needs to be set up.
type Manifest struct {
	// Name identifies the model build, e.g. "OSCAR_v3".
	Name string `yaml:"name"`

	// Prognostic lists the model's state variables and their core dims.
	Prognostic []model.VarSpec `yaml:"prognostic"`
}

// LoadManifest reads and validates a model manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("model manifest not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read model manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to parse model manifest", err)
	}
	if len(m.Prognostic) == 0 {
		return nil, model.NewCLIError(model.ExitConfigError, "model manifest declares no prognostic variables")
	}
	if err := model.ValidateVarSpecs(m.Prognostic); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid model manifest", err)
	}
	return &m, nil
}
