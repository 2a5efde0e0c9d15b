package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderSeed is the YAML shape of one llm_providers row bootstrapped from
// ProviderSeedPath, mirroring repositories.ProviderConfig's exported fields
// without importing pkg/repositories (config stays dependency-light).
type ProviderSeed struct {
	Name            string            `yaml:"name"`
	Kind            string            `yaml:"kind"`
	Endpoint        string            `yaml:"endpoint,omitempty"`
	APIKeyEnv       string            `yaml:"apiKeyEnv,omitempty"`
	ModelName       string            `yaml:"modelName"`
	MaxTokens       int               `yaml:"maxTokens"`
	Temperature     float64           `yaml:"temperature"`
	IsActive        bool              `yaml:"isActive"`
	Priority        int               `yaml:"priority"`
	CostPer1kTokens float64           `yaml:"costPer1kTokens"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
}

// LoadProviderSeed reads a YAML document of ProviderSeed entries from path.
// A missing file is not an error; it returns an empty slice so callers can
// treat "no seed configured" and "seed file absent" identically.
func LoadProviderSeed(path string) ([]ProviderSeed, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var seeds []ProviderSeed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, err
	}
	return seeds, nil
}
