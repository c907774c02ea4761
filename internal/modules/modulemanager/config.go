package modulemanager

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ModuleConfig is the on-disk module configuration.
type ModuleConfig struct {
	Modules struct {
		Disabled []string `yaml:"disabled"`
	} `yaml:"modules"`
}

// LoadConfig reads module configuration from a YAML file. A missing file
// yields the default configuration.
func LoadConfig(configPath string) (*ModuleConfig, error) {
	config := &ModuleConfig{}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// GetDefaultConfigPath returns the module config location, preferring the
// working directory over the data directory.
func GetDefaultConfigPath() string {
	if _, err := os.Stat("harmonia-modules.yml"); err == nil {
		return "harmonia-modules.yml"
	}

	dataDir := os.Getenv("HARMONIA_DATA_DIR")
	if dataDir == "" {
		dataDir = "./harmonia-data"
	}
	return filepath.Join(dataDir, "harmonia-modules.yml")
}
