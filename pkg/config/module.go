package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DEFAULT []byte

func decode(data []byte, config *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(config)
}

func readFile(path string, config *Config) error {
	// Check if this is a valid file
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("does not exist")
	}

	switch filepath.Ext(path) {
	// JSON is a subset of YAML
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return decode(data, config)
	}

	return fmt.Errorf(
		"not in a valid format",
	)
}

// Process starts from the default configuration and applies the provided
// configuration files in order, each overriding only the values it sets.
// The result is validated before it is returned.
func Process(configPaths []string) (*Config, error) {
	config := Config{}
	if err := decode(DEFAULT, &config); err != nil {
		return nil, fmt.Errorf(
			"invalid default config file: %v",
			err,
		)
	}

	for _, path := range configPaths {
		if err := readFile(path, &config); err != nil {
			return nil, fmt.Errorf(
				"could not process config file %s: %w",
				path,
				err,
			)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config is not valid: %w", err)
	}

	return &config, nil
}

// Dump renders a configuration the way Process reads it.
func Dump(config *Config) ([]byte, error) {
	return yaml.Marshal(config)
}
