// Package config loads chimera's YAML configuration with strict key
// checking: an unknown key is a startup error, not a silent ignore. Flags
// override file values; validation runs on the merged result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"chimera/pkg/logging"
)

const subsystem = "ConfigLoader"

// Load reads config.yaml from configPath on top of the defaults. A missing
// file is fine; a malformed or unknown-key file is not.
func Load(configPath string) (Config, error) {
	cfg := Default()

	configFilePath := filepath.Join(configPath, configFileName)
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info(subsystem, "No config.yaml found at %s, using defaults", configFilePath)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config from %s: %w", configFilePath, err)
	}

	if err := decodeStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config from %s: %w", configFilePath, err)
	}
	logging.Info(subsystem, "Loaded configuration from %s", configFilePath)
	return cfg, nil
}

// decodeStrict unmarshals YAML rejecting unknown keys.
func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the merged configuration. Called after flag overrides.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config field %s fails rule %q (value %v)",
				first.Field(), first.Tag(), first.Value())
		}
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}
