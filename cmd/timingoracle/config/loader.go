// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// configValidate checks struct tags on the loaded configuration.
var configValidate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns ~/.timingoracle/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".timingoracle", "config.yaml"), nil
}

// Load reads and validates the configuration at path.
//
// # Description
//
// An empty path means DefaultPath. A missing file at the default path is
// created with DefaultConfig on first use; a missing explicit path is an
// error. Keys absent from the file keep their default values.
//
// # Outputs
//
//   - TimingOracleConfig: The merged configuration
//   - string: The path that was read
//   - error: Non-nil on I/O, parse or validation failure
func Load(path string) (TimingOracleConfig, string, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return TimingOracleConfig{}, "", err
		}
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if explicit {
			return TimingOracleConfig{}, path, fmt.Errorf("config file %s does not exist", path)
		}
		if err := createDefault(path); err != nil {
			return TimingOracleConfig{}, path, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return TimingOracleConfig{}, path, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return TimingOracleConfig{}, path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (TimingOracleConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TimingOracleConfig{}, fmt.Errorf("failed to parse the config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return TimingOracleConfig{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags and cross-field rules.
func Validate(cfg TimingOracleConfig) error {
	if err := configValidate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if !finite(cfg.Instrument.Divisor) {
		return errors.New("invalid config: instrument.divisor must be finite")
	}
	if !finite(cfg.Simulator.Jitter) {
		return errors.New("invalid config: simulator.jitter must be finite")
	}
	if _, err := cfg.Cracker.Symbols(); err != nil {
		return fmt.Errorf("invalid config: cracker.alphabet: %w", err)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg TimingOracleConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func createDefault(path string) error {
	return Save(path, DefaultConfig())
}
