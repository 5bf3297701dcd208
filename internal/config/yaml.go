// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultConfigPath is tried when no explicit config file is given.
const defaultConfigPath = "config.yaml"

// LoadFile merges YAML settings from path into cfg. When path is empty
// the default location is tried; a missing default file is not an
// error, a missing explicit file is. Values absent from the file keep
// whatever cfg already carries, so file settings layer over defaults
// and under flags.
func LoadFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}
