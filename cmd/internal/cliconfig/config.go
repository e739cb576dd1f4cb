// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package cliconfig loads the shared YAML configuration consumed by
// the vigil command line tools. Config values are defaults only:
// explicit flags always win.
package cliconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds flag defaults for the vigil CLI tools.
type Config struct {
	// Sockname is the daemon socket path, equivalent to --sockname.
	Sockname string `yaml:"sockname"`

	// Root is the default directory to operate on, equivalent to
	// --root.
	Root string `yaml:"root"`
}

// Load reads the config at path. An empty path yields a zero Config;
// a missing or malformed file is an error, since the user named it
// explicitly.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return config, nil
}
