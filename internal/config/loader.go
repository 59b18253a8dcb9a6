// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements hierarchical configuration loading. A base
// configuration file is read first and an environment-specific file
// (e.g. .env.local.toml, .env.test.toml) then overwrites values. The
// config directory and runtime name come from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	ConfigFileBaseName  = ".env"               // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"              // The file extension for configuration files.
	ConfigSeparator     = "."                  // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GIST_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GIST_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
)

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// Load builds the effective configuration: defaults first, then the
// base TOML file, then the runtime-specific override file. Missing
// files are not an error; malformed files are.
//
// Outputs:
//   - *Config: The merged, validated configuration.
//   - error: A decode or validation failure.
func Load() (*Config, error) {
	cfg := NewConfig()

	prefix := os.Getenv(EnvConfigFilePrefix)
	if len(prefix) > 0 && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix = prefix + string(os.PathSeparator)
	}

	runtime := os.Getenv(EnvConfigRuntime)
	if runtime == "" {
		runtime = "local"
	}

	baseFile := prefix + ConfigFileBaseName + ConfigFileExtension
	envFile := prefix + ConfigFileBaseName + ConfigSeparator + runtime + ConfigFileExtension

	if fileExists(baseFile) {
		if _, err := toml.DecodeFile(baseFile, cfg); err != nil {
			return nil, fmt.Errorf("decode base configuration %s: %w", baseFile, err)
		}
		slog.Info("loaded base configuration", "file", baseFile)
	}
	if fileExists(envFile) {
		if _, err := toml.DecodeFile(envFile, cfg); err != nil {
			return nil, fmt.Errorf("decode environment configuration %s: %w", envFile, err)
		}
		slog.Info("loaded environment configuration", "file", envFile, "runtime", runtime)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
