// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// configFile is the repository marker and settings file at the root.
const configFile = "config.yaml"

// formatVersion is the repository layout version this code reads and
// writes. Bumped only for incompatible layout changes.
const formatVersion = 1

// repoConfig is the persisted content of config.yaml.
type repoConfig struct {
	// Version is the repository layout version.
	Version int `yaml:"version"`

	// CreatedAt is when the repository was initialized, RFC 3339.
	CreatedAt string `yaml:"created_at"`

	// PoolSize overrides the index connection pool size. Zero means
	// the pool default.
	PoolSize int `yaml:"pool_size,omitempty"`
}

// loadOrInitConfig reads config.yaml, creating it (and marking the
// directory as a repository) if absent.
func loadOrInitConfig(root string, now time.Time) (repoConfig, error) {
	path := filepath.Join(root, configFile)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := repoConfig{
			Version:   formatVersion,
			CreatedAt: now.UTC().Format(time.RFC3339),
		}
		encoded, err := yaml.Marshal(cfg)
		if err != nil {
			return repoConfig{}, fmt.Errorf("encoding repository config: %w", err)
		}
		if err := os.WriteFile(path, encoded, 0o644); err != nil {
			return repoConfig{}, fmt.Errorf("writing repository config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return repoConfig{}, fmt.Errorf("reading repository config: %w", err)
	}

	var cfg repoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return repoConfig{}, fmt.Errorf("parsing repository config: %w", err)
	}
	if cfg.Version != formatVersion {
		return repoConfig{}, fmt.Errorf("repository format version %d, this build supports %d",
			cfg.Version, formatVersion)
	}
	return cfg, nil
}
