// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for strata commands.
//
// Configuration is loaded from a single file specified by:
//   - STRATA_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This keeps
// configuration deterministic and auditable with no hidden overrides.
// Every field has a default, so running without a config file is the
// common case; the file only overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/stratafs/strata/lib/layout"
)

// Config is the master configuration for strata.
type Config struct {
	// Cache configures the block cache backing every mount.
	Cache CacheConfig `yaml:"cache"`

	// Mount configures FUSE mount behavior.
	Mount MountConfig `yaml:"mount"`

	// Mkfs configures image formatting defaults.
	Mkfs MkfsConfig `yaml:"mkfs"`
}

// CacheConfig configures the block cache.
type CacheConfig struct {
	// Slots is the number of block buffers in the cache. Must be at
	// least the journal capacity or a large transaction could pin
	// every slot and wedge the cache.
	Slots int `yaml:"slots"`
}

// MountConfig configures FUSE mount behavior.
type MountConfig struct {
	// StateDir is where mount session records are written.
	StateDir string `yaml:"state_dir"`

	// FSName is the source name shown in /proc/mounts.
	FSName string `yaml:"fsname"`

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	// ReadOnly mounts the filesystem read-only.
	ReadOnly bool `yaml:"read_only"`
}

// MkfsConfig configures image formatting defaults.
type MkfsConfig struct {
	// Blocks is the total image size in blocks.
	Blocks uint32 `yaml:"blocks"`

	// Inodes is the inode table capacity.
	Inodes uint32 `yaml:"inodes"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Slots: layout.BufferCount,
		},
		Mount: MountConfig{
			StateDir: "${XDG_STATE_HOME:-${HOME}/.local/state}/strata",
			FSName:   "strata",
		},
		Mkfs: MkfsConfig{
			Blocks: layout.DefaultImageBlocks,
			Inodes: layout.MaxActiveInodes * 4,
		},
	}
}

// Load reads the config file named by STRATA_CONFIG, or returns the
// defaults when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("STRATA_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("default config: %w", err)
		}
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of the defaults and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Mount.StateDir = expandVars(c.Mount.StateDir)
	c.Mount.FSName = expandVars(c.Mount.FSName)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment. Defaults may themselves contain a ${VAR} reference,
// which is expanded in a second pass.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	expand := func(input string) string {
		return varPattern.ReplaceAllStringFunc(input, func(match string) string {
			parts := varPattern.FindStringSubmatch(match)
			if len(parts) < 2 {
				return match
			}
			if value := os.Getenv(parts[1]); value != "" {
				return value
			}
			if len(parts) >= 3 {
				return parts[2]
			}
			return ""
		})
	}
	return expand(expand(s))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Cache.Slots < layout.LogBlocks {
		errs = append(errs, fmt.Errorf("cache.slots must be at least %d (journal capacity)", layout.LogBlocks))
	}
	if c.Mount.StateDir == "" {
		errs = append(errs, fmt.Errorf("mount.state_dir is required"))
	}
	if c.Mount.FSName == "" {
		errs = append(errs, fmt.Errorf("mount.fsname is required"))
	}
	if c.Mkfs.Blocks < layout.MinImageBlocks {
		errs = append(errs, fmt.Errorf("mkfs.blocks must be at least %d", layout.MinImageBlocks))
	}
	if c.Mkfs.Inodes == 0 {
		errs = append(errs, fmt.Errorf("mkfs.inodes is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
