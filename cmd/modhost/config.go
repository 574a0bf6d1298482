// config.go: host configuration from file, environment and defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	modhost "github.com/agilira/go-modhost"
)

// EnvPrefix prefixes environment overrides, e.g. MODHOST_DISCORD_TOKEN.
const EnvPrefix = "MODHOST"

// loadConfig layers defaults, the optional config file and MODHOST_*
// variables, in that order.
func loadConfig(path string) (modhost.HostConfig, error) {
	v := viper.New()

	defaults := modhost.DefaultHostConfig()
	v.SetDefault("modules_dirs", defaults.ModulesDirs)
	v.SetDefault("manifest_patterns", defaults.ManifestPatterns)
	v.SetDefault("exclude", defaults.Exclude)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("config_file_name", defaults.ConfigFileName)
	v.SetDefault("order_soft_dependencies", defaults.OrderSoftDependencies)
	v.SetDefault("enable_on_start", defaults.EnableOnStart)
	v.SetDefault("hot_reload.enabled", defaults.HotReload.Enabled)
	v.SetDefault("hot_reload.poll_interval", defaults.HotReload.PollInterval)
	v.SetDefault("audit.enabled", defaults.Audit.Enabled)
	v.SetDefault("audit.output_file", defaults.Audit.OutputFile)
	v.SetDefault("admin.enabled", defaults.Admin.Enabled)
	v.SetDefault("admin.address", defaults.Admin.Address)
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.operators", []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return modhost.HostConfig{}, modhost.NewConfigNotFoundError(path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return modhost.HostConfig{}, modhost.NewConfigParseError(path, err)
		}
	}

	var cfg modhost.HostConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return modhost.HostConfig{}, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return modhost.HostConfig{}, err
	}
	return cfg, nil
}
