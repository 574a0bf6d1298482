// config.go: host configuration and file loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// HostConfig is the file-level configuration of a module host.
type HostConfig struct {
	// ModulesDirs are scanned for module manifests.
	ModulesDirs []string `json:"modules_dirs" yaml:"modules_dirs" mapstructure:"modules_dirs"`

	// ManifestPatterns are doublestar globs relative to each modules dir.
	ManifestPatterns []string `json:"manifest_patterns" yaml:"manifest_patterns" mapstructure:"manifest_patterns"`

	// Exclude are doublestar globs of directories to skip.
	Exclude []string `json:"exclude" yaml:"exclude" mapstructure:"exclude"`

	// DataDir holds one private directory per module.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigFileName is the base name of each module's YAML config.
	ConfigFileName string `json:"config_file_name" yaml:"config_file_name" mapstructure:"config_file_name"`

	// OrderSoftDependencies makes present soft dependencies load first.
	OrderSoftDependencies bool `json:"order_soft_dependencies" yaml:"order_soft_dependencies" mapstructure:"order_soft_dependencies"`

	// EnableOnStart enables every module after the initial load pass.
	EnableOnStart bool `json:"enable_on_start" yaml:"enable_on_start" mapstructure:"enable_on_start"`

	HotReload HotReloadConfig `json:"hot_reload" yaml:"hot_reload" mapstructure:"hot_reload"`
	Audit     AuditConfig     `json:"audit" yaml:"audit" mapstructure:"audit"`
	Admin     AdminConfig     `json:"admin" yaml:"admin" mapstructure:"admin"`
	Discord   DiscordConfig   `json:"discord" yaml:"discord" mapstructure:"discord"`
}

// HotReloadConfig toggles manifest watching.
type HotReloadConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
}

// AuditConfig toggles the lifecycle audit trail.
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	OutputFile string `json:"output_file" yaml:"output_file" mapstructure:"output_file"`
}

// AdminConfig configures the gRPC admin endpoint.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Address string `json:"address" yaml:"address" mapstructure:"address"`
}

// DiscordConfig binds module commands and listeners to a Discord bot.
// An empty token leaves the host on its in-memory registries.
type DiscordConfig struct {
	Token   string `json:"token" yaml:"token" mapstructure:"token"`
	GuildID string `json:"guild_id" yaml:"guild_id" mapstructure:"guild_id"`

	// Operators are user ids granted every permission node.
	Operators []string `json:"operators" yaml:"operators" mapstructure:"operators"`

	// Grants maps user ids to extra permission nodes.
	Grants map[string][]string `json:"grants" yaml:"grants" mapstructure:"grants"`

	// RoleGrants maps guild role ids to permission nodes held by every
	// member with the role.
	RoleGrants map[string][]string `json:"role_grants" yaml:"role_grants" mapstructure:"role_grants"`
}

// Enabled reports whether a bot token is configured.
func (c DiscordConfig) Enabled() bool { return c.Token != "" }

// PermissionsFor returns the effective nodes of userID: operator
// wildcard, user grants, then the grants of each role held.
func (c DiscordConfig) PermissionsFor(userID string, roles ...string) PermissionSet {
	var set PermissionSet
	if containsString(c.Operators, userID) {
		set = append(set, NewPermissionNode("*"))
	}
	for _, node := range c.Grants[userID] {
		set = append(set, NewPermissionNode(node))
	}
	for _, role := range roles {
		for _, node := range c.RoleGrants[role] {
			set = append(set, NewPermissionNode(node))
		}
	}
	return set
}

// DefaultHostConfig returns the defaults applied to missing fields.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		ModulesDirs:      []string{"modules"},
		ManifestPatterns: DefaultManifestPatterns,
		DataDir:          DefaultDataDir,
		ConfigFileName:   DefaultModuleConfigName,
		EnableOnStart:    true,
		HotReload: HotReloadConfig{
			PollInterval: DefaultHotReloadOptions().PollInterval,
		},
		Audit: AuditConfig{
			OutputFile: filepath.Join(DefaultDataDir, "modhost-audit.jsonl"),
		},
		Admin: AdminConfig{
			Address: "127.0.0.1:7070",
		},
	}
}

// ApplyDefaults fills zero values from DefaultHostConfig. Booleans are
// left as set.
func (c *HostConfig) ApplyDefaults() {
	d := DefaultHostConfig()
	if len(c.ModulesDirs) == 0 {
		c.ModulesDirs = d.ModulesDirs
	}
	if len(c.ManifestPatterns) == 0 {
		c.ManifestPatterns = d.ManifestPatterns
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.ConfigFileName == "" {
		c.ConfigFileName = d.ConfigFileName
	}
	if c.HotReload.PollInterval <= 0 {
		c.HotReload.PollInterval = d.HotReload.PollInterval
	}
	if c.Audit.OutputFile == "" {
		c.Audit.OutputFile = filepath.Join(c.DataDir, "modhost-audit.jsonl")
	}
	if c.Admin.Address == "" {
		c.Admin.Address = d.Admin.Address
	}
}

// Validate checks the configuration for values that cannot work.
func (c *HostConfig) Validate() error {
	if len(c.ModulesDirs) == 0 {
		return NewConfigValidationError("at least one modules directory is required", nil)
	}
	for _, dir := range c.ModulesDirs {
		if dir == "" {
			return NewConfigValidationError("modules directory cannot be empty", nil)
		}
	}
	if c.DataDir == "" {
		return NewConfigValidationError("data directory is required", nil)
	}
	if c.HotReload.Enabled && c.HotReload.PollInterval < 100*time.Millisecond {
		return NewConfigValidationError(fmt.Sprintf("hot reload poll interval %s is below 100ms", c.HotReload.PollInterval), nil)
	}
	if c.Audit.Enabled && c.Audit.OutputFile == "" {
		return NewConfigValidationError("audit output file is required when audit is enabled", nil)
	}
	if c.Admin.Enabled && c.Admin.Address == "" {
		return NewConfigValidationError("admin address is required when admin is enabled", nil)
	}
	return nil
}

// DirectorySourceConfig derives the discovery settings.
func (c *HostConfig) DirectorySourceConfig() DirectorySourceConfig {
	return DirectorySourceConfig{
		Roots:    copyStrings(c.ModulesDirs),
		Patterns: copyStrings(c.ManifestPatterns),
		Exclude:  copyStrings(c.Exclude),
	}
}

// LoadHostConfig reads a JSON or YAML configuration file, applies
// defaults and validates it.
func LoadHostConfig(path string) (HostConfig, error) {
	var config HostConfig

	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - operator supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return config, NewConfigNotFoundError(path)
		}
		return config, NewConfigFileError(path, "failed to read configuration", err)
	}

	switch format := argus.DetectFormat(path); format {
	case argus.FormatJSON:
		err = json.Unmarshal(data, &config)
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &config)
	default:
		return config, NewConfigParseError(path, fmt.Errorf("unsupported config format: %s", format))
	}
	if err != nil {
		return config, NewConfigParseError(path, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}
