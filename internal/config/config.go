// Package config loads holly's pipeline configuration from YAML with
// environment-variable overrides. Each concern keeps its struct in its own
// file (safety.go, deploy.go) so the root stays readable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all holly configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Remote VCS (GitHub-style REST API)
	VCS VCSConfig `yaml:"vcs"`

	// Safety gate policy
	Safety SafetyConfig `yaml:"safety"`

	// Self-deployment
	Deploy DeployConfig `yaml:"deploy"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Audit ledger
	Audit AuditConfig `yaml:"audit"`
}

// VCSConfig configures the remote version-control client.
type VCSConfig struct {
	BaseURL    string `yaml:"base_url"` // default https://api.github.com
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Token      string `yaml:"token"`
	BaseBranch string `yaml:"base_branch"` // default main
	Timeout    string `yaml:"timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AuditConfig configures the effect ledger.
type AuditConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "holly",
		Version: "0.4.0",
		VCS: VCSConfig{
			BaseURL:    "https://api.github.com",
			BaseBranch: "main",
			Timeout:    "30s",
		},
		Safety:  DefaultSafetyConfig(),
		Deploy:  DefaultDeployConfig(),
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Audit:   AuditConfig{DatabasePath: filepath.Join(".holly", "audit.db")},
	}
}

// Load reads configuration from the given YAML file, falling back to
// defaults when the file does not exist, then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values. Tokens and
// credentials normally arrive this way rather than through the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HOLLY_GITHUB_TOKEN"); v != "" {
		c.VCS.Token = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" && c.VCS.Token == "" {
		c.VCS.Token = v
	}
	if v := os.Getenv("HOLLY_GITHUB_OWNER"); v != "" {
		c.VCS.Owner = v
	}
	if v := os.Getenv("HOLLY_GITHUB_REPO"); v != "" {
		c.VCS.Repo = v
	}
	if v := os.Getenv("HOLLY_API_BASE_URL"); v != "" {
		c.VCS.BaseURL = v
	}

	c.Deploy.applyEnvOverrides()

	if v := os.Getenv("HOLLY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HOLLY_AUDIT_DB"); v != "" {
		c.Audit.DatabasePath = v
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.Safety.Validate(); err != nil {
		return fmt.Errorf("safety config: %w", err)
	}
	if err := c.Deploy.Validate(); err != nil {
		return fmt.Errorf("deploy config: %w", err)
	}
	if _, err := time.ParseDuration(c.VCS.Timeout); c.VCS.Timeout != "" && err != nil {
		return fmt.Errorf("vcs config: invalid timeout %q", c.VCS.Timeout)
	}
	return nil
}

// VCSTimeout returns the parsed HTTP timeout for the VCS client.
func (c *Config) VCSTimeout() time.Duration {
	d, err := time.ParseDuration(c.VCS.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
