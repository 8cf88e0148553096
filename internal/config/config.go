// Package config loads shipyard configuration from YAML with environment
// overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"shipyard/internal/remote"
	"shipyard/internal/routing"
)

// Config holds all shipyard configuration.
type Config struct {
	// Source is the directory scanned for deployable artifacts.
	Source SourceConfig `yaml:"source"`

	// GitHub configures the remote content store.
	GitHub remote.GitHubConfig `yaml:"github"`

	// Rules is the ordered routing table. Empty means the stock table.
	Rules []routing.Rule `yaml:"rules"`

	// Deploy tunes the write phase.
	Deploy DeployConfig `yaml:"deploy"`

	// Verify tunes the verification phase.
	Verify VerifyConfig `yaml:"verify"`

	// Artifacts names the persisted run outputs.
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

// SourceConfig locates the artifact directory.
type SourceConfig struct {
	Dir string `yaml:"dir"`
}

// DeployConfig tunes the deployer.
type DeployConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffBase       string  `yaml:"backoff_base"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BatchTimeout      string  `yaml:"batch_timeout"`
}

// VerifyConfig tunes the verifier.
type VerifyConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Delay       string `yaml:"delay"`
}

// ArtifactsConfig names the run artifact paths.
type ArtifactsConfig struct {
	DeploymentLog      string `yaml:"deployment_log"`
	VerificationReport string `yaml:"verification_report"`
	CommandScript      string `yaml:"command_script"`
	InsightsDB         string `yaml:"insights_db"`
}

// Default returns the baseline configuration. The GitHub owner and token
// still have to come from the file or the environment.
func Default() *Config {
	return &Config{
		Source: SourceConfig{Dir: "outputs"},
		GitHub: remote.GitHubConfig{
			BaseURL: "https://api.github.com",
			Branch:  "main",
			Timeout: "30s",
		},
		Deploy: DeployConfig{
			MaxAttempts:       3,
			BackoffBase:       "1s",
			Concurrency:       1,
			RequestsPerSecond: 1,
		},
		Verify: VerifyConfig{
			MaxAttempts: 3,
			Delay:       "20s",
		},
		Artifacts: ArtifactsConfig{
			DeploymentLog:      "deployment_log.json",
			VerificationReport: "verification_report.json",
			CommandScript:      "deploy_commands.sh",
			InsightsDB:         "insights.db",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates. An empty path skips the file and
// uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides pulls credentials from the environment. The token is
// env-first so config files never need to carry it.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_OWNER"); v != "" {
		c.GitHub.Owner = v
	}
	if v := os.Getenv("SHIPYARD_SOURCE_DIR"); v != "" {
		c.Source.Dir = v
	}
}

// Validate checks the parts of the config that would otherwise fail deep
// inside the run.
func (c *Config) Validate() error {
	if c.Source.Dir == "" {
		return fmt.Errorf("config: source dir is required")
	}
	if c.GitHub.Owner == "" {
		return fmt.Errorf("config: github owner is required (set github.owner or GITHUB_OWNER)")
	}
	if c.GitHub.Token == "" {
		return fmt.Errorf("config: github token is required (set GITHUB_TOKEN)")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"deploy.backoff_base", c.Deploy.BackoffBase},
		{"deploy.batch_timeout", c.Deploy.BatchTimeout},
		{"verify.delay", c.Verify.Delay},
		{"github.timeout", c.GitHub.Timeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", field.name, field.value, err)
		}
	}
	if len(c.Rules) > 0 {
		if _, err := routing.NewTable(c.Rules); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// RoutingTable compiles the configured rules, falling back to the stock
// table when none are configured.
func (c *Config) RoutingTable() (*routing.Table, error) {
	rules := c.Rules
	if len(rules) == 0 {
		rules = routing.DefaultRules()
	}
	return routing.NewTable(rules)
}

// Duration parses a config duration string, returning fallback when empty
// or unparseable. Values are validated at load time, so a parse failure
// here means the config was mutated after Load; the fallback keeps
// behavior defined.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
