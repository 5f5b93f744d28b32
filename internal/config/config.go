// Package config loads and validates the process's YAML configuration
// file. Every key is optional on disk; missing keys fall back to the
// defaults named in spec.md §6, and Validate rejects values that are
// present but out of range.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMinVolume24h          = 1_000_000.0
	DefaultOpportunityThresholdBps = 250_000
	DefaultWindowDurationSecs    = 120
	DefaultMaxSymbols            = 512
	DefaultAPIPort               = 8080
	DefaultStaticPath            = "./web/static"
	DefaultSnapshotIntervalMS    = 500
)

// Config is the exhaustive set of configuration keys named in spec.md
// §6. There is no environment-variable or secrets layer: the system is
// stateless across restarts and takes everything from this one file.
type Config struct {
	MinVolume24h            float64 `yaml:"min_volume_24h"`
	OpportunityThresholdBps int64   `yaml:"opportunity_threshold_bps"`
	WindowDurationSecs      int     `yaml:"window_duration_secs"`
	MaxSymbols              int     `yaml:"max_symbols"`
	APIPort                 int     `yaml:"api_port"`
	StaticPath              string  `yaml:"static_path"`
	PrimaryWSURL            string  `yaml:"primary_ws_url"`
	SecondaryWSURL          string  `yaml:"secondary_ws_url"`
	PrimaryRESTURL          string  `yaml:"primary_rest_url"`
}

// Load reads and parses the YAML file at path, applies defaults for
// every zero-valued optional field, then validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MinVolume24h == 0 {
		c.MinVolume24h = DefaultMinVolume24h
	}
	if c.OpportunityThresholdBps == 0 {
		c.OpportunityThresholdBps = DefaultOpportunityThresholdBps
	}
	if c.WindowDurationSecs == 0 {
		c.WindowDurationSecs = DefaultWindowDurationSecs
	}
	if c.MaxSymbols == 0 {
		c.MaxSymbols = DefaultMaxSymbols
	}
	if c.APIPort == 0 {
		c.APIPort = DefaultAPIPort
	}
	if c.StaticPath == "" {
		c.StaticPath = DefaultStaticPath
	}
}

// Validate rejects configuration that would otherwise reach the
// orchestrator and fail in a more confusing way downstream (spec.md §7
// "Configuration" error kind: abort at startup with diagnostic).
func (c *Config) Validate() error {
	if c.MinVolume24h < 0 {
		return fmt.Errorf("min_volume_24h must be non-negative, got %f", c.MinVolume24h)
	}
	if c.OpportunityThresholdBps <= 0 {
		return fmt.Errorf("opportunity_threshold_bps must be positive, got %d", c.OpportunityThresholdBps)
	}
	if c.WindowDurationSecs <= 0 {
		return fmt.Errorf("window_duration_secs must be positive, got %d", c.WindowDurationSecs)
	}
	if c.MaxSymbols < 512 {
		return fmt.Errorf("max_symbols must be >= 512, got %d", c.MaxSymbols)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port must be a valid TCP port, got %d", c.APIPort)
	}
	if c.PrimaryWSURL == "" {
		return fmt.Errorf("primary_ws_url cannot be empty")
	}
	if c.SecondaryWSURL == "" {
		return fmt.Errorf("secondary_ws_url cannot be empty")
	}
	if c.PrimaryRESTURL == "" {
		return fmt.Errorf("primary_rest_url cannot be empty")
	}
	return nil
}
