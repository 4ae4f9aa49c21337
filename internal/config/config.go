// Package config loads the mailtriage run configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the TOML run configuration shared by the CLI entry points.
type Config struct {
	RulesDB       string            `toml:"rules_db"`
	AuthDir       string            `toml:"auth_dir"`
	PageSize      int               `toml:"page_size"`
	Pause         string            `toml:"pause"`           // inter-item pause, e.g. "500ms"
	RatePerSecond int               `toml:"rate_per_second"` // token bucket pacing; overrides pause when set
	Accounts      map[string]string `toml:"accounts"`        // address -> base query restriction
	AI            AIConfig          `toml:"ai"`
}

// AIConfig controls the optional classifier pass.
type AIConfig struct {
	Enabled bool     `toml:"enabled"`
	Model   string   `toml:"model"`
	Labels  []string `toml:"labels"` // candidate catalog offered to the model
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	cfg := Config{
		RulesDB:  "rules.db",
		PageSize: 100,
		Pause:    "500ms",
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if len(cfg.Accounts) == 0 {
		return Config{}, fmt.Errorf("config %s: no accounts defined", path)
	}
	if _, err := cfg.PauseDuration(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.RatePerSecond < 0 {
		return Config{}, fmt.Errorf("config %s: negative rate_per_second", path)
	}
	if cfg.AI.Enabled && len(cfg.AI.Labels) == 0 {
		return Config{}, fmt.Errorf("config %s: ai enabled without candidate labels", path)
	}
	return cfg, nil
}

// PauseDuration parses the configured inter-item pause.
func (c Config) PauseDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Pause)
	if err != nil {
		return 0, fmt.Errorf("parse pause %q: %w", c.Pause, err)
	}
	return d, nil
}
