package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CALCGEN_"

// Config holds all calcgen configuration.
type Config struct {
	// CreatedBy is the provenance string written into rendered modules.
	CreatedBy string `yaml:"created_by" env:"CREATED_BY"`

	// Row and buff caps applied by the validator
	Limits LimitsConfig `yaml:"limits" envPrefix:"LIMITS_"`

	// Sandboxed verification
	Verify VerifyConfig `yaml:"verify" envPrefix:"VERIFY_"`

	// Repair engine
	Repair RepairConfig `yaml:"repair" envPrefix:"REPAIR_"`

	// Batch runner and ledger
	Batch BatchConfig `yaml:"batch" envPrefix:"BATCH_"`

	// Logging
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
}

// VerifyConfig configures the sandboxed runtime verifier.
type VerifyConfig struct {
	Timeout       string    `yaml:"timeout" env:"TIMEOUT"`               // wall-clock guard, e.g. "2s"
	StepBudget    int       `yaml:"step_budget" env:"STEP_BUDGET"`       // evaluator steps per pass
	DamageCeiling float64   `yaml:"damage_ceiling" env:"DAMAGE_CEILING"` // max showcase damage/heal/shield
	CritMin       float64   `yaml:"crit_min" env:"CRIT_MIN"`
	CritMax       float64   `yaml:"crit_max" env:"CRIT_MAX"`
	PercentMin    float64   `yaml:"percent_min" env:"PERCENT_MIN"`
	PercentMax    float64   `yaml:"percent_max" env:"PERCENT_MAX"`
	NegativeFloor float64   `yaml:"negative_floor" env:"NEGATIVE_FLOOR"` // percent values below this are flagged
	Seeds         []float64 `yaml:"seeds" env:"SEEDS" envSeparator:","`  // ratio-scale then percentage-scale magnitude
}

// RepairConfig configures the heuristic repair engine.
type RepairConfig struct {
	// Disabled lists pass names to skip.
	Disabled []string `yaml:"disabled" env:"DISABLED" envSeparator:","`

	// RulesFile is an optional YAML file of extra derived-buff rules,
	// appended to the embedded registry.
	RulesFile string `yaml:"rules_file" env:"RULES_FILE"`
}

// BatchConfig configures the multi-character runner.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency" env:"CONCURRENCY"`
	LedgerPath  string `yaml:"ledger_path" env:"LEDGER_PATH"` // empty disables the ledger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CreatedBy: "calcgen",

		Limits: LimitsConfig{
			MaxDetails: 20,
			MaxBuffs:   30,
			MaxParams:  12,
		},

		Verify: VerifyConfig{
			Timeout:       "2s",
			StepBudget:    100000,
			DamageCeiling: 2e7,
			CritMin:       -100,
			CritMax:       100,
			PercentMin:    -100,
			PercentMax:    1000,
			NegativeFloor: -50,
			Seeds:         []float64{0.5, 120},
		},

		Batch: BatchConfig{
			Concurrency: 4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies CALCGEN_* environment variables on top of the
// loaded values. Unset variables leave fields untouched.
func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// GetVerifyTimeout returns the verifier wall-clock guard as a duration.
func (c *Config) GetVerifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Verify.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.ValidateLimits(); err != nil {
		return err
	}

	v := c.Verify
	if _, err := time.ParseDuration(v.Timeout); err != nil {
		return fmt.Errorf("invalid verify timeout %q: %w", v.Timeout, err)
	}
	if v.DamageCeiling <= 0 {
		return fmt.Errorf("verify damage_ceiling must be > 0")
	}
	if v.CritMin >= v.CritMax {
		return fmt.Errorf("verify crit range [%g, %g] is empty", v.CritMin, v.CritMax)
	}
	if v.PercentMin >= v.PercentMax {
		return fmt.Errorf("verify percent range [%g, %g] is empty", v.PercentMin, v.PercentMax)
	}
	if v.NegativeFloor < v.PercentMin || v.NegativeFloor > 0 {
		return fmt.Errorf("verify negative_floor must lie in [%g, 0]", v.PercentMin)
	}
	if len(v.Seeds) == 0 {
		return fmt.Errorf("verify seeds must not be empty")
	}
	for _, s := range v.Seeds {
		if s <= 0 {
			return fmt.Errorf("verify seed %g must be > 0", s)
		}
	}

	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch concurrency must be >= 1")
	}

	return c.Logging.Validate()
}
