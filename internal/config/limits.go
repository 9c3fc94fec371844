package config

import "fmt"

// LimitsConfig caps the size of a validated plan.
type LimitsConfig struct {
	MaxDetails int `yaml:"max_details" env:"MAX_DETAILS"` // detail rows kept per plan
	MaxBuffs   int `yaml:"max_buffs" env:"MAX_BUFFS"`     // buff rows kept per plan
	MaxParams  int `yaml:"max_params" env:"MAX_PARAMS"`   // params entries kept per row
}

// ValidateLimits checks that limits are within acceptable ranges.
func (c *Config) ValidateLimits() error {
	if c.Limits.MaxDetails < 1 {
		return fmt.Errorf("max_details must be >= 1")
	}
	if c.Limits.MaxBuffs < 0 {
		return fmt.Errorf("max_buffs must be >= 0")
	}
	if c.Limits.MaxParams < 0 {
		return fmt.Errorf("max_params must be >= 0")
	}
	return nil
}
