package config

import "fmt"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty" env:"LEVEL"`            // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty" env:"FORMAT"`         // json, console
	File       string          `yaml:"file" json:"file,omitempty" env:"FILE"`               // empty writes to stderr
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty" env:"DEBUG"`  // Master toggle - false = no logging
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`              // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false.
// Returns true if debug_mode is true and category is enabled (or not specified).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true // All enabled by default in debug mode
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Validate checks level and format.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "", "json", "console", "text":
	default:
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Format)
	}
	return nil
}
