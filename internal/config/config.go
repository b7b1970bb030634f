package config

import (
	"encoding/json"
	"fmt"

	"github.com/harun/parley/pkg/remote"
	"github.com/harun/parley/pkg/session"
)

// Config represents the main Parley configuration
type Config struct {
	// Remote model endpoint
	Remote remote.Config `json:"remote" mapstructure:"remote"`

	// Default limits for new sessions
	Session session.Limits `json:"session" mapstructure:"session"`

	// Transcript journal
	Journal JournalConfig `json:"journal" mapstructure:"journal"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// JournalConfig holds transcript journal settings
type JournalConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	Dir           string `json:"dir" mapstructure:"dir"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus scrape endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Remote: remote.Config{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
		},
		Session: session.DefaultLimits(),
		Journal: JournalConfig{
			Enabled:       true,
			RetentionDays: 7,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid. A missing API key is
// deliberately not an error here: the remote client reports it at call
// time instead of crashing at startup.
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateProvider(c.Remote.Provider); err != nil {
		return err
	}
	if err := v.ValidateModel(c.Remote.Model); err != nil {
		return err
	}
	if c.Remote.APIKey != "" {
		if err := v.ValidateAPIKey(c.Remote.APIKey, c.Remote.Provider); err != nil {
			return err
		}
	}
	if err := v.ValidateLimits(c.Session); err != nil {
		return err
	}

	if c.Journal.Enabled && c.Journal.RetentionDays < 1 {
		return fmt.Errorf("journal retention must be at least 1 day")
	}

	return nil
}
