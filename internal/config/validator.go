package config

import (
	"fmt"
	"strings"

	"github.com/harun/parley/pkg/session"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider checks that the remote provider is supported.
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "openai", "anthropic":
		return nil
	case "":
		return fmt.Errorf("remote provider cannot be empty")
	default:
		return fmt.Errorf("invalid provider %s (must be: openai, anthropic)", provider)
	}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidateLimits checks session limit bounds.
func (v *Validator) ValidateLimits(limits session.Limits) error {
	if limits.MaxExchanges < 1 {
		return fmt.Errorf("max_exchanges must be at least 1")
	}
	if limits.TimeoutMinutes < 1 {
		return fmt.Errorf("timeout_minutes must be at least 1")
	}
	return nil
}
