package remote

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// NoResponsePlaceholder is returned when the endpoint answers with a
// well-formed completion that carries no candidate content. The call is
// treated as successful; see DESIGN.md for why this lenient default is
// preserved as-is.
const NoResponsePlaceholder = "no response received"

// probeMessage is the fixed message used by TestConnection.
const probeMessage = "ping"

// Client delivers one message to a remote text-generation capability.
type Client interface {
	// Send performs exactly one round trip carrying content and an
	// optional context string, and returns the reply text.
	Send(ctx context.Context, content, contextText string) (string, error)

	// Provider returns the provider name
	Provider() string
}

// Config holds the immutable client configuration. A missing APIKey is not
// an error here; it is detected at call time and reported as a CallError.
type Config struct {
	Provider  string `json:"provider" mapstructure:"provider"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
}

// CallError wraps a failed remote round trip with its underlying cause.
type CallError struct {
	Provider string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("remote call failed (%s): %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// New creates a client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// TestConnection performs one probe Send and reports reachability. This is
// the only place a remote failure is converted into a boolean instead of
// being propagated; its result is a best-effort health signal.
func TestConnection(ctx context.Context, c Client) bool {
	if _, err := c.Send(ctx, probeMessage, ""); err != nil {
		log.Warn().
			Err(err).
			Str("provider", c.Provider()).
			Msg("Connectivity check failed")
		return false
	}
	return true
}
