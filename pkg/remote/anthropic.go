package remote

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"github.com/harun/parley/internal/observability"
)

// defaultAnthropicMaxTokens applies when no token budget is configured; the
// Anthropic API requires an explicit value.
const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements Client for Anthropic Claude.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
	apiKey    string
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg Config) *AnthropicClient {
	// Exactly one round trip per Send: the SDK's default retries are off.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		apiKey:    cfg.APIKey,
	}
}

// Provider returns the provider name
func (c *AnthropicClient) Provider() string {
	return "anthropic"
}

// Send performs one messages round trip.
func (c *AnthropicClient) Send(ctx context.Context, content, contextText string) (string, error) {
	if c.apiKey == "" {
		return "", &CallError{Provider: c.Provider(), Err: errors.New("api key not configured")}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	}
	if contextText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: contextText},
		}
	}

	start := time.Now()
	response, err := c.client.Messages.New(ctx, params)
	observability.RecordRemoteCall(c.Provider(), time.Since(start), err == nil)
	if err != nil {
		return "", &CallError{Provider: c.Provider(), Err: err}
	}

	text := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}
	if text == "" {
		log.Warn().
			Str("provider", c.Provider()).
			Str("model", c.model).
			Msg("Completion carried no text content, returning placeholder")
		return NoResponsePlaceholder, nil
	}

	log.Debug().
		Str("provider", c.Provider()).
		Str("model", c.model).
		Int64("input_tokens", response.Usage.InputTokens).
		Int64("output_tokens", response.Usage.OutputTokens).
		Msg("Remote call completed")

	return text, nil
}
