package remote

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/harun/parley/internal/observability"
)

// OpenAIClient implements Client against an OpenAI-compatible chat
// completions endpoint with bearer-token authentication.
type OpenAIClient struct {
	client    openai.Client
	model     string
	maxTokens int
	apiKey    string
}

// NewOpenAIClient creates a new OpenAI-compatible client. The configuration
// is captured once and never mutated.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	// Exactly one round trip per Send: the SDK's default retries are off.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		apiKey:    cfg.APIKey,
	}
}

// Provider returns the provider name
func (c *OpenAIClient) Provider() string {
	return "openai"
}

// Send performs one chat completion round trip.
func (c *OpenAIClient) Send(ctx context.Context, content, contextText string) (string, error) {
	if c.apiKey == "" {
		return "", &CallError{Provider: c.Provider(), Err: errors.New("api key not configured")}
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if contextText != "" {
		messages = append(messages, openai.SystemMessage(contextText))
	}
	messages = append(messages, openai.UserMessage(content))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	start := time.Now()
	response, err := c.client.Chat.Completions.New(ctx, params)
	observability.RecordRemoteCall(c.Provider(), time.Since(start), err == nil)
	if err != nil {
		return "", &CallError{Provider: c.Provider(), Err: err}
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		log.Warn().
			Str("provider", c.Provider()).
			Str("model", c.model).
			Msg("Completion carried no text content, returning placeholder")
		return NoResponsePlaceholder, nil
	}

	log.Debug().
		Str("provider", c.Provider()).
		Str("model", c.model).
		Int64("input_tokens", response.Usage.PromptTokens).
		Int64("output_tokens", response.Usage.CompletionTokens).
		Msg("Remote call completed")

	return response.Choices[0].Message.Content, nil
}
