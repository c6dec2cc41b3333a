// Package anthropic implements the llm.Client interface for Anthropic's
// Messages API.
package anthropic

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/rs/zerolog"
)

// defaultMaxTokens applies when neither the request nor the backend
// configuration sets a completion budget; the Messages API requires one.
const defaultMaxTokens = 4096

// Client implements the llm.Client interface for Anthropic's API.
type Client struct {
	client      *anthropic.Client
	model       string
	temperature *float64
	maxTokens   int64
	logger      zerolog.Logger
}

// NewClient creates a new Client with the given backend configuration.
func NewClient(cfg llm.BackendConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		client:      &client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wireError(err)
	}
	return fromMessage(message)
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return newAnthropicStream(ctx, stream, c.logger), nil
}

// HealthCheck verifies the credential and the configured model in one
// probe against the models endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.model, anthropic.ModelGetParams{}); err != nil {
		return wireError(err)
	}
	return nil
}

// buildParams converts the canonical request into Messages API params.
// Anthropic takes the system prompt as a separate top-level field, so
// system-role messages are lifted out of the message list here.
func (c *Client) buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	system, rest := splitSystem(req.Messages)

	msgs, err := toMessageParams(rest)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	temp := c.temperature
	if req.Temperature != nil {
		temp = req.Temperature
	}
	if temp != nil {
		params.Temperature = anthropic.Float(*temp)
	}
	return params, nil
}
