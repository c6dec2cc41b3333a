// Package openai implements the llm.Client interface for OpenAI's chat
// completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// Client implements the llm.Client interface for OpenAI's API.
type Client struct {
	client      *openai.Client
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

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		config.BaseURL = cfg.Endpoint
	}

	return &Client{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With().Str("component", "openai").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq := c.buildRequest(req, false)
	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, wireError(err)
	}
	return fromChatResponse(&chatResp)
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq := c.buildRequest(req, true)
	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, wireError(err)
	}
	return newOpenAIStream(ctx, stream), nil
}

// HealthCheck lists the account's models and verifies the configured
// model is among them, so a bad credential and a bad model name produce
// different failures.
func (c *Client) HealthCheck(ctx context.Context) error {
	models, err := c.client.ListModels(ctx)
	if err != nil {
		return wireError(err)
	}
	if c.model == "" {
		return nil
	}
	_, found := lo.Find(models.Models, func(m openai.Model) bool {
		return m.ID == c.model
	})
	if !found {
		return &llm.TransportError{
			StatusCode: 404,
			Code:       "model_not_found",
			Message:    fmt.Sprintf("model %q is not available to this account", c.model),
		}
	}
	return nil
}

// buildRequest merges request fields with the backend defaults held by
// the client.
func (c *Client) buildRequest(req *llm.Request, stream bool) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(req.Messages),
		Stream:   stream,
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = int(maxTokens)
	}

	temp := c.temperature
	if req.Temperature != nil {
		temp = req.Temperature
	}
	if temp != nil {
		chatReq.Temperature = float32(*temp)
	}
	return chatReq
}
