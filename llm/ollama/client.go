// Package ollama implements the llm.Client interface for a local or
// networked Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// Client implements the llm.Client interface for Ollama's API.
type Client struct {
	client      *api.Client
	model       string
	temperature *float64
	maxTokens   int64
	logger      zerolog.Logger
}

// NewClient creates a new Client with the given backend configuration.
// If the endpoint is empty, the OLLAMA_HOST environment default applies.
func NewClient(cfg llm.BackendConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var client *api.Client
	if cfg.Endpoint != "" {
		baseURL, err := parseHost(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &Client{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With().Str("component", "ollama").Logger(),
	}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Synchronous implements llm.Client.Synchronous.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq := c.buildRequest(req, false)

	var chatResp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
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
	return newOllamaStream(ctx, c.client, c.buildRequest(req, true)), nil
}

// HealthCheck probes the server's model list and checks that the
// configured model is present. Ollama has no dedicated health endpoint;
// the tags listing doubles as one.
func (c *Client) HealthCheck(ctx context.Context) error {
	listResp, err := c.client.List(ctx)
	if err != nil {
		return wireError(err)
	}
	for _, m := range listResp.Models {
		if modelMatches(m.Name, c.model) {
			return nil
		}
	}
	return &llm.TransportError{
		StatusCode: 404,
		Code:       "model_not_found",
		Message:    fmt.Sprintf("model %q is not pulled on the server", c.model),
	}
}

// modelMatches compares model names ignoring a missing ":latest" tag.
func modelMatches(have, want string) bool {
	if have == want {
		return true
	}
	return strings.TrimSuffix(have, ":latest") == strings.TrimSuffix(want, ":latest")
}

// buildRequest merges request fields with the backend defaults held by
// the client. Ollama passes generation parameters through Options.
func (c *Client) buildRequest(req *llm.Request, stream bool) *api.ChatRequest {
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: toChatMessages(req.Messages),
		Stream:   &stream,
		Options:  make(map[string]any),
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		chatReq.Options["num_predict"] = int(maxTokens)
	}

	temp := c.temperature
	if req.Temperature != nil {
		temp = req.Temperature
	}
	if temp != nil {
		chatReq.Options["temperature"] = *temp
	}
	return chatReq
}
