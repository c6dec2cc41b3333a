// Package openaicompat implements the llm.Client interface for arbitrary
// OpenAI-compatible chat completion endpoints. It is the fallback adapter
// family when no specialized provider matches, and the only one that
// speaks the wire protocol directly instead of going through a vendor SDK.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/rs/zerolog"
)

// Client implements the llm.Client interface over plain HTTP.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	maxTokens   int64
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewClient creates a new Client for the given backend configuration.
// The endpoint is required; an API key is optional (many local
// OpenAI-compatible servers accept unauthenticated requests).
func NewClient(cfg llm.BackendConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{},
		logger:      logger.With().Str("component", "openaicompat").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	resp, err := c.post(ctx, "/chat/completions", c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.wireError(resp)
	}

	var decoded wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	return fromWireResponse(&decoded)
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	resp, err := c.post(ctx, "/chat/completions", c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.wireError(resp)
	}
	return newStream(resp), nil
}

// HealthCheck probes the models listing endpoint. OpenAI-compatible
// servers have no dedicated health route, but every one of them serves
// GET /models.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.wireError(resp)
	}
	return nil
}

// buildRequest merges request fields with the backend defaults held by
// the client.
func (c *Client) buildRequest(req *llm.Request, stream bool) *wireRequest {
	out := &wireRequest{
		Model:       c.model,
		Messages:    toWireMessages(req.Messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, body *wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(httpReq)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// wireError turns a non-2xx response into a TransportError, decoding the
// standard OpenAI error envelope when the body carries one.
func (c *Client) wireError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	te := &llm.TransportError{
		StatusCode: resp.StatusCode,
		RetryAfter: llm.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
	var env wireErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		te.Message = env.Error.Message
		te.Code = env.Error.codeString()
	} else if len(body) > 0 {
		te.Message = strings.TrimSpace(string(body))
	}
	return te
}
