package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jhalvorsen/llmrelay/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(llm.BackendConfig{
		BackendID: "compat-test",
		Provider:  llm.ProviderCustom,
		Endpoint:  server.URL,
		Model:     "test-model",
		APIKey:    "test-key",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func simpleRequest() *llm.Request {
	return &llm.Request{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}}
}

func TestClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(llm.BackendConfig{Provider: llm.ProviderCustom}, zerolog.Nop())
	if err == nil {
		t.Fatal("NewClient without endpoint should fail")
	}
}

func TestSynchronous(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 4, "completion_tokens": 2, "total_tokens": 6}
		}`)
	})

	resp, err := client.Synchronous(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}
	if resp.FinishReason != llm.FinishReasonStop {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 6 {
		t.Errorf("TotalTokens = %d, want 6", resp.Usage.TotalTokens)
	}
}

func TestSynchronousToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "get_weather", "arguments": "{\"city\": \"oslo\"}"}}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	})

	resp, err := client.Synchronous(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %v, want one call", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "get_weather" || tc.Arguments["city"] != "oslo" {
		t.Errorf("tool call = %+v", tc)
	}
	if resp.FinishReason != llm.FinishReasonToolCalls {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}
}

func TestSynchronousErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limit reached", "type": "rate_limit_error", "code": "rate_limit_exceeded"}}`)
	})

	_, err := client.Synchronous(context.Background(), simpleRequest())
	var te *llm.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", te.StatusCode)
	}
	if te.Message != "rate limit reached" {
		t.Errorf("Message = %q", te.Message)
	}
	if te.Code != "rate_limit_exceeded" {
		t.Errorf("Code = %q", te.Code)
	}
	if te.RetryAfter == nil {
		t.Error("RetryAfter missing despite header")
	}
}

func TestSynchronousPlainTextError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream unavailable")
	})

	_, err := client.Synchronous(context.Background(), simpleRequest())
	var te *llm.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusBadGateway || te.Message != "upstream unavailable" {
		t.Errorf("TransportError = %+v", te)
	}
}

func TestStreamTextDeltas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := client.Stream(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var text string
	var sawDone bool
	var usage *llm.Usage
	for s.Next() {
		event := s.Event()
		if event.Done {
			sawDone = true
			usage = event.Usage
			continue
		}
		if event.Delta != nil && event.Delta.Type == llm.StreamDeltaTypeText {
			text += event.Delta.Text
		}
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text = %q, want Hello", text)
	}
	if !sawDone {
		t.Error("stream ended without a terminal event")
	}
	if usage == nil || usage.TotalTokens != 5 {
		t.Errorf("usage = %+v, want total 5", usage)
	}
}

func TestStreamToolCallDeltas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"search"}}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := client.Stream(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var starts int
	var input string
	for s.Next() {
		event := s.Event()
		if event.Delta == nil {
			continue
		}
		switch event.Delta.Type {
		case llm.StreamDeltaTypeToolCall:
			starts++
			if event.Delta.ToolCall.Name != "search" {
				t.Errorf("tool name = %q", event.Delta.ToolCall.Name)
			}
		case llm.StreamDeltaTypeToolInput:
			input += event.Delta.ToolInput
		}
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if starts != 1 {
		t.Errorf("tool call start events = %d, want 1", starts)
	}
	if input != `{"q":"go"}` {
		t.Errorf("accumulated input = %q", input)
	}
}

func TestStreamMalformedFrame(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {not json}\n\n")
	})

	s, err := client.Stream(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	for s.Next() {
	}
	if s.Err() == nil {
		t.Fatal("malformed frame should surface an error")
	}
}

func TestStreamErrorFrame(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `data: {"error":{"message":"model exploded"}}`+"\n\n")
	})

	s, err := client.Stream(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	for s.Next() {
	}
	if s.Err() == nil {
		t.Fatal("error frame should surface an error")
	}
}

func TestStreamWithoutDoneSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"hi"}}]}`+"\n\n")
	})

	s, err := client.Stream(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var sawDone bool
	for s.Next() {
		if s.Event().Done {
			sawDone = true
		}
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if !sawDone {
		t.Error("EOF without [DONE] should still produce a terminal event")
	}
}

func TestStreamOpenError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error": {"message": "overloaded"}}`)
	})

	_, err := client.Stream(context.Background(), simpleRequest())
	var te *llm.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", te.StatusCode)
	}
}

func TestHealthCheck(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q, want /models", r.URL.Path)
		}
		fmt.Fprint(w, `{"data": [{"id": "test-model"}]}`)
	})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestHealthCheckFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "not found")
	})
	err := client.HealthCheck(context.Background())
	var te *llm.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}
