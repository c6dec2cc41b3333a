package ollama

import (
	"errors"
	"testing"

	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/ollama/ollama/api"
)

func TestToChatMessagesInlinesSystem(t *testing.T) {
	msgs := toChatMessages([]llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "be terse"),
		llm.NewTextMessage(llm.RoleUser, "hello"),
	})
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestFromChatResponse(t *testing.T) {
	resp := &api.ChatResponse{
		Message:    api.Message{Content: "hi"},
		DoneReason: "stop",
		Metrics: api.Metrics{
			PromptEvalCount: 12,
			EvalCount:       3,
		},
	}
	out, err := fromChatResponse(resp)
	if err != nil {
		t.Fatalf("fromChatResponse: %v", err)
	}
	if out.Content != "hi" || out.FinishReason != llm.FinishReasonStop {
		t.Errorf("response = %+v", out)
	}
	if out.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", out.Usage.TotalTokens)
	}
}

func TestFromChatResponsePromotesToolCalls(t *testing.T) {
	resp := &api.ChatResponse{
		Message: api.Message{
			ToolCalls: []api.ToolCall{{
				Function: api.ToolCallFunction{
					Name:      "search",
					Arguments: api.ToolCallFunctionArguments{"q": "go"},
				},
			}},
		},
		DoneReason: "stop",
	}
	out, err := fromChatResponse(resp)
	if err != nil {
		t.Fatalf("fromChatResponse: %v", err)
	}
	// Ollama reports "stop" even when the turn ended on a tool call.
	if out.FinishReason != llm.FinishReasonToolCalls {
		t.Errorf("FinishReason = %v, want tool_calls", out.FinishReason)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Arguments["q"] != "go" {
		t.Errorf("tool calls = %+v", out.ToolCalls)
	}
}

func TestMapDoneReason(t *testing.T) {
	tests := []struct {
		reason string
		want   llm.FinishReason
	}{
		{"stop", llm.FinishReasonStop},
		{"", llm.FinishReasonStop},
		{"length", llm.FinishReasonLength},
		{"load", llm.FinishReasonOther},
	}
	for _, tt := range tests {
		if got := mapDoneReason(tt.reason); got != tt.want {
			t.Errorf("mapDoneReason(%q) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}

func TestModelMatches(t *testing.T) {
	tests := []struct {
		have, want string
		match      bool
	}{
		{"llama3.2:3b", "llama3.2:3b", true},
		{"llama3.2:latest", "llama3.2", true},
		{"llama3.2", "llama3.2:latest", true},
		{"llama3.2:3b", "llama3.2", false},
		{"mistral", "llama3.2", false},
	}
	for _, tt := range tests {
		if got := modelMatches(tt.have, tt.want); got != tt.match {
			t.Errorf("modelMatches(%q, %q) = %v, want %v", tt.have, tt.want, got, tt.match)
		}
	}
}

func TestParseHost(t *testing.T) {
	u, err := parseHost("localhost:11434")
	if err != nil {
		t.Fatalf("parseHost: %v", err)
	}
	if u.Scheme != "http" || u.Host != "localhost:11434" {
		t.Errorf("url = %v", u)
	}

	u, err = parseHost("https://ollama.internal:443")
	if err != nil {
		t.Fatalf("parseHost: %v", err)
	}
	if u.Scheme != "https" {
		t.Errorf("scheme = %q, want https", u.Scheme)
	}
}

func TestWireError(t *testing.T) {
	statusErr := api.StatusError{StatusCode: 404, Status: "404 Not Found", ErrorMessage: `model "nope" not found`}
	te, ok := wireError(statusErr).(*llm.TransportError)
	if !ok {
		t.Fatal("StatusError should become a TransportError")
	}
	if te.StatusCode != 404 || te.Message != `model "nope" not found` {
		t.Errorf("transport error = %+v", te)
	}

	// Falls back to the status line when there is no message body.
	te = wireError(api.StatusError{StatusCode: 502, Status: "502 Bad Gateway"}).(*llm.TransportError)
	if te.Message != "502 Bad Gateway" {
		t.Errorf("Message = %q", te.Message)
	}

	plain := errors.New("connection reset")
	if got := wireError(plain); got != plain {
		t.Errorf("non-API error should pass through, got %v", got)
	}
}
