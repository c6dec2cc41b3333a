package openai

import (
	"errors"
	"testing"

	"github.com/jhalvorsen/llmrelay/llm"
	openai "github.com/sashabaranov/go-openai"
)

func TestToChatMessages(t *testing.T) {
	msgs := toChatMessages([]llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "be terse"),
		llm.NewTextMessage(llm.RoleUser, "hello"),
		{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "ls", Arguments: map[string]any{"path": "/tmp"}}},
		},
		{Role: llm.RoleTool, Content: "a.txt", ToolCallID: "call_1"},
	})

	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if len(msgs[2].ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(msgs[2].ToolCalls))
	}
	tc := msgs[2].ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "ls" || tc.Function.Arguments != `{"path":"/tmp"}` {
		t.Errorf("tool call = %+v", tc)
	}
	if msgs[3].Role != openai.ChatMessageRoleTool || msgs[3].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", msgs[3])
	}
}

func TestFromChatResponse(t *testing.T) {
	resp := &openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Content: "done",
				ToolCalls: []openai.ToolCall{{
					ID:       "call_9",
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: "search", Arguments: `{'q': 'go'}`},
				}},
			},
			FinishReason: openai.FinishReasonToolCalls,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	out, err := fromChatResponse(resp)
	if err != nil {
		t.Fatalf("fromChatResponse: %v", err)
	}
	if out.Content != "done" || out.FinishReason != llm.FinishReasonToolCalls {
		t.Errorf("response = %+v", out)
	}
	if out.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", out.Usage.TotalTokens)
	}
	if len(out.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(out.ToolCalls))
	}
	// Sloppy single-quoted arguments repair into a usable map.
	if out.ToolCalls[0].Arguments["q"] != "go" {
		t.Errorf("arguments = %v", out.ToolCalls[0].Arguments)
	}
}

func TestFromChatResponseNoChoices(t *testing.T) {
	if _, err := fromChatResponse(&openai.ChatCompletionResponse{}); err == nil {
		t.Fatal("empty choices should fail")
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := []struct {
		reason openai.FinishReason
		want   llm.FinishReason
	}{
		{openai.FinishReasonStop, llm.FinishReasonStop},
		{openai.FinishReason(""), llm.FinishReasonStop},
		{openai.FinishReasonLength, llm.FinishReasonLength},
		{openai.FinishReasonToolCalls, llm.FinishReasonToolCalls},
		{openai.FinishReasonFunctionCall, llm.FinishReasonToolCalls},
		{openai.FinishReasonContentFilter, llm.FinishReasonOther},
	}
	for _, tt := range tests {
		if got := mapFinishReason(tt.reason); got != tt.want {
			t.Errorf("mapFinishReason(%q) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}

func TestWireError(t *testing.T) {
	apiErr := &openai.APIError{
		HTTPStatusCode: 429,
		Type:           "requests",
		Code:           "rate_limit_exceeded",
		Message:        "Rate limit reached",
	}
	te, ok := wireError(apiErr).(*llm.TransportError)
	if !ok {
		t.Fatal("API error should become a TransportError")
	}
	if te.StatusCode != 429 || te.Code != "rate_limit_exceeded" || te.Message != "Rate limit reached" {
		t.Errorf("transport error = %+v", te)
	}
	if !errors.Is(te, apiErr) {
		t.Error("cause must remain unwrappable")
	}

	// The string code wins over Type only when present.
	apiErr.Code = nil
	te = wireError(apiErr).(*llm.TransportError)
	if te.Code != "requests" {
		t.Errorf("Code = %q, want the error type", te.Code)
	}

	plain := errors.New("no route to host")
	if got := wireError(plain); got != plain {
		t.Errorf("non-API error should pass through, got %v", got)
	}
}
