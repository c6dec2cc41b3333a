package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jhalvorsen/llmrelay/llm"
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// toChatMessages converts canonical messages to OpenAI chat format.
func toChatMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	return lo.Map(msgs, func(m llm.Message, _ int) openai.ChatCompletionMessage {
		out := openai.ChatCompletionMessage{
			Role:       toChatRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return out
	})
}

func toChatRole(role llm.MessageRole) string {
	switch role {
	case llm.RoleSystem:
		return openai.ChatMessageRoleSystem
	case llm.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case llm.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

// fromChatResponse converts an OpenAI chat completion to the canonical
// response.
func fromChatResponse(resp *openai.ChatCompletionResponse) (*llm.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	choice := resp.Choices[0]

	out := &llm.Response{
		Content:      choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:      int64(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		call, err := fromToolCall(tc)
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

func fromToolCall(tc openai.ToolCall) (llm.ToolCall, error) {
	args, err := llm.ParseToolArguments(tc.Function.Arguments)
	if err != nil {
		return llm.ToolCall{}, fmt.Errorf("decoding tool call arguments for %s: %w", tc.Function.Name, err)
	}
	return llm.ToolCall{
		ID:        tc.ID,
		Name:      tc.Function.Name,
		Arguments: args,
	}, nil
}

func mapFinishReason(reason openai.FinishReason) llm.FinishReason {
	switch reason {
	case openai.FinishReasonStop, openai.FinishReason(""):
		return llm.FinishReasonStop
	case openai.FinishReasonLength:
		return llm.FinishReasonLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return llm.FinishReasonToolCalls
	default:
		return llm.FinishReasonOther
	}
}

// wireError converts go-openai API errors into a TransportError carrying
// the wire-level facts. Non-API errors pass through for the classifier.
func wireError(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return &llm.TransportError{
				StatusCode: reqErr.HTTPStatusCode,
				Message:    http.StatusText(reqErr.HTTPStatusCode),
				Cause:      err,
			}
		}
		return err
	}

	code := apiErr.Type
	if s, ok := apiErr.Code.(string); ok && s != "" {
		code = s
	}
	return &llm.TransportError{
		StatusCode: apiErr.HTTPStatusCode,
		Code:       code,
		Message:    apiErr.Message,
		Cause:      err,
	}
}
