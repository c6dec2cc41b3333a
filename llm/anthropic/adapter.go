package anthropic

import (
	"encoding/json"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/jhalvorsen/llmrelay/llm"
)

// splitSystem separates system-role content from the conversational
// messages. Multiple system messages concatenate in order.
func splitSystem(msgs []llm.Message) (system string, rest []llm.Message) {
	var parts []string
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			parts = append(parts, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n\n"), rest
}

// toMessageParams converts canonical messages to Anthropic MessageParams.
// Tool-role messages become user-turn tool_result blocks; assistant tool
// calls become tool_use blocks.
func toMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		param, err := toMessageParam(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, param)
	}
	return result, nil
}

func toMessageParam(msg llm.Message) (anthropic.MessageParam, error) {
	switch msg.Role {
	case llm.RoleAssistant:
		blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
		}
		return anthropic.NewAssistantMessage(blocks...), nil

	case llm.RoleTool:
		return anthropic.NewUserMessage(
			anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
		), nil

	case llm.RoleUser:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)), nil

	default:
		return anthropic.MessageParam{}, errors.New("unsupported role: " + string(msg.Role))
	}
}

// fromMessage converts a Messages API response to the canonical response.
func fromMessage(message *anthropic.Message) (*llm.Response, error) {
	var content strings.Builder
	var toolCalls []llm.ToolCall

	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			args, err := decodeToolInput(block.Input)
			if err != nil {
				return nil, err
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return &llm.Response{
		Content:      content.String(),
		FinishReason: mapStopReason(string(message.StopReason)),
		ToolCalls:    toolCalls,
		Usage: llm.Usage{
			PromptTokens:     message.Usage.InputTokens,
			CompletionTokens: message.Usage.OutputTokens,
			TotalTokens:      message.Usage.InputTokens + message.Usage.OutputTokens,
		},
	}, nil
}

// decodeToolInput extracts tool arguments from the SDK's raw input value.
func decodeToolInput(input any) (map[string]any, error) {
	if input == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return map[string]any{}, nil
	}
	return llm.ParseToolArguments(string(raw))
}

func mapStopReason(reason string) llm.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	default:
		return llm.FinishReasonOther
	}
}

// wireError converts Anthropic SDK errors into a TransportError carrying
// the wire-level facts. Non-API errors (transport failures, cancellation)
// pass through untouched for the classifier.
func wireError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	te := &llm.TransportError{
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
		Cause:      err,
	}
	if apiErr.Response != nil {
		te.RetryAfter = llm.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}

	// The error body is {"type":"error","error":{"type":...,"message":...}}.
	var env struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal([]byte(apiErr.RawJSON()), &env); jsonErr == nil {
		if env.Error.Type != "" {
			te.Code = env.Error.Type
		}
		if env.Error.Message != "" {
			te.Message = env.Error.Message
		}
	}
	return te
}
