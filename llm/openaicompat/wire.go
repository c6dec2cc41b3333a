package openaicompat

import (
	"encoding/json"
	"fmt"

	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/samber/lo"
)

// Wire shapes for OpenAI-compatible chat completion endpoints. Only the
// fields this adapter reads or writes are declared; servers are free to
// send more.

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int64         `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type wireChunk struct {
	Choices []wireChunkChoice `json:"choices"`
	Usage   *wireUsage        `json:"usage"`
	Error   *wireErrorDetail  `json:"error"`
}

type wireChunkChoice struct {
	Delta        wireChunkDelta `json:"delta"`
	FinishReason string         `json:"finish_reason"`
}

type wireChunkDelta struct {
	Content   string              `json:"content"`
	ToolCalls []wireToolCallDelta `json:"tool_calls"`
}

type wireToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Function wireFunction `json:"function"`
}

type wireErrorEnvelope struct {
	Error *wireErrorDetail `json:"error"`
}

type wireErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (d *wireErrorDetail) codeString() string {
	switch c := d.Code.(type) {
	case nil:
		return d.Type
	case string:
		if c == "" {
			return d.Type
		}
		return c
	default:
		b, _ := json.Marshal(c)
		return string(b)
	}
}

// toWireMessages converts canonical messages to the wire shape.
func toWireMessages(msgs []llm.Message) []wireMessage {
	return lo.Map(msgs, func(m llm.Message, _ int) wireMessage {
		return wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolCalls: lo.Map(m.ToolCalls, func(tc llm.ToolCall, _ int) wireToolCall {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				return wireToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: wireFunction{Name: tc.Name, Arguments: string(args)},
				}
			}),
		}
	})
}

// fromWireResponse converts a wire response to the canonical response.
func fromWireResponse(resp *wireResponse) (*llm.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}
	choice := resp.Choices[0]

	out := &llm.Response{
		Content:      choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := llm.ParseToolArguments(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("decoding tool call arguments for %s: %w", tc.Function.Name, err)
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

func mapFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "stop", "":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	case "tool_calls", "function_call":
		return llm.FinishReasonToolCalls
	default:
		return llm.FinishReasonOther
	}
}
