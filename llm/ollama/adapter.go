package ollama

import (
	"errors"

	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// toChatMessages converts canonical messages to Ollama chat format.
// Ollama accepts system messages inline in the message list.
func toChatMessages(msgs []llm.Message) []api.Message {
	return lo.Map(msgs, func(m llm.Message, _ int) api.Message {
		out := api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		}
		for _, tc := range m.ToolCalls {
			args := make(api.ToolCallFunctionArguments, len(tc.Arguments))
			for k, v := range tc.Arguments {
				args[k] = v
			}
			out.ToolCalls = append(out.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		return out
	})
}

// fromChatResponse converts an Ollama chat response to the canonical
// response.
func fromChatResponse(resp *api.ChatResponse) (*llm.Response, error) {
	out := &llm.Response{
		Content:      resp.Message.Content,
		FinishReason: mapDoneReason(resp.DoneReason),
		Usage: llm.Usage{
			PromptTokens:     int64(resp.PromptEvalCount),
			CompletionTokens: int64(resp.EvalCount),
			TotalTokens:      int64(resp.PromptEvalCount + resp.EvalCount),
		},
	}
	for _, tc := range resp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, fromToolCall(tc))
	}
	if len(out.ToolCalls) > 0 && out.FinishReason == llm.FinishReasonStop {
		out.FinishReason = llm.FinishReasonToolCalls
	}
	return out, nil
}

func fromToolCall(tc api.ToolCall) llm.ToolCall {
	args := make(map[string]any, len(tc.Function.Arguments))
	for k, v := range tc.Function.Arguments {
		args[k] = v
	}
	return llm.ToolCall{
		Name:      tc.Function.Name,
		Arguments: args,
	}
}

func mapDoneReason(reason string) llm.FinishReason {
	switch reason {
	case "stop", "":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	default:
		return llm.FinishReasonOther
	}
}

// wireError converts Ollama API errors into a TransportError carrying the
// wire-level facts. Non-API errors pass through for the classifier.
func wireError(err error) error {
	var statusErr api.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	message := statusErr.ErrorMessage
	if message == "" {
		message = statusErr.Status
	}
	return &llm.TransportError{
		StatusCode: statusErr.StatusCode,
		Message:    message,
		Cause:      err,
	}
}
