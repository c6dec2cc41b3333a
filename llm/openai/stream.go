package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/jhalvorsen/llmrelay/llm"
	openai "github.com/sashabaranov/go-openai"
)

// openaiStream implements the llm.Stream interface for OpenAI streaming
// responses.
type openaiStream struct {
	ctx     context.Context
	stream  *openai.ChatCompletionStream
	event   *llm.StreamEvent
	pending []*llm.StreamEvent
	mu      sync.Mutex

	currentToolCall *llm.ToolCall
	usage           *llm.Usage

	err  error
	done bool
}

func newOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream) *openaiStream {
	return &openaiStream{
		ctx:    ctx,
		stream: stream,
	}
}

// Next advances to the next event in the stream.
func (s *openaiStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.pending) > 0 {
			s.event = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.err != nil || s.done {
			return false
		}
		s.recv()
	}
}

// Event returns the current event.
func (s *openaiStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

// Err returns any error that occurred during streaming.
func (s *openaiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return wireError(s.err)
	}
	return nil
}

// Close closes the stream and releases resources.
func (s *openaiStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

// recv pulls one chunk from the SDK stream and queues the events it
// produces. Callers hold s.mu.
func (s *openaiStream) recv() {
	if err := s.ctx.Err(); err != nil {
		s.err = err
		s.done = true
		return
	}
	response, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.finish()
			return
		}
		s.err = err
		s.done = true
		return
	}

	if response.Usage != nil {
		s.usage = &llm.Usage{
			PromptTokens:     int64(response.Usage.PromptTokens),
			CompletionTokens: int64(response.Usage.CompletionTokens),
			TotalTokens:      int64(response.Usage.TotalTokens),
		}
	}
	if len(response.Choices) == 0 {
		return
	}
	choice := response.Choices[0]

	if choice.Delta.Content != "" {
		s.pending = append(s.pending, &llm.StreamEvent{
			Delta: &llm.StreamDelta{
				Type: llm.StreamDeltaTypeText,
				Text: choice.Delta.Content,
			},
		})
	}

	for _, tc := range choice.Delta.ToolCalls {
		if tc.Function.Name != "" || tc.ID != "" {
			s.currentToolCall = &llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: map[string]any{},
			}
			s.pending = append(s.pending, &llm.StreamEvent{
				Delta: &llm.StreamDelta{
					Type:     llm.StreamDeltaTypeToolCall,
					ToolCall: s.currentToolCall,
				},
			})
		}
		if tc.Function.Arguments != "" {
			s.pending = append(s.pending, &llm.StreamEvent{
				Delta: &llm.StreamDelta{
					Type:      llm.StreamDeltaTypeToolInput,
					ToolInput: tc.Function.Arguments,
				},
			})
		}
	}

	// The terminal event waits for the SDK's EOF (the [DONE] sentinel):
	// servers that report usage do so in a chunk after finish_reason.
}

// finish queues the terminal event.
func (s *openaiStream) finish() {
	if s.done {
		return
	}
	s.done = true
	s.pending = append(s.pending, &llm.StreamEvent{Usage: s.usage, Done: true})
}

var _ llm.Stream = (*openaiStream)(nil)
