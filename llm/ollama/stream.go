package ollama

import (
	"context"
	"sync"

	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/ollama/ollama/api"
)

// ollamaStream implements the llm.Stream interface for Ollama streaming
// responses. The Ollama client is callback-driven, so responses are
// pumped into an event buffer from a goroutine and handed out through
// Next under a condition variable.
type ollamaStream struct {
	ctx     context.Context
	client  *api.Client
	req     *api.ChatRequest
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
}

func newOllamaStream(ctx context.Context, client *api.Client, req *api.ChatRequest) *ollamaStream {
	stream := &ollamaStream{
		ctx:     ctx,
		client:  client,
		req:     req,
		events:  make([]*llm.StreamEvent, 0),
		current: -1,
	}
	stream.cond = sync.NewCond(&stream.mu)
	return stream
}

// Next advances to the next event in the stream.
func (s *ollamaStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		go s.startStream()
	}

	s.current++
	for s.current >= len(s.events) && !s.done && s.err == nil {
		s.cond.Wait()
	}

	if s.err != nil {
		return false
	}
	if s.done && s.current >= len(s.events) {
		return false
	}
	return s.current < len(s.events)
}

// Event returns the current event.
func (s *ollamaStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *ollamaStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return wireError(s.err)
	}
	return nil
}

// Close closes the stream and releases resources.
func (s *ollamaStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.cond.Broadcast()
	return nil
}

// startStream drives the callback-based chat call and translates each
// partial response into events.
func (s *ollamaStream) startStream() {
	err := s.client.Chat(s.ctx, s.req, func(resp api.ChatResponse) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.done {
			return context.Canceled
		}

		if resp.Message.Content != "" {
			s.events = append(s.events, &llm.StreamEvent{
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeText,
					Text: resp.Message.Content,
				},
			})
		}
		for _, tc := range resp.Message.ToolCalls {
			call := fromToolCall(tc)
			s.events = append(s.events, &llm.StreamEvent{
				Delta: &llm.StreamDelta{
					Type:     llm.StreamDeltaTypeToolCall,
					ToolCall: &call,
				},
			})
		}

		if resp.Done {
			s.events = append(s.events, &llm.StreamEvent{
				Usage: &llm.Usage{
					PromptTokens:     int64(resp.PromptEvalCount),
					CompletionTokens: int64(resp.EvalCount),
					TotalTokens:      int64(resp.PromptEvalCount + resp.EvalCount),
				},
				Done: true,
			})
			s.done = true
		}

		s.cond.Broadcast()
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !s.done {
		s.err = err
	}
	s.done = true
	s.cond.Broadcast()
}

var _ llm.Stream = (*ollamaStream)(nil)
