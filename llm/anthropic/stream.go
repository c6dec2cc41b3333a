package anthropic

import (
	"context"
	"strings"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/rs/zerolog"
)

// anthropicStream implements the llm.Stream interface for Anthropic
// streaming responses.
type anthropicStream struct {
	ctx     context.Context
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond // Signals event availability to Next
	err     error
	done    bool
	started bool
	logger  zerolog.Logger
}

func newAnthropicStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], logger zerolog.Logger) *anthropicStream {
	as := &anthropicStream{
		ctx:     ctx,
		stream:  stream,
		events:  make([]*llm.StreamEvent, 0),
		current: -1,
		logger:  logger,
	}
	as.cond = sync.NewCond(&as.mu)
	return as
}

// Next advances to the next event in the stream.
func (s *anthropicStream) Next() bool {
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
func (s *anthropicStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *anthropicStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return wireError(s.err)
	}
	return nil
}

// Close closes the stream and releases resources.
func (s *anthropicStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.cond.Broadcast()
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

// emit appends an event and wakes any waiting reader. Callers hold s.mu.
func (s *anthropicStream) emit(ev *llm.StreamEvent) {
	s.events = append(s.events, ev)
	s.cond.Broadcast()
}

// startStream consumes the SDK stream and translates its events.
func (s *anthropicStream) startStream() {
	var currentToolCall *llm.ToolCall
	var toolInputBuilder strings.Builder
	var usage *llm.Usage

	for s.stream.Next() {
		event := s.stream.Current()

		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			return
		}

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				currentToolCall = &llm.ToolCall{
					ID:        block.ID,
					Name:      block.Name,
					Arguments: map[string]any{},
				}
				toolInputBuilder.Reset()
				s.emit(&llm.StreamEvent{
					Delta: &llm.StreamDelta{
						Type:     llm.StreamDeltaTypeToolCall,
						ToolCall: currentToolCall,
					},
				})
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					s.emit(&llm.StreamEvent{
						Delta: &llm.StreamDelta{
							Type: llm.StreamDeltaTypeText,
							Text: d.Text,
						},
					})
				}
			case anthropic.InputJSONDelta:
				if currentToolCall != nil && d.PartialJSON != "" {
					toolInputBuilder.WriteString(d.PartialJSON)
					s.emit(&llm.StreamEvent{
						Delta: &llm.StreamDelta{
							Type:      llm.StreamDeltaTypeToolInput,
							ToolInput: d.PartialJSON,
						},
					})
				}
			}

		case anthropic.ContentBlockStopEvent:
			if currentToolCall != nil {
				if args, err := llm.ParseToolArguments(toolInputBuilder.String()); err == nil {
					currentToolCall.Arguments = args
				}
				toolInputBuilder.Reset()
				currentToolCall = nil
			}

		case anthropic.MessageDeltaEvent:
			usage = &llm.Usage{
				PromptTokens:     evt.Usage.InputTokens,
				CompletionTokens: evt.Usage.OutputTokens,
				TotalTokens:      evt.Usage.InputTokens + evt.Usage.OutputTokens,
			}

		case anthropic.MessageStopEvent:
			s.emit(&llm.StreamEvent{Usage: usage, Done: true})
			s.done = true
			s.mu.Unlock()
			return
		}

		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Err(); err != nil && !s.done {
		s.err = err
		s.done = true
		s.cond.Broadcast()
		return
	}
	if !s.done {
		// Connection closed without a stop event; finish gracefully.
		s.emit(&llm.StreamEvent{Usage: usage, Done: true})
		s.done = true
	}
}

var _ llm.Stream = (*anthropicStream)(nil)
