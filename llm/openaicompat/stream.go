package openaicompat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jhalvorsen/llmrelay/llm"
)

// stream implements the llm.Stream interface over a server-sent event
// response body. Decoding is pull-based: each Next() call reads at most
// one frame from the transport, so cancellation via the request context
// stops reading promptly.
type stream struct {
	resp *http.Response
	dec  *sseDecoder

	event   *llm.StreamEvent
	pending []*llm.StreamEvent
	usage   *llm.Usage

	// Tool call argument fragments accumulate per choice-delta index until
	// the stream finishes.
	toolCalls map[int]*llm.ToolCall

	err    error
	done   bool
	closed bool
}

func newStream(resp *http.Response) *stream {
	return &stream{
		resp:      resp,
		dec:       newSSEDecoder(resp.Body),
		toolCalls: make(map[int]*llm.ToolCall),
	}
}

// Next advances to the next event in the stream.
func (s *stream) Next() bool {
	if s.err != nil || s.closed {
		return false
	}
	for {
		if len(s.pending) > 0 {
			s.event = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.done {
			return false
		}
		if !s.readFrame() {
			return false
		}
	}
}

// Event returns the current event.
func (s *stream) Event() *llm.StreamEvent {
	return s.event
}

// Err returns any error that occurred during streaming.
func (s *stream) Err() error {
	return s.err
}

// Close closes the stream and releases resources.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resp.Body.Close()
}

// readFrame reads one SSE frame and queues the events it produces.
// Returns false when the stream failed or finished without producing
// new events.
func (s *stream) readFrame() bool {
	data, err := s.dec.Next()
	if err != nil {
		if err == io.EOF {
			// Some servers close the connection without a [DONE] sentinel.
			s.finish()
			return true
		}
		s.err = err
		return false
	}

	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("[DONE]")) {
		s.finish()
		return true
	}

	var chunk wireChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		s.err = fmt.Errorf("decoding stream frame: %w", err)
		return false
	}
	if chunk.Error != nil {
		s.err = fmt.Errorf("stream carried error frame: %s", chunk.Error.Message)
		return false
	}

	if chunk.Usage != nil {
		s.usage = &llm.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			s.pending = append(s.pending, &llm.StreamEvent{
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeText,
					Text: choice.Delta.Content,
				},
			})
		}
		for _, tc := range choice.Delta.ToolCalls {
			s.applyToolCallDelta(tc)
		}
	}
	return true
}

// applyToolCallDelta folds one tool call fragment into the per-index
// accumulator, emitting a start event for new calls and input fragments
// for argument text.
func (s *stream) applyToolCallDelta(tc wireToolCallDelta) {
	call, exists := s.toolCalls[tc.Index]
	if !exists {
		call = &llm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: map[string]any{}}
		s.toolCalls[tc.Index] = call
		s.pending = append(s.pending, &llm.StreamEvent{
			Delta: &llm.StreamDelta{
				Type:     llm.StreamDeltaTypeToolCall,
				ToolCall: call,
			},
		})
	}
	if tc.ID != "" {
		call.ID = tc.ID
	}
	if tc.Function.Name != "" {
		call.Name = tc.Function.Name
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

// finish queues the terminal event.
func (s *stream) finish() {
	s.done = true
	s.pending = append(s.pending, &llm.StreamEvent{
		Usage: s.usage,
		Done:  true,
	})
}

var _ llm.Stream = (*stream)(nil)
