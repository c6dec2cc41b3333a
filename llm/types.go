package llm

import (
	"encoding/json"
	"time"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// KnownRole reports whether the role is one of the recognized roles.
func KnownRole(role MessageRole) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
// Content may be empty only for assistant turns that carry tool calls.
type Message struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	Timestamp  time.Time   `json:"timestamp,omitempty"`
}

// NewTextMessage creates a new message with text content and the current timestamp.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now(),
	}
}

// ToolCall represents a tool invocation request from the assistant.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// FinishReason describes why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonOther     FinishReason = "other"
)

// Usage represents token usage counters from an LLM response.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Request represents a complete provider-neutral LLM API request.
type Request struct {
	Messages    []Message
	Temperature *float64 // Optional temperature override
	MaxTokens   int64
}

// Response represents a complete provider-neutral LLM API response.
type Response struct {
	Content      string
	FinishReason FinishReason
	Usage        Usage
	ToolCalls    []ToolCall
}

// HasContent reports whether the response carries usable output,
// either generated text or at least one tool call.
func (r *Response) HasContent() bool {
	return r != nil && (r.Content != "" || len(r.ToolCalls) > 0)
}

// BackendConfig identifies one configured backend and how to reach it.
// It is passed by value into the bridge per call and never mutated.
type BackendConfig struct {
	BackendID   string
	Provider    string
	Model       string
	Endpoint    string
	APIKey      string
	Temperature *float64
	MaxTokens   int64
	Timeout     time.Duration
}

// StreamDeltaType represents the type of streaming delta.
type StreamDeltaType string

const (
	StreamDeltaTypeText      StreamDeltaType = "text"
	StreamDeltaTypeToolCall  StreamDeltaType = "tool_call"
	StreamDeltaTypeToolInput StreamDeltaType = "tool_input"
)

// StreamDelta represents a single delta in a streaming response.
type StreamDelta struct {
	Type      StreamDeltaType
	Text      string    // For text deltas
	ToolCall  *ToolCall // For tool call start
	ToolInput string    // For tool argument JSON fragments
}

// StreamEvent represents a complete streaming event. The final event of a
// well-formed stream has Done set; no events follow it.
type StreamEvent struct {
	Delta *StreamDelta
	Usage *Usage
	Done  bool
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
