// Package conversation owns the ordered message log for a single chat
// session and keeps it within a token budget. Every mutation re-checks
// the budget and truncates per the configured strategy, so callers can
// hand Messages() straight to a backend without further trimming.
//
// A Context is not safe for concurrent mutation. The owner serializes
// AddMessage/AddToolResult per conversation, typically by keeping one
// Context per conversation id and never sharing it.
package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhalvorsen/llmrelay/llm"
)

// Strategy names a truncation policy.
type Strategy string

const (
	// StrategyRecent drops the oldest non-system messages first and
	// falls back to content-level truncation when dropping is not enough.
	StrategyRecent Strategy = "recent"
	// StrategySlidingWindow keeps the most recent ~60% of non-system
	// messages each time the budget is exceeded.
	StrategySlidingWindow Strategy = "sliding_window"
	// StrategyPriorityBased ranks system > tool > conversation and
	// drops the lowest-priority, oldest messages first.
	StrategyPriorityBased Strategy = "priority_based"
)

const (
	defaultMaxTokens         = 8000
	defaultMinRecentMessages = 2
)

// Options configures a conversation context.
type Options struct {
	// MaxTokens is the token budget the message log must stay within.
	MaxTokens int `json:"max_tokens"`
	// Strategy selects the truncation policy. Defaults to recent.
	Strategy Strategy `json:"strategy"`
	// MinRecentMessages is a floor of most-recent non-system messages
	// that eviction never removes.
	MinRecentMessages int `json:"min_recent_messages"`
	// PreserveToolResults counts tool results against the budget and
	// protects the most recent one when truncation runs.
	PreserveToolResults bool `json:"preserve_tool_results"`
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Strategy == "" {
		o.Strategy = StrategyRecent
	}
	if o.MinRecentMessages <= 0 {
		o.MinRecentMessages = defaultMinRecentMessages
	}
	return o
}

// ToolResult records one tool execution attached to the conversation.
type ToolResult struct {
	ID            string         `json:"id"`
	ToolName      string         `json:"tool_name"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Output        string         `json:"output"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Stats is a read-only snapshot of a context's state.
type Stats struct {
	ID              string    `json:"id"`
	MessageCount    int       `json:"message_count"`
	ToolResultCount int       `json:"tool_result_count"`
	TokenCount      int       `json:"token_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Options         Options   `json:"options"`
}

// Context holds the ordered message log and tool results for one
// conversation, enforcing the token budget on every mutation.
type Context struct {
	id          string
	opts        Options
	messages    []llm.Message
	toolResults []ToolResult
	createdAt   time.Time
	updatedAt   time.Time
	logger      zerolog.Logger
}

// New creates an empty conversation context.
func New(opts Options, logger zerolog.Logger) *Context {
	now := time.Now()
	return &Context{
		id:        uuid.New().String(),
		opts:      opts.withDefaults(),
		createdAt: now,
		updatedAt: now,
		logger:    logger.With().Str("component", "conversation").Logger(),
	}
}

// ID returns the context's unique identifier.
func (c *Context) ID() string {
	return c.id
}

// AddMessage appends a message, then truncates if the log is over
// budget. Messages with a zero timestamp are stamped on append.
func (c *Context) AddMessage(msg llm.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.messages = append(c.messages, msg)
	c.updatedAt = time.Now()
	c.truncateIfNeeded()
}

// AddToolResult appends a tool result unconditionally. When tool
// results count against the budget this may trigger truncation.
func (c *Context) AddToolResult(res ToolResult) {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	c.toolResults = append(c.toolResults, res)
	c.updatedAt = time.Now()
	c.truncateIfNeeded()
}

// Messages returns a copy of the current message log in insertion
// order, ready to hand to a backend.
func (c *Context) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ToolResults returns a copy of the retained tool results.
func (c *Context) ToolResults() []ToolResult {
	out := make([]ToolResult, len(c.toolResults))
	copy(out, c.toolResults)
	return out
}

// TokenCount returns the current estimated token count of the context.
func (c *Context) TokenCount() int {
	total := 0
	for _, msg := range c.messages {
		total += messageTokens(msg)
	}
	if c.opts.PreserveToolResults {
		for _, res := range c.toolResults {
			total += EstimateTokens(res.Output) + messageOverheadTokens
		}
	}
	return total
}

// messageTokens estimates one message including framing overhead and
// any tool-call payload it carries.
func messageTokens(msg llm.Message) int {
	total := EstimateTokens(msg.Content) + messageOverheadTokens
	for _, tc := range msg.ToolCalls {
		total += EstimateTokens(tc.Name)
		if len(tc.Arguments) > 0 {
			if raw, err := json.Marshal(tc.Arguments); err == nil {
				total += EstimateTokens(string(raw))
			}
		}
	}
	return total
}

// Stats returns a read-only snapshot of the context.
func (c *Context) Stats() Stats {
	return Stats{
		ID:              c.id,
		MessageCount:    len(c.messages),
		ToolResultCount: len(c.toolResults),
		TokenCount:      c.TokenCount(),
		CreatedAt:       c.createdAt,
		UpdatedAt:       c.updatedAt,
		Options:         c.opts,
	}
}

// snapshot is the serialized form of a Context. Field order and shapes
// are stable so external callers can persist and reload across runs.
type snapshot struct {
	ID          string        `json:"id"`
	Options     Options       `json:"options"`
	Messages    []llm.Message `json:"messages"`
	ToolResults []ToolResult  `json:"tool_results,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Serialize round-trips the full state as JSON. The token count is
// derived, not stored; a reloaded context recomputes the same value.
func (c *Context) Serialize() ([]byte, error) {
	snap := snapshot{
		ID:          c.id,
		Options:     c.opts,
		Messages:    c.messages,
		ToolResults: c.toolResults,
		CreatedAt:   c.createdAt,
		UpdatedAt:   c.updatedAt,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize conversation context: %w", err)
	}
	return data, nil
}

// Deserialize reconstructs a context from its serialized form.
func Deserialize(data []byte, logger zerolog.Logger) (*Context, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to deserialize conversation context: %w", err)
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	return &Context{
		id:          snap.ID,
		opts:        snap.Options.withDefaults(),
		messages:    snap.Messages,
		toolResults: snap.ToolResults,
		createdAt:   snap.CreatedAt,
		updatedAt:   snap.UpdatedAt,
		logger:      logger.With().Str("component", "conversation").Logger(),
	}, nil
}
