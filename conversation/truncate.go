package conversation

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jhalvorsen/llmrelay/llm"
)

// truncationMarker is appended to message content shortened by the
// emergency path so readers can tell the text is incomplete.
const truncationMarker = "\n[...truncated]"

// minContentLen is the shortest content the emergency path will shrink
// further. Below this, removing the whole message would have been the
// right call and the strategies already declined to do it.
const minContentLen = 16

// truncateIfNeeded brings the context back under budget after a
// mutation. Message-level eviction runs first per the configured
// strategy; content-level truncation is the emergency fallback when
// the irreducible minimum still exceeds the budget.
func (c *Context) truncateIfNeeded() {
	if c.TokenCount() <= c.opts.MaxTokens {
		return
	}
	beforeMessages := len(c.messages)
	beforeTokens := c.TokenCount()

	c.dropOldToolResults()

	switch c.opts.Strategy {
	case StrategySlidingWindow:
		c.truncateSlidingWindow()
	case StrategyPriorityBased:
		c.truncatePriorityBased()
	default:
		c.truncateRecent()
	}

	if c.TokenCount() > c.opts.MaxTokens {
		c.emergencyTruncate()
	}

	c.logger.Debug().
		Str("strategy", string(c.opts.Strategy)).
		Int("messages_before", beforeMessages).
		Int("messages_after", len(c.messages)).
		Int("tokens_before", beforeTokens).
		Int("tokens_after", c.TokenCount()).
		Msg("truncated conversation context")
}

// dropOldToolResults evicts the oldest tool results while over budget.
// The most recent result is always protected; older ones only count
// against the budget (and are therefore only worth dropping) when
// PreserveToolResults is set.
func (c *Context) dropOldToolResults() {
	if !c.opts.PreserveToolResults {
		return
	}
	for len(c.toolResults) > 1 && c.TokenCount() > c.opts.MaxTokens {
		c.toolResults = c.toolResults[1:]
	}
}

// truncateRecent drops the oldest non-system messages until the
// context fits, keeping every system message and at least
// MinRecentMessages of the most recent non-system ones.
func (c *Context) truncateRecent() {
	for c.TokenCount() > c.opts.MaxTokens {
		droppable := c.nonSystemIndexes()
		if len(droppable) <= c.opts.MinRecentMessages {
			return
		}
		c.removeMessage(droppable[0])
	}
}

// truncateSlidingWindow keeps the most recent ~60% of non-system
// messages, applied repeatedly while the context remains over budget.
func (c *Context) truncateSlidingWindow() {
	for c.TokenCount() > c.opts.MaxTokens {
		nonSystem := c.nonSystemIndexes()
		keep := len(nonSystem) * 6 / 10
		if keep < 1 {
			keep = 1
		}
		if keep >= len(nonSystem) {
			return
		}
		// Remove from the back of the droppable prefix so indexes
		// recorded earlier stay valid.
		drop := nonSystem[:len(nonSystem)-keep]
		for i := len(drop) - 1; i >= 0; i-- {
			c.removeMessage(drop[i])
		}
	}
}

// truncatePriorityBased evicts by rank (system > tool > conversation),
// oldest first within a rank, respecting the MinRecentMessages floor.
// System messages are never evicted.
func (c *Context) truncatePriorityBased() {
	for c.TokenCount() > c.opts.MaxTokens {
		nonSystem := c.nonSystemIndexes()
		if len(nonSystem) <= c.opts.MinRecentMessages {
			return
		}
		protected := make(map[int]bool, c.opts.MinRecentMessages)
		for _, idx := range nonSystem[len(nonSystem)-c.opts.MinRecentMessages:] {
			protected[idx] = true
		}

		candidates := make([]int, 0, len(nonSystem))
		for _, idx := range nonSystem {
			if !protected[idx] {
				candidates = append(candidates, idx)
			}
		}
		if len(candidates) == 0 {
			return
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			pi := messagePriority(c.messages[candidates[i]])
			pj := messagePriority(c.messages[candidates[j]])
			if pi != pj {
				return pi < pj
			}
			return candidates[i] < candidates[j]
		})
		c.removeMessage(candidates[0])
	}
}

// messagePriority ranks retention worth. Higher survives longer.
func messagePriority(msg llm.Message) int {
	switch msg.Role {
	case llm.RoleSystem:
		return 3
	case llm.RoleTool:
		return 2
	default:
		return 1
	}
}

// emergencyTruncate shortens message content in place when eviction
// alone cannot fit the budget. Non-system messages are shortened
// first, oldest to newest; system content is touched only as a last
// resort. Fitting is best-effort once every content hits the floor.
func (c *Context) emergencyTruncate() {
	for {
		if c.TokenCount() <= c.opts.MaxTokens {
			return
		}
		progress := false
		for _, idx := range c.emergencyOrder() {
			if c.TokenCount() <= c.opts.MaxTokens {
				return
			}
			if c.shrinkContent(idx) {
				progress = true
			}
		}
		if !progress {
			return
		}
	}
}

// emergencyOrder lists message indexes oldest-first with system
// messages deferred to the end.
func (c *Context) emergencyOrder() []int {
	order := make([]int, 0, len(c.messages))
	for i, msg := range c.messages {
		if msg.Role != llm.RoleSystem {
			order = append(order, i)
		}
	}
	for i, msg := range c.messages {
		if msg.Role == llm.RoleSystem {
			order = append(order, i)
		}
	}
	return order
}

// shrinkContent halves a message's content and appends the truncation
// marker. Reports whether anything was removed.
func (c *Context) shrinkContent(idx int) bool {
	body := strings.TrimSuffix(c.messages[idx].Content, truncationMarker)
	if len(body) <= minContentLen {
		return false
	}
	cut := len(body) / 2
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	c.messages[idx].Content = body[:cut] + truncationMarker
	return true
}

// nonSystemIndexes returns the indexes of non-system messages in
// insertion order.
func (c *Context) nonSystemIndexes() []int {
	out := make([]int, 0, len(c.messages))
	for i, msg := range c.messages {
		if msg.Role != llm.RoleSystem {
			out = append(out, i)
		}
	}
	return out
}

// removeMessage deletes the message at idx preserving order.
func (c *Context) removeMessage(idx int) {
	c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
}
