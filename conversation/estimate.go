package conversation

import (
	"strings"
)

const (
	// charsPerToken is the base estimation rate for plain prose.
	charsPerToken = 4

	// structuredMultiplier inflates the estimate for content that looks
	// like structured data. Tokenizers split JSON punctuation and code
	// symbols far more aggressively than prose, so a flat per-character
	// rate undercounts it.
	structuredMultiplier = 1.35

	// messageOverheadTokens accounts for role tags and message framing.
	messageOverheadTokens = 4
)

// EstimateTokens returns a deterministic token estimate for a piece of
// content. Empty content estimates to zero, and structured content never
// estimates below plain text of equal length.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	base := (len(content) + charsPerToken - 1) / charsPerToken
	if looksStructured(content) {
		return int(float64(base) * structuredMultiplier)
	}
	return base
}

// looksStructured detects JSON-ish or fenced-code content.
func looksStructured(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "```") {
		return true
	}
	switch trimmed[0] {
	case '{', '[':
		return true
	}
	return strings.Contains(trimmed, "\": ") || strings.Contains(trimmed, "\":")
}
