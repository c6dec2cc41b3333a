// Package backends wires the concrete adapter families to the bridge.
// It exists so the llm package itself never imports a provider package.
package backends

import (
	"github.com/jhalvorsen/llmrelay/llm"
	"github.com/jhalvorsen/llmrelay/llm/anthropic"
	"github.com/jhalvorsen/llmrelay/llm/ollama"
	"github.com/jhalvorsen/llmrelay/llm/openai"
	"github.com/jhalvorsen/llmrelay/llm/openaicompat"
	"github.com/rs/zerolog"
)

// NewClient is a llm.ClientFactory covering every adapter family.
// Unknown provider names fall back to the OpenAI-compatible adapter,
// which is the contract for custom endpoints.
func NewClient(cfg llm.BackendConfig, logger zerolog.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case llm.ProviderAnthropic:
		return anthropic.NewClient(cfg, logger)
	case llm.ProviderOpenAI:
		return openai.NewClient(cfg, logger)
	case llm.ProviderOllama:
		return ollama.NewClient(cfg, logger)
	default:
		return openaicompat.NewClient(cfg, logger)
	}
}
