package llm

import (
	"os"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderCustom    = "custom"
)

const defaultOllamaHost = "http://localhost:11434"

// KnownProvider reports whether the provider names a specialized adapter
// family. Unknown providers fall back to the OpenAI-compatible adapter.
func KnownProvider(provider string) bool {
	switch provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderCustom:
		return true
	default:
		return false
	}
}

// ResolveCredentials fills unset credential and endpoint fields of a
// backend configuration from the environment, returning the completed
// copy. The input value is never mutated.
func ResolveCredentials(cfg BackendConfig) BackendConfig {
	switch cfg.Provider {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = os.Getenv("OPENAI_BASE_URL")
		}
	case ProviderOllama:
		if cfg.Endpoint == "" {
			cfg.Endpoint = os.Getenv("OLLAMA_HOST")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = defaultOllamaHost
		}
	}
	return cfg
}

// IsConfigured checks whether a backend has the configuration its adapter
// family requires before any network call is worth attempting.
func IsConfigured(cfg BackendConfig) bool {
	cfg = ResolveCredentials(cfg)
	switch cfg.Provider {
	case ProviderAnthropic, ProviderOpenAI:
		return cfg.APIKey != ""
	case ProviderOllama:
		// Ollama needs no credential and the host has a default.
		return true
	default:
		// Custom endpoints must name a URL; keys are optional.
		return cfg.Endpoint != ""
	}
}
