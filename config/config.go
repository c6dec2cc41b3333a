// Package config loads the relay's YAML configuration: the set of
// named backends, retry tuning, and conversation-context defaults.
// Values merge in three layers: built-in defaults, then the config
// file, then environment variables for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/jhalvorsen/llmrelay/conversation"
	"github.com/jhalvorsen/llmrelay/llm"
)

// BackendSettings describes one configured backend in the YAML file.
type BackendSettings struct {
	Provider    string   `yaml:"provider"`              // anthropic, openai, ollama, or custom
	Model       string   `yaml:"model,omitempty"`       // Model name; provider default if omitted
	Endpoint    string   `yaml:"endpoint,omitempty"`    // Base URL; required for custom
	APIKey      string   `yaml:"api_key,omitempty"`     // Credential; env fallback applies if empty
	Temperature *float64 `yaml:"temperature,omitempty"` // Optional sampling temperature
	MaxTokens   int64    `yaml:"max_tokens,omitempty"`  // Generation cap
	Timeout     int      `yaml:"timeout,omitempty"`     // Per-call timeout in seconds
}

// RetrySettings tunes the backoff schedule.
type RetrySettings struct {
	MaxAttempts          int `yaml:"max_attempts,omitempty"`
	RateLimitMaxAttempts int `yaml:"rate_limit_max_attempts,omitempty"`
	InitialDelayMs       int `yaml:"initial_delay_ms,omitempty"`
	MaxIntervalMs        int `yaml:"max_interval_ms,omitempty"`
}

// ConversationSettings sets the defaults for new conversation contexts.
type ConversationSettings struct {
	MaxTokens           int    `yaml:"max_tokens,omitempty"`
	Strategy            string `yaml:"strategy,omitempty"` // recent, sliding_window, priority_based
	MinRecentMessages   int    `yaml:"min_recent_messages,omitempty"`
	PreserveToolResults bool   `yaml:"preserve_tool_results,omitempty"`
}

// Config is the full relay configuration.
type Config struct {
	DefaultBackend string                      `yaml:"default_backend,omitempty"`
	Backends       map[string]*BackendSettings `yaml:"backends,omitempty"`
	Retry          RetrySettings               `yaml:"retry,omitempty"`
	Conversation   ConversationSettings        `yaml:"conversation,omitempty"`
}

// GetConfigPath returns the default config file path.
// Can be overridden via LLMRELAY_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("LLMRELAY_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.llmrelay/config.yaml"
	}
	return filepath.Join(homeDir, ".llmrelay", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

func defaults() Config {
	return Config{
		Backends: map[string]*BackendSettings{},
		Retry: RetrySettings{
			MaxAttempts:          llm.DefaultMaxAttempts,
			RateLimitMaxAttempts: llm.DefaultRateLimitMaxAttempts,
			InitialDelayMs:       int(llm.DefaultInitialDelay / time.Millisecond),
			MaxIntervalMs:        int(llm.DefaultMaxInterval / time.Millisecond),
		},
		Conversation: ConversationSettings{
			MaxTokens:         8000,
			Strategy:          string(conversation.StrategyRecent),
			MinRecentMessages: 2,
		},
	}
}

// Load reads configuration from the given path, merged onto the
// built-in defaults. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		return &cfg, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var fileConfig Config
	if err := yaml.Unmarshal(configYAML, &fileConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mergo.Merge(&cfg, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	// Backend ids are only known after the merge; apply per-backend
	// defaults here rather than in the zero value.
	for id, backend := range cfg.Backends {
		if backend == nil {
			cfg.Backends[id] = &BackendSettings{}
			backend = cfg.Backends[id]
		}
		if backend.Provider == "" {
			backend.Provider = llm.ProviderCustom
		}
	}
	if cfg.DefaultBackend == "" && len(cfg.Backends) == 1 {
		for id := range cfg.Backends {
			cfg.DefaultBackend = id
		}
	}

	return &cfg, nil
}

// Save writes the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Backend resolves one named backend into the value handed to the
// bridge per call. Credential env fallbacks are applied by the bridge,
// not here, so the returned value reflects the file contents.
func (c *Config) Backend(id string) (llm.BackendConfig, error) {
	if id == "" {
		id = c.DefaultBackend
	}
	if id == "" {
		return llm.BackendConfig{}, fmt.Errorf("no backend specified and no default_backend configured")
	}
	settings, ok := c.Backends[id]
	if !ok {
		return llm.BackendConfig{}, fmt.Errorf("unknown backend %q", id)
	}
	return llm.BackendConfig{
		BackendID:   id,
		Provider:    settings.Provider,
		Model:       settings.Model,
		Endpoint:    settings.Endpoint,
		APIKey:      settings.APIKey,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Timeout:     time.Duration(settings.Timeout) * time.Second,
	}, nil
}

// BackendIDs returns the configured backend ids in sorted order.
func (c *Config) BackendIDs() []string {
	ids := make([]string, 0, len(c.Backends))
	for id := range c.Backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RetryPolicy converts the retry settings to the bridge's policy type.
func (c *Config) RetryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:          c.Retry.MaxAttempts,
		RateLimitMaxAttempts: c.Retry.RateLimitMaxAttempts,
		InitialDelay:         time.Duration(c.Retry.InitialDelayMs) * time.Millisecond,
		MaxInterval:          time.Duration(c.Retry.MaxIntervalMs) * time.Millisecond,
	}
}

// ConversationOptions converts the conversation settings to the
// context manager's options type.
func (c *Config) ConversationOptions() conversation.Options {
	return conversation.Options{
		MaxTokens:           c.Conversation.MaxTokens,
		Strategy:            conversation.Strategy(c.Conversation.Strategy),
		MinRecentMessages:   c.Conversation.MinRecentMessages,
		PreserveToolResults: c.Conversation.PreserveToolResults,
	}
}
