package llm

import (
	"fmt"
	"regexp"
	"strconv"
)

// Patterns for pulling current/maximum token counts out of context-length
// error messages. Each provider words the failure differently:
//
//	anthropic: "prompt is too long: 210042 tokens > 200000 maximum"
//	openai:    "This model's maximum context length is 8192 tokens. However,
//	            your messages resulted in 9215 tokens"
var (
	tokensOverMaxPattern = regexp.MustCompile(`(\d+) tokens? > (\d+) maximum`)
	maxThenCurrentPattern = regexp.MustCompile(
		`maximum context length is (\d+) tokens.*?(\d+) tokens`)
	anyTokenCountPattern = regexp.MustCompile(`(\d+) tokens?`)
)

// tokenCounts extracts (current, maximum) token counts from a
// context-length error message. Either value may be 0 when absent.
func tokenCounts(message string) (current, maximum int64) {
	if m := tokensOverMaxPattern.FindStringSubmatch(message); m != nil {
		current, _ = strconv.ParseInt(m[1], 10, 64)
		maximum, _ = strconv.ParseInt(m[2], 10, 64)
		return current, maximum
	}
	if m := maxThenCurrentPattern.FindStringSubmatch(message); m != nil {
		maximum, _ = strconv.ParseInt(m[1], 10, 64)
		current, _ = strconv.ParseInt(m[2], 10, 64)
		return current, maximum
	}
	if m := anyTokenCountPattern.FindStringSubmatch(message); m != nil {
		current, _ = strconv.ParseInt(m[1], 10, 64)
	}
	return current, 0
}

// credentialHint names the credential source for a backend family.
func credentialHint(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "the backend's api_key setting"
	}
}

// suggestedFix renders per-kind remediation text, interpolating values
// parsed from the classified error where available.
func suggestedFix(cfg BackendConfig, e *Error) string {
	switch e.Kind {
	case KindInvalidAPIKey:
		return fmt.Sprintf("Verify the API key for backend %q (check %s).",
			cfg.BackendID, credentialHint(cfg.Provider))

	case KindMissingEndpoint:
		return fmt.Sprintf("Backend %q has no endpoint configured; set one before sending requests.", cfg.BackendID)

	case KindInvalidEndpoint:
		return fmt.Sprintf("The endpoint %q returned 404; check the URL path and that the server speaks the expected API.", cfg.Endpoint)

	case KindModelNotFound:
		if cfg.Provider == ProviderOllama {
			return fmt.Sprintf("Model %q is not available on the server; pull it first (ollama pull %s).", cfg.Model, cfg.Model)
		}
		return fmt.Sprintf("Model %q was not found; check the model name against the backend's model list.", cfg.Model)

	case KindContextLengthExceeded:
		current, maximum := tokenCounts(e.Message)
		if current > 0 && maximum > 0 {
			return fmt.Sprintf("The conversation is %d tokens but the model accepts at most %d; shorten the context or raise the truncation budget.", current, maximum)
		}
		if current > 0 {
			return fmt.Sprintf("The conversation is %d tokens, over the model's limit; shorten the context or raise the truncation budget.", current)
		}
		return "The conversation exceeds the model's context window; shorten the context or raise the truncation budget."

	case KindRateLimitExceeded:
		if e.RetryAfter != nil {
			return fmt.Sprintf("Rate limited; the server asked to wait %s before retrying.", e.RetryAfter)
		}
		return "Rate limited; retries back off automatically. Reduce request volume if this persists."

	case KindQuotaExceeded:
		return fmt.Sprintf("The account behind backend %q is out of quota or credit; check billing with the provider.", cfg.BackendID)

	case KindConnectionRefused:
		if cfg.Endpoint != "" {
			return fmt.Sprintf("Nothing is listening at %q; make sure the server is running and reachable.", cfg.Endpoint)
		}
		return "The backend refused the connection; make sure the server is running and reachable."

	case KindNetworkError:
		return "A network failure interrupted the call; check connectivity and the endpoint host name."

	case KindTimeout:
		return "The call timed out; raise the backend timeout or check server load."

	case KindServerError, KindServiceUnavailable:
		return "The backend reported a server-side failure; retries back off automatically."

	case KindOverloaded:
		return "The backend is overloaded; retries back off automatically. Try again later if this persists."

	case KindOutOfMemory:
		return fmt.Sprintf("The server ran out of memory loading %q; use a smaller model or free resources.", cfg.Model)

	case KindStreamError:
		return "The response stream was corrupted or interrupted; restart the call."

	case KindCancelled:
		return ""

	case KindInvalidRequest:
		return "The request was rejected as malformed; inspect the message list and parameters."

	case KindInvalidResponse:
		return "The backend returned an unusable response; this usually indicates an incompatible endpoint or model."

	default:
		return ""
	}
}
