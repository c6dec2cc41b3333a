package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Classify maps a raw backend failure into a canonical *Error. It is the
// single place kinds are assigned: adapters hand over wire-level facts
// (TransportError) or raw transport exceptions, and the bridge acts only
// on the resulting Retryable flag. Pure function of its inputs.
func Classify(cfg BackendConfig, err error) *Error {
	if err == nil {
		return nil
	}

	// Already classified upstream (e.g. request validation in the bridge).
	if e := AsError(err); e != nil {
		return e
	}

	var classified *Error
	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode > 0 {
		classified = classifyStatus(cfg, transportErr)
	} else {
		classified = classifyException(cfg, err)
	}

	classified.SuggestedFix = suggestedFix(cfg, classified)
	return classified
}

// classifyException maps transport-level exceptions (no HTTP response) to kinds.
func classifyException(cfg BackendConfig, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindCancelled, cfg.BackendID, "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, cfg.BackendID, "request timed out", err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return newError(KindConnectionRefused, cfg.BackendID, "connection refused", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newError(KindNetworkError, cfg.BackendID, "name resolution failed: "+dnsErr.Name, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, cfg.BackendID, "request timed out", err)
	}

	// Substring fallback for errors that arrive stringified through SDKs.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return newError(KindConnectionRefused, cfg.BackendID, "connection refused", err)
	case strings.Contains(msg, "no such host"):
		return newError(KindNetworkError, cfg.BackendID, "name resolution failed", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return newError(KindTimeout, cfg.BackendID, "request timed out", err)
	case strings.Contains(msg, "canceled") || strings.Contains(msg, "cancelled"):
		return newError(KindCancelled, cfg.BackendID, "request cancelled", err)
	}

	return newError(KindNetworkError, cfg.BackendID, err.Error(), err)
}

// classifyStatus dispatches on HTTP status first, then refines with the
// backend-specific error code/message the adapter decoded from the body.
func classifyStatus(cfg BackendConfig, te *TransportError) *Error {
	message := te.Message
	if message == "" {
		message = http.StatusText(te.StatusCode)
	}

	var kind ErrorKind
	switch te.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindInvalidAPIKey
	case http.StatusNotFound:
		kind = classifyNotFound(cfg, te)
	case http.StatusRequestTimeout:
		kind = KindTimeout
	case http.StatusRequestEntityTooLarge:
		kind = KindContextLengthExceeded
	case http.StatusTooManyRequests:
		kind = KindRateLimitExceeded
	case http.StatusInternalServerError:
		kind = KindServerError
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = KindServiceUnavailable
	default:
		switch {
		case te.StatusCode >= 500:
			kind = KindServerError
		default:
			kind = KindInvalidRequest
		}
	}

	// Body fields may override the status-based guess: a 400 mentioning
	// context length is a context-length failure, a 429 mentioning billing
	// is a quota failure, and so on.
	if refined, ok := refineKind(kind, te); ok {
		kind = refined
	}

	e := newError(kind, cfg.BackendID, message, te)
	e.StatusCode = te.StatusCode
	e.RetryAfter = te.RetryAfter
	return e
}

// classifyNotFound distinguishes a wrong endpoint path from a missing model.
// Hosted services have fixed, known paths, so a 404 there means the model;
// for local and custom endpoints the URL itself is user-supplied and suspect.
func classifyNotFound(cfg BackendConfig, te *TransportError) ErrorKind {
	if mentionsModel(te) {
		return KindModelNotFound
	}
	switch cfg.Provider {
	case ProviderAnthropic, ProviderOpenAI:
		return KindModelNotFound
	default:
		return KindInvalidEndpoint
	}
}

func mentionsModel(te *TransportError) bool {
	text := strings.ToLower(te.Code + " " + te.Message)
	return strings.Contains(text, "model")
}

// refineKind inspects the decoded error code/message for conditions that
// the status code alone cannot distinguish.
func refineKind(kind ErrorKind, te *TransportError) (ErrorKind, bool) {
	text := strings.ToLower(te.Code + " " + te.Message)

	switch {
	case strings.Contains(text, "context_length") ||
		strings.Contains(text, "context length") ||
		strings.Contains(text, "prompt is too long") ||
		strings.Contains(text, "request_too_large") ||
		strings.Contains(text, "too many tokens"):
		return KindContextLengthExceeded, true

	case strings.Contains(text, "insufficient_quota") ||
		strings.Contains(text, "quota") ||
		strings.Contains(text, "billing") ||
		strings.Contains(text, "credit balance"):
		return KindQuotaExceeded, true

	case strings.Contains(text, "overloaded"):
		return KindOverloaded, true

	case strings.Contains(text, "out of memory") ||
		strings.Contains(text, "insufficient memory") ||
		strings.Contains(text, "system memory"):
		return KindOutOfMemory, true

	case strings.Contains(text, "invalid_api_key") ||
		strings.Contains(text, "invalid api key") ||
		strings.Contains(text, "authentication_error"):
		return KindInvalidAPIKey, true

	case kind != KindRateLimitExceeded &&
		(strings.Contains(text, "rate_limit") || strings.Contains(text, "rate limit")):
		return KindRateLimitExceeded, true

	case strings.Contains(text, "model_not_found") ||
		strings.Contains(text, "model not found"):
		return KindModelNotFound, true
	}

	return kind, false
}
