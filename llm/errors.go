package llm

import (
	"errors"
	"strconv"
	"time"
)

// Error represents a backend-neutral LLM error. Values are immutable after
// construction; the classifier is the only place kinds are assigned.
type Error struct {
	Kind         ErrorKind
	Message      string
	Backend      string
	StatusCode   int
	Retryable    bool
	RetryAfter   *time.Duration
	SuggestedFix string
	Cause        error // Original backend-specific error
}

// ErrorKind represents the canonical category of error.
type ErrorKind string

const (
	KindInvalidRequest        ErrorKind = "invalid_request"
	KindInvalidResponse       ErrorKind = "invalid_response"
	KindInvalidAPIKey         ErrorKind = "invalid_api_key"
	KindMissingEndpoint       ErrorKind = "missing_endpoint"
	KindInvalidEndpoint       ErrorKind = "invalid_endpoint"
	KindModelNotFound         ErrorKind = "model_not_found"
	KindContextLengthExceeded ErrorKind = "context_length_exceeded"
	KindRateLimitExceeded     ErrorKind = "rate_limit_exceeded"
	KindQuotaExceeded         ErrorKind = "quota_exceeded"
	KindConnectionRefused     ErrorKind = "connection_refused"
	KindNetworkError          ErrorKind = "network_error"
	KindTimeout               ErrorKind = "timeout"
	KindServerError           ErrorKind = "server_error"
	KindServiceUnavailable    ErrorKind = "service_unavailable"
	KindOverloaded            ErrorKind = "overloaded_error"
	KindOutOfMemory           ErrorKind = "out_of_memory"
	KindStreamError           ErrorKind = "stream_error"
	KindCancelled             ErrorKind = "cancelled"
)

// retryableKinds is the single source of truth for retry eligibility.
// Authentication, quota, not-found, context-length, validation, and
// malformed-response kinds fail fast.
var retryableKinds = map[ErrorKind]bool{
	KindRateLimitExceeded:  true,
	KindConnectionRefused:  true,
	KindNetworkError:       true,
	KindTimeout:            true,
	KindServerError:        true,
	KindServiceUnavailable: true,
	KindOverloaded:         true,
}

// KindIsRetryable reports whether the kind is eligible for retry.
func KindIsRetryable(kind ErrorKind) bool {
	return retryableKinds[kind]
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying backend error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError constructs an Error with Retryable derived from the kind.
func newError(kind ErrorKind, backend, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Backend:   backend,
		Retryable: KindIsRetryable(kind),
		Cause:     cause,
	}
}

// AsError extracts an *Error from an error chain, or nil.
func AsError(err error) *Error {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	return nil
}

// IsKind checks whether the error chain contains an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	if e := AsError(err); e != nil {
		return e.Kind == kind
	}
	return false
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	if e := AsError(err); e != nil {
		return e.Retryable
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	return IsKind(err, KindRateLimitExceeded)
}

// ExtractRetryAfter extracts the server-supplied retry-after hint from an error.
func ExtractRetryAfter(err error) *time.Duration {
	if e := AsError(err); e != nil {
		return e.RetryAfter
	}
	return nil
}

// TransportError carries the wire-level facts of a failed backend call.
// Adapters decode their own error body shapes into this normalized form;
// they never assign kinds themselves.
type TransportError struct {
	StatusCode int
	Code       string // Backend-specific error code or type string
	Message    string
	RetryAfter *time.Duration // From a retry-after header, if present
	Cause      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "transport error"
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds
// or an HTTP date. Returns nil when the value is absent or unparseable.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if retryTime, err := time.Parse(time.RFC1123, value); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return &d
		}
	}
	return nil
}
