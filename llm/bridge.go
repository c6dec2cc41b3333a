package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Bridge is the single entry point for backend calls. It selects the
// adapter for a backend configuration, drives the retry scheduler around
// synchronous calls and stream openings, and hands failures to the
// classifier. Bridges are safe for concurrent use; calls share no mutable
// state and backoff waits suspend only the call that incurred them.
type Bridge struct {
	newClient ClientFactory
	retry     RetryPolicy
	logger    zerolog.Logger
}

// NewBridge creates a Bridge using the given adapter factory and retry policy.
func NewBridge(factory ClientFactory, policy RetryPolicy, logger zerolog.Logger) *Bridge {
	return &Bridge{
		newClient: factory,
		retry:     policy,
		logger:    logger.With().Str("component", "bridge").Logger(),
	}
}

// Send sends a request to the configured backend and returns the canonical
// response, retrying retryable failures with exponential backoff. The
// request is validated before any network call.
func (b *Bridge) Send(ctx context.Context, req *Request, cfg BackendConfig) (*Response, error) {
	cfg = ResolveCredentials(cfg)
	if err := b.validateRequest(req, cfg); err != nil {
		return nil, err
	}
	client, err := b.client(cfg)
	if err != nil {
		return nil, err
	}

	sched := b.retry.newSchedule()
	for {
		resp, callErr := b.attempt(ctx, client, req, cfg)
		if callErr == nil {
			if !resp.HasContent() {
				e := newError(KindInvalidResponse, cfg.BackendID, "response carries neither content nor tool calls", nil)
				e.SuggestedFix = suggestedFix(cfg, e)
				return nil, e
			}
			return resp, nil
		}

		e := Classify(cfg, callErr)
		delay, retry := sched.Next(e)
		if !retry {
			return nil, e
		}

		b.logger.Warn().
			Str("backend_id", cfg.BackendID).
			Str("kind", string(e.Kind)).
			Dur("delay", delay).
			Msg("Retrying after backend failure")

		if waitErr := sched.wait(ctx, delay); waitErr != nil {
			return nil, Classify(cfg, waitErr)
		}
	}
}

// attempt runs one synchronous transport call under the backend's timeout.
func (b *Bridge) attempt(ctx context.Context, client Client, req *Request, cfg BackendConfig) (*Response, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	return client.Synchronous(ctx, req)
}

// StreamSend opens a streaming call and returns the event sequence. The
// retry discipline applies only to opening the stream; once events are
// flowing, a partially-consumed stream cannot be safely replayed, so
// decoding failures surface directly as stream errors. Cancellation of ctx
// mid-stream surfaces as a cancelled error on the returned stream.
func (b *Bridge) StreamSend(ctx context.Context, req *Request, cfg BackendConfig) (Stream, error) {
	cfg = ResolveCredentials(cfg)
	if err := b.validateRequest(req, cfg); err != nil {
		return nil, err
	}
	client, err := b.client(cfg)
	if err != nil {
		return nil, err
	}

	sched := b.retry.newSchedule()
	for {
		stream, openErr := client.Stream(ctx, req)
		if openErr == nil {
			return &classifiedStream{ctx: ctx, cfg: cfg, inner: stream}, nil
		}

		e := Classify(cfg, openErr)
		delay, retry := sched.Next(e)
		if !retry {
			return nil, e
		}

		b.logger.Warn().
			Str("backend_id", cfg.BackendID).
			Str("kind", string(e.Kind)).
			Dur("delay", delay).
			Msg("Retrying stream open after backend failure")

		if waitErr := sched.wait(ctx, delay); waitErr != nil {
			return nil, Classify(cfg, waitErr)
		}
	}
}

// ValidateConnection performs one lightweight probe of the backend and
// returns a precise classified error so callers can present a specific
// remediation. No retries: a probe is advisory, not load-bearing.
func (b *Bridge) ValidateConnection(ctx context.Context, cfg BackendConfig) error {
	cfg = ResolveCredentials(cfg)
	if err := b.checkConfigured(cfg); err != nil {
		return err
	}
	client, err := b.client(cfg)
	if err != nil {
		return err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := client.HealthCheck(ctx); err != nil {
		return Classify(cfg, err)
	}
	return nil
}

// client constructs the adapter after the configuration pre-checks.
func (b *Bridge) client(cfg BackendConfig) (Client, error) {
	if err := b.checkConfigured(cfg); err != nil {
		return nil, err
	}
	client, err := b.newClient(cfg, b.logger)
	if err != nil {
		return nil, Classify(cfg, fmt.Errorf("creating %s client: %w", cfg.Provider, err))
	}
	return client, nil
}

// checkConfigured rejects configurations that cannot possibly succeed,
// before any network call.
func (b *Bridge) checkConfigured(cfg BackendConfig) error {
	switch cfg.Provider {
	case ProviderAnthropic, ProviderOpenAI:
		if cfg.APIKey == "" {
			e := newError(KindInvalidAPIKey, cfg.BackendID, "no API key configured", nil)
			e.SuggestedFix = suggestedFix(cfg, e)
			return e
		}
	case ProviderOllama:
		// Host always has a default.
	default:
		if cfg.Endpoint == "" {
			e := newError(KindMissingEndpoint, cfg.BackendID, "no endpoint configured", nil)
			e.SuggestedFix = suggestedFix(cfg, e)
			return e
		}
	}
	return nil
}

// validateRequest enforces the request shape contract: a non-empty message
// list, recognized roles, and non-empty content except for assistant turns
// that only carry tool calls.
func (b *Bridge) validateRequest(req *Request, cfg BackendConfig) error {
	fail := func(msg string) error {
		e := newError(KindInvalidRequest, cfg.BackendID, msg, nil)
		e.SuggestedFix = suggestedFix(cfg, e)
		return e
	}

	if req == nil || len(req.Messages) == 0 {
		return fail("request has no messages")
	}
	for i, msg := range req.Messages {
		if !KnownRole(msg.Role) {
			return fail(fmt.Sprintf("message %d has unrecognized role %q", i, msg.Role))
		}
		if msg.Content == "" {
			if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 {
				continue
			}
			return fail(fmt.Sprintf("message %d has empty content", i))
		}
	}
	return nil
}

// classifiedStream wraps an adapter stream so that mid-stream failures
// surface with the canonical kinds: cancelled when the owning context was
// cancelled, stream_error (never retryable) for everything else.
type classifiedStream struct {
	ctx   context.Context
	cfg   BackendConfig
	inner Stream
}

func (s *classifiedStream) Next() bool          { return s.inner.Next() }
func (s *classifiedStream) Event() *StreamEvent { return s.inner.Event() }
func (s *classifiedStream) Close() error        { return s.inner.Close() }

func (s *classifiedStream) Err() error {
	err := s.inner.Err()
	if err == nil {
		return nil
	}
	if e := AsError(err); e != nil {
		return e
	}
	if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		e := newError(KindCancelled, s.cfg.BackendID, "stream cancelled", err)
		e.SuggestedFix = suggestedFix(s.cfg, e)
		return e
	}
	e := newError(KindStreamError, s.cfg.BackendID, err.Error(), err)
	e.SuggestedFix = suggestedFix(s.cfg, e)
	return e
}
